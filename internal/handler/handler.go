package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"custody/internal/ledger"
	"custody/internal/model"
	"custody/internal/service"
	"custody/pkg/money"
	"custody/pkg/response"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	deposits    *service.DepositService
	withdrawals *service.WithdrawalService
	dashboard   *service.DashboardService
	log         zerolog.Logger
}

func NewHandler(deps *service.Deps) *Handler {
	return &Handler{
		deposits:    service.NewDepositService(deps),
		withdrawals: service.NewWithdrawalService(deps),
		dashboard:   service.NewDashboardService(deps),
		log:         deps.Logger,
	}
}

// bindJSON 金额格式非法时按 INVALID_AMOUNT 返回，其余绑定错误为参数错误
func (h *Handler) bindJSON(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	switch {
	case err == nil:
		return true
	case errors.Is(err, money.ErrInvalid):
		renderError(c, h.log, ledger.ErrInvalidAmount, nil)
	default:
		response.ParamError(c, "参数错误: "+err.Error())
	}
	return false
}

// ============================================================
// 用户接口
// ============================================================

// GetDashboard 首页
// GET /api/v1/dashboard
func (h *Handler) GetDashboard(c *gin.Context) {
	board, err := h.dashboard.GetDashboard(c.Request.Context(), accountID(c))
	if err != nil {
		renderError(c, h.log, err, nil)
		return
	}
	response.Success(c, board)
}

// SubmitDepositRequest 用户确认已转账
type SubmitDepositRequest struct {
	Amount  money.Amount `json:"amount"`
	Network string       `json:"network"`
}

// SubmitDeposit 提交充值申请
// POST /api/v1/deposits
func (h *Handler) SubmitDeposit(c *gin.Context) {
	var req SubmitDepositRequest
	if !h.bindJSON(c, &req) {
		return
	}

	deposit, err := h.deposits.Submit(c.Request.Context(), service.SubmitDepositInput{
		AccountID: accountID(c),
		Amount:    req.Amount,
		Network:   req.Network,
	})
	if err != nil {
		renderError(c, h.log, err, nil)
		return
	}
	response.Created(c, deposit)
}

type SubmitWithdrawalRequest struct {
	Amount  money.Amount `json:"amount"`
	Network string       `json:"network"`
	Address string       `json:"address"`
}

// SubmitWithdrawal 提交提现申请
// POST /api/v1/withdrawals
func (h *Handler) SubmitWithdrawal(c *gin.Context) {
	var req SubmitWithdrawalRequest
	if !h.bindJSON(c, &req) {
		return
	}

	withdrawal, err := h.withdrawals.Submit(c.Request.Context(), service.SubmitWithdrawalInput{
		AccountID: accountID(c),
		Amount:    req.Amount,
		Network:   req.Network,
		Address:   req.Address,
	})
	if err != nil {
		renderError(c, h.log, err, nil)
		return
	}
	response.Created(c, withdrawal)
}

// ============================================================
// 管理后台
// ============================================================

// statusQuery 解析 ?status=，fallback 为空时表示不过滤
func statusQuery(c *gin.Context, fallback model.RequestStatus) (model.RequestStatus, bool) {
	raw := c.Query("status")
	if raw == "" {
		return fallback, true
	}
	status, ok := model.ParseRequestStatus(raw)
	if !ok {
		response.ParamError(c, "status 参数错误")
		return "", false
	}
	return status, true
}

func limitQuery(c *gin.Context) int {
	var q struct {
		Limit int `form:"limit"`
	}
	_ = c.ShouldBindQuery(&q)
	return q.Limit
}

// ListDeposits 审核队列
// GET /api/v1/admin/deposits?status=pending
func (h *Handler) ListDeposits(c *gin.Context) {
	status, ok := statusQuery(c, model.RequestStatusPending)
	if !ok {
		return
	}
	deposits, err := h.deposits.ListByStatus(c.Request.Context(), status, limitQuery(c))
	if err != nil {
		renderError(c, h.log, err, nil)
		return
	}
	response.Success(c, gin.H{"list": deposits, "total": len(deposits)})
}

// ApproveDeposit 审核通过充值
// POST /api/v1/admin/deposits/:no/approve
func (h *Handler) ApproveDeposit(c *gin.Context) {
	result, err := h.deposits.Approve(c.Request.Context(), c.Param("no"))
	if err != nil {
		renderError(c, h.log, err, result)
		return
	}
	response.Success(c, result)
}

// RejectDeposit 驳回充值
// POST /api/v1/admin/deposits/:no/reject
func (h *Handler) RejectDeposit(c *gin.Context) {
	no := c.Param("no")
	if err := h.deposits.Reject(c.Request.Context(), no); err != nil {
		renderError(c, h.log, err, nil)
		return
	}
	response.Success(c, gin.H{"deposit_no": no, "status": model.RequestStatusRejected})
}

// ListWithdrawals 提现列表，新的在前
// GET /api/v1/admin/withdrawals?status=
func (h *Handler) ListWithdrawals(c *gin.Context) {
	status, ok := statusQuery(c, "")
	if !ok {
		return
	}
	withdrawals, err := h.withdrawals.List(c.Request.Context(), status, limitQuery(c))
	if err != nil {
		renderError(c, h.log, err, nil)
		return
	}
	response.Success(c, gin.H{"list": withdrawals, "total": len(withdrawals)})
}

// ApproveWithdrawal 审核通过提现
// POST /api/v1/admin/withdrawals/:no/approve
func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	result, err := h.withdrawals.Approve(c.Request.Context(), c.Param("no"))
	if err != nil {
		renderError(c, h.log, err, result)
		return
	}
	response.Success(c, result)
}

// RejectWithdrawal 驳回提现
// POST /api/v1/admin/withdrawals/:no/reject
func (h *Handler) RejectWithdrawal(c *gin.Context) {
	no := c.Param("no")
	if err := h.withdrawals.Reject(c.Request.Context(), no); err != nil {
		renderError(c, h.log, err, nil)
		return
	}
	response.Success(c, gin.H{"withdrawal_no": no, "status": model.RequestStatusRejected})
}

// Analytics 统计
// GET /api/v1/admin/analytics
func (h *Handler) Analytics(c *gin.Context) {
	stats, err := h.dashboard.Analytics(c.Request.Context())
	if err != nil {
		renderError(c, h.log, err, nil)
		return
	}
	response.Success(c, stats)
}
