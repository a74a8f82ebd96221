package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"custody/internal/config"
	"custody/internal/metrics"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, cfg *config.Config, m *metrics.Metrics, log zerolog.Logger) *gin.Engine {
	if cfg.Server.GinMode != "" {
		gin.SetMode(cfg.Server.GinMode)
	}

	r := gin.New()

	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1", IdentityMiddleware())
	{
		api.GET("/dashboard", h.GetDashboard)
		api.POST("/deposits", h.SubmitDeposit)
		api.POST("/withdrawals", h.SubmitWithdrawal)

		admin := api.Group("/admin", AdminOnly(cfg.Admin))
		{
			admin.GET("/deposits", h.ListDeposits)
			admin.POST("/deposits/:no/approve", h.ApproveDeposit)
			admin.POST("/deposits/:no/reject", h.RejectDeposit)

			admin.GET("/withdrawals", h.ListWithdrawals)
			admin.POST("/withdrawals/:no/approve", h.ApproveWithdrawal)
			admin.POST("/withdrawals/:no/reject", h.RejectWithdrawal)

			admin.GET("/analytics", h.Analytics)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	return r
}
