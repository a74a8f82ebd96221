package service

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"custody/internal/infrastructure/lock"
	"custody/internal/ledger"
	"custody/internal/model"
	"custody/internal/repository"
	"custody/pkg/idgen"
	"custody/pkg/money"
)

type DepositService struct {
	*Deps
	depositRepo  *repository.DepositRepository
	accountRepo  *repository.AccountRepository
	campaignRepo *repository.CampaignRepository
	outboxRepo   *repository.OutboxRepository
}

func NewDepositService(d *Deps) *DepositService {
	return &DepositService{
		Deps:         d,
		depositRepo:  repository.NewDepositRepository(d.DB),
		accountRepo:  repository.NewAccountRepository(d.DB),
		campaignRepo: repository.NewCampaignRepository(d.DB),
		outboxRepo:   repository.NewOutboxRepository(d.DB),
	}
}

// SubmitDepositInput 用户确认已转账
type SubmitDepositInput struct {
	AccountID int64
	Amount    money.Amount
	Network   string
}

func (in *SubmitDepositInput) Validate() error {
	if !in.Amount.IsPositive() {
		return ledger.ErrInvalidAmount
	}
	in.Network = strings.TrimSpace(in.Network)
	return nil
}

// ApproveDepositResult 审核通过后的账户快照
type ApproveDepositResult struct {
	Deposit      *model.DepositRequest `json:"deposit"`
	Account      *model.Account        `json:"account"`
	Bonus        money.Amount          `json:"bonus"`
	BonusGranted bool                  `json:"bonus_granted"`
}

// Submit 创建 pending 充值申请，账户不存在时一并创建
func (s *DepositService) Submit(ctx context.Context, in SubmitDepositInput) (*model.DepositRequest, error) {
	if err := in.Validate(); err != nil {
		return nil, s.fail(kindDeposit, err)
	}

	now := s.now()
	deposit := &model.DepositRequest{
		DepositNo: idgen.GenerateDepositNo(),
		AccountID: in.AccountID,
		Amount:    in.Amount,
		Network:   in.Network,
		Status:    model.RequestStatusPending,
		CreatedAt: now,
	}

	err := s.transact(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if _, err := s.accountRepo.GetOrCreateForUpdate(ctx, tx, in.AccountID); err != nil {
			return err
		}
		return s.depositRepo.Create(ctx, tx, deposit)
	})
	if err != nil {
		return nil, s.fail(kindDeposit, classify(err))
	}

	s.Metrics.RequestsSubmitted.WithLabelValues(kindDeposit).Inc()
	s.Logger.Info().
		Str("deposit_no", deposit.DepositNo).
		Int64("account_id", deposit.AccountID).
		Str("amount", deposit.Amount.String()).
		Str("network", deposit.Network).
		Msg("充值申请已提交")
	return deposit, nil
}

// Approve 审核通过充值
//
// 状态迁移、入账（含赠金）、活动计数、账本事件在同一事务内提交；
// 动态在事务提交后追加，失败时账本结果仍然有效，同时返回 ACTIVITY_INCONSISTENT
func (s *DepositService) Approve(ctx context.Context, depositNo string) (*ApproveDepositResult, error) {
	defer s.Metrics.ObserveApproval(kindDeposit, time.Now())

	release, err := s.lock(ctx, lock.DepositKey(depositNo))
	if err != nil {
		return nil, s.fail(kindDeposit, err)
	}
	defer release()

	now := s.now()
	var result ApproveDepositResult

	err = s.transact(ctx, func(ctx context.Context, tx *gorm.DB) error {
		deposit, err := s.depositRepo.GetByNoForUpdate(ctx, tx, depositNo)
		if err != nil {
			return err
		}
		if deposit.Status != model.RequestStatusPending {
			return ledger.ErrAlreadyProcessed
		}

		// CAS 成功的那一次才会继续入账
		if err := s.depositRepo.UpdateStatus(ctx, tx, depositNo, model.RequestStatusPending, model.RequestStatusApproved, now); err != nil {
			return err
		}
		deposit.Status = model.RequestStatusApproved
		deposit.ProcessedAt = &now

		account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, deposit.AccountID)
		if err != nil {
			return err
		}

		applied, err := s.Engine.ApplyApprovedDeposit(*account, *deposit, now)
		if err != nil {
			return err
		}
		if err := s.accountRepo.Save(ctx, tx, &applied.Account); err != nil {
			return err
		}

		if applied.BonusGranted {
			if err := s.campaignRepo.Increment(ctx, tx); err != nil {
				return err
			}
		}

		event := &model.LedgerEvent{
			Event:        model.LedgerEventDepositApproved,
			RequestNo:    deposit.DepositNo,
			AccountID:    deposit.AccountID,
			Amount:       deposit.Amount,
			Bonus:        applied.Bonus,
			BalanceAfter: applied.Account.Balance,
			Network:      deposit.Network,
			OccurredAt:   now,
		}
		if err := s.outboxRepo.CreateEvent(ctx, tx, s.Topic, event); err != nil {
			return err
		}

		result = ApproveDepositResult{
			Deposit:      deposit,
			Account:      &applied.Account,
			Bonus:        applied.Bonus,
			BonusGranted: applied.BonusGranted,
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(kindDeposit, classify(err))
	}

	s.Metrics.RequestsProcessed.WithLabelValues(kindDeposit, string(model.RequestStatusApproved)).Inc()
	if result.BonusGranted {
		s.Metrics.BonusGranted.Inc()
	}
	s.Logger.Info().
		Str("deposit_no", depositNo).
		Int64("account_id", result.Account.ID).
		Str("amount", result.Deposit.Amount.String()).
		Str("bonus", result.Bonus.String()).
		Str("balance", result.Account.Balance.String()).
		Msg("充值审核通过")

	if err := s.recordActivity(ctx, DepositActivity(result.Deposit, s.Token)); err != nil {
		return &result, s.fail(kindDeposit, err)
	}
	return &result, nil
}

// Reject 驳回充值，不动账，也不写动态
func (s *DepositService) Reject(ctx context.Context, depositNo string) error {
	defer s.Metrics.ObserveApproval(kindDeposit, time.Now())

	release, err := s.lock(ctx, lock.DepositKey(depositNo))
	if err != nil {
		return s.fail(kindDeposit, err)
	}
	defer release()

	now := s.now()
	err = s.transact(ctx, func(ctx context.Context, tx *gorm.DB) error {
		deposit, err := s.depositRepo.GetByNoForUpdate(ctx, tx, depositNo)
		if err != nil {
			return err
		}
		if deposit.Status != model.RequestStatusPending {
			return ledger.ErrAlreadyProcessed
		}
		return s.depositRepo.UpdateStatus(ctx, tx, depositNo, model.RequestStatusPending, model.RequestStatusRejected, now)
	})
	if err != nil {
		return s.fail(kindDeposit, classify(err))
	}

	s.Metrics.RequestsProcessed.WithLabelValues(kindDeposit, string(model.RequestStatusRejected)).Inc()
	s.Logger.Info().Str("deposit_no", depositNo).Msg("充值已驳回")
	return nil
}

func (s *DepositService) Get(ctx context.Context, depositNo string) (*model.DepositRequest, error) {
	deposit, err := s.depositRepo.GetByNo(ctx, depositNo)
	if err != nil {
		return nil, classify(err)
	}
	return deposit, nil
}

// ListByStatus 管理后台审核队列
func (s *DepositService) ListByStatus(ctx context.Context, status model.RequestStatus, limit int) ([]*model.DepositRequest, error) {
	deposits, err := s.depositRepo.ListByStatus(ctx, status, normalizeLimit(limit))
	if err != nil {
		return nil, classify(err)
	}
	return deposits, nil
}

// DepositActivity 充值完成动态，时间取审核时间
func DepositActivity(deposit *model.DepositRequest, token string) *model.ActivityEvent {
	at := deposit.CreatedAt
	if deposit.ProcessedAt != nil {
		at = *deposit.ProcessedAt
	}
	return &model.ActivityEvent{
		RequestNo: deposit.DepositNo,
		AccountID: deposit.AccountID,
		Kind:      model.ActivityKindDeposit,
		Token:     token,
		Amount:    deposit.Amount,
		Network:   deposit.Network,
		Status:    model.ActivityStatusCompleted,
		CreatedAt: at,
	}
}

const maxListLimit = 200

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
