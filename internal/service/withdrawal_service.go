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

// MinAddressLength 提现地址最短长度，只做基本校验，不校验链上格式
const MinAddressLength = 10

type WithdrawalService struct {
	*Deps
	withdrawalRepo *repository.WithdrawalRepository
	accountRepo    *repository.AccountRepository
	outboxRepo     *repository.OutboxRepository
}

func NewWithdrawalService(d *Deps) *WithdrawalService {
	return &WithdrawalService{
		Deps:           d,
		withdrawalRepo: repository.NewWithdrawalRepository(d.DB),
		accountRepo:    repository.NewAccountRepository(d.DB),
		outboxRepo:     repository.NewOutboxRepository(d.DB),
	}
}

type SubmitWithdrawalInput struct {
	AccountID int64
	Amount    money.Amount
	Network   string
	Address   string
}

func (in *SubmitWithdrawalInput) Validate() error {
	if !in.Amount.IsPositive() {
		return ledger.ErrInvalidAmount
	}
	in.Network = strings.ToUpper(strings.TrimSpace(in.Network))
	if !model.IsSupportedNetwork(in.Network) {
		return ledger.ErrInvalidNetwork
	}
	in.Address = strings.TrimSpace(in.Address)
	if len(in.Address) < MinAddressLength {
		return ledger.ErrInvalidAddress
	}
	return nil
}

type ApproveWithdrawalResult struct {
	Withdrawal *model.WithdrawalRequest `json:"withdrawal"`
	Account    *model.Account           `json:"account"`
}

// Submit 提交提现申请
//
// 按账户加锁并在事务内读账户，和并发的充值审核串行：
// 解锁时间未到一律拒绝，余额不足也在这里先拒绝一次
func (s *WithdrawalService) Submit(ctx context.Context, in SubmitWithdrawalInput) (*model.WithdrawalRequest, error) {
	if err := in.Validate(); err != nil {
		return nil, s.fail(kindWithdrawal, err)
	}

	release, err := s.lock(ctx, lock.AccountKey(in.AccountID))
	if err != nil {
		return nil, s.fail(kindWithdrawal, err)
	}
	defer release()

	now := s.now()
	withdrawal := &model.WithdrawalRequest{
		WithdrawalNo: idgen.GenerateWithdrawalNo(),
		AccountID:    in.AccountID,
		Amount:       in.Amount,
		Network:      in.Network,
		Address:      in.Address,
		Status:       model.RequestStatusPending,
		CreatedAt:    now,
	}

	err = s.transact(ctx, func(ctx context.Context, tx *gorm.DB) error {
		account, err := s.accountRepo.GetOrCreateForUpdate(ctx, tx, in.AccountID)
		if err != nil {
			return err
		}
		if ledger.IsWithdrawLocked(*account, now) {
			return ledger.ErrWithdrawLocked
		}
		if account.Balance < in.Amount {
			return ledger.ErrInsufficientFunds
		}
		return s.withdrawalRepo.Create(ctx, tx, withdrawal)
	})
	if err != nil {
		return nil, s.fail(kindWithdrawal, classify(err))
	}

	s.Metrics.RequestsSubmitted.WithLabelValues(kindWithdrawal).Inc()
	s.Logger.Info().
		Str("withdrawal_no", withdrawal.WithdrawalNo).
		Int64("account_id", withdrawal.AccountID).
		Str("amount", withdrawal.Amount.String()).
		Str("network", withdrawal.Network).
		Msg("提现申请已提交")
	return withdrawal, nil
}

// Approve 审核通过提现，余额以审核时为准重新校验
func (s *WithdrawalService) Approve(ctx context.Context, withdrawalNo string) (*ApproveWithdrawalResult, error) {
	defer s.Metrics.ObserveApproval(kindWithdrawal, time.Now())

	release, err := s.lock(ctx, lock.WithdrawalKey(withdrawalNo))
	if err != nil {
		return nil, s.fail(kindWithdrawal, err)
	}
	defer release()

	now := s.now()
	var result ApproveWithdrawalResult

	err = s.transact(ctx, func(ctx context.Context, tx *gorm.DB) error {
		withdrawal, err := s.withdrawalRepo.GetByNoForUpdate(ctx, tx, withdrawalNo)
		if err != nil {
			return err
		}
		if withdrawal.Status != model.RequestStatusPending {
			return ledger.ErrAlreadyProcessed
		}

		if err := s.withdrawalRepo.UpdateStatus(ctx, tx, withdrawalNo, model.RequestStatusPending, model.RequestStatusApproved, now); err != nil {
			return err
		}
		withdrawal.Status = model.RequestStatusApproved
		withdrawal.ProcessedAt = &now

		account, err := s.accountRepo.GetByIDForUpdate(ctx, tx, withdrawal.AccountID)
		if err != nil {
			return err
		}

		// 余额不足时整个事务回滚，申请保持 pending
		debited, err := s.Engine.ApplyApprovedWithdrawal(*account, *withdrawal)
		if err != nil {
			return err
		}
		if err := s.accountRepo.Save(ctx, tx, &debited); err != nil {
			return err
		}

		event := &model.LedgerEvent{
			Event:        model.LedgerEventWithdrawalApproved,
			RequestNo:    withdrawal.WithdrawalNo,
			AccountID:    withdrawal.AccountID,
			Amount:       withdrawal.Amount,
			BalanceAfter: debited.Balance,
			Network:      withdrawal.Network,
			Address:      withdrawal.Address,
			OccurredAt:   now,
		}
		if err := s.outboxRepo.CreateEvent(ctx, tx, s.Topic, event); err != nil {
			return err
		}

		result = ApproveWithdrawalResult{Withdrawal: withdrawal, Account: &debited}
		return nil
	})
	if err != nil {
		return nil, s.fail(kindWithdrawal, classify(err))
	}

	s.Metrics.RequestsProcessed.WithLabelValues(kindWithdrawal, string(model.RequestStatusApproved)).Inc()
	s.Logger.Info().
		Str("withdrawal_no", withdrawalNo).
		Int64("account_id", result.Account.ID).
		Str("amount", result.Withdrawal.Amount.String()).
		Str("balance", result.Account.Balance.String()).
		Msg("提现审核通过")

	if err := s.recordActivity(ctx, WithdrawalActivity(result.Withdrawal, s.Token)); err != nil {
		return &result, s.fail(kindWithdrawal, err)
	}
	return &result, nil
}

// Reject 驳回提现
func (s *WithdrawalService) Reject(ctx context.Context, withdrawalNo string) error {
	defer s.Metrics.ObserveApproval(kindWithdrawal, time.Now())

	release, err := s.lock(ctx, lock.WithdrawalKey(withdrawalNo))
	if err != nil {
		return s.fail(kindWithdrawal, err)
	}
	defer release()

	now := s.now()
	err = s.transact(ctx, func(ctx context.Context, tx *gorm.DB) error {
		withdrawal, err := s.withdrawalRepo.GetByNoForUpdate(ctx, tx, withdrawalNo)
		if err != nil {
			return err
		}
		if withdrawal.Status != model.RequestStatusPending {
			return ledger.ErrAlreadyProcessed
		}
		return s.withdrawalRepo.UpdateStatus(ctx, tx, withdrawalNo, model.RequestStatusPending, model.RequestStatusRejected, now)
	})
	if err != nil {
		return s.fail(kindWithdrawal, classify(err))
	}

	s.Metrics.RequestsProcessed.WithLabelValues(kindWithdrawal, string(model.RequestStatusRejected)).Inc()
	s.Logger.Info().Str("withdrawal_no", withdrawalNo).Msg("提现已驳回")
	return nil
}

func (s *WithdrawalService) Get(ctx context.Context, withdrawalNo string) (*model.WithdrawalRequest, error) {
	withdrawal, err := s.withdrawalRepo.GetByNo(ctx, withdrawalNo)
	if err != nil {
		return nil, classify(err)
	}
	return withdrawal, nil
}

// List 管理后台列表，最新的在前，status 为空返回全部
func (s *WithdrawalService) List(ctx context.Context, status model.RequestStatus, limit int) ([]*model.WithdrawalRequest, error) {
	withdrawals, err := s.withdrawalRepo.List(ctx, status, normalizeLimit(limit))
	if err != nil {
		return nil, classify(err)
	}
	return withdrawals, nil
}

func WithdrawalActivity(withdrawal *model.WithdrawalRequest, token string) *model.ActivityEvent {
	at := withdrawal.CreatedAt
	if withdrawal.ProcessedAt != nil {
		at = *withdrawal.ProcessedAt
	}
	return &model.ActivityEvent{
		RequestNo: withdrawal.WithdrawalNo,
		AccountID: withdrawal.AccountID,
		Kind:      model.ActivityKindWithdraw,
		Token:     token,
		Amount:    withdrawal.Amount,
		Network:   withdrawal.Network,
		Address:   withdrawal.Address,
		Status:    model.ActivityStatusCompleted,
		CreatedAt: at,
	}
}
