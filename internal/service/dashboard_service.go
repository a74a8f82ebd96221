package service

import (
	"context"
	"time"

	"custody/internal/ledger"
	"custody/internal/model"
	"custody/internal/repository"
	"custody/pkg/money"
)

type DashboardService struct {
	*Deps
	accountRepo    *repository.AccountRepository
	depositRepo    *repository.DepositRepository
	withdrawalRepo *repository.WithdrawalRepository
	campaignRepo   *repository.CampaignRepository
}

func NewDashboardService(d *Deps) *DashboardService {
	return &DashboardService{
		Deps:           d,
		accountRepo:    repository.NewAccountRepository(d.DB),
		depositRepo:    repository.NewDepositRepository(d.DB),
		withdrawalRepo: repository.NewWithdrawalRepository(d.DB),
		campaignRepo:   repository.NewCampaignRepository(d.DB),
	}
}

type BonusState struct {
	Unlocked bool `json:"unlocked"`
	Used     bool `json:"used"`
}

type Dashboard struct {
	AccountID        int64                  `json:"account_id"`
	Token            string                 `json:"token"`
	Balance          money.Amount           `json:"balance"`
	Bonus            BonusState             `json:"bonus"`
	WithdrawUnlockAt *time.Time             `json:"withdraw_unlock_at"`
	WithdrawLocked   bool                   `json:"withdraw_locked"`
	Activity         []*model.ActivityEvent `json:"activity"`
	CampaignCount    int64                  `json:"campaign_count"`
}

// GetDashboard 用户首页：余额、赠金状态、提现解锁时间、最近动态
func (s *DashboardService) GetDashboard(ctx context.Context, accountID int64) (*Dashboard, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, classify(err)
	}

	activity, err := s.Recorder.ListRecent(ctx, accountID, s.ActivityLimit)
	if err != nil {
		return nil, ledger.StorageFault(err)
	}

	campaign, err := s.campaignRepo.Count(ctx)
	if err != nil {
		return nil, ledger.StorageFault(err)
	}

	return &Dashboard{
		AccountID:        account.ID,
		Token:            s.Token,
		Balance:          account.Balance,
		Bonus:            BonusState{Unlocked: account.BonusUnlocked, Used: account.BonusUsed},
		WithdrawUnlockAt: account.WithdrawUnlockAt,
		WithdrawLocked:   ledger.IsWithdrawLocked(*account, s.now()),
		Activity:         activity,
		CampaignCount:    campaign,
	}, nil
}

type Analytics struct {
	Accounts            int64 `json:"accounts"`
	ApprovedDeposits    int64 `json:"approved_deposits"`
	ApprovedWithdrawals int64 `json:"approved_withdrawals"`
	PendingDeposits     int64 `json:"pending_deposits"`
	PendingWithdrawals  int64 `json:"pending_withdrawals"`
	CampaignCount       int64 `json:"campaign_count"`
}

// Analytics 管理后台统计
func (s *DashboardService) Analytics(ctx context.Context) (*Analytics, error) {
	var (
		out Analytics
		err error
	)
	if out.Accounts, err = s.accountRepo.Count(ctx); err != nil {
		return nil, ledger.StorageFault(err)
	}
	if out.ApprovedDeposits, err = s.depositRepo.CountByStatus(ctx, model.RequestStatusApproved); err != nil {
		return nil, ledger.StorageFault(err)
	}
	if out.PendingDeposits, err = s.depositRepo.CountByStatus(ctx, model.RequestStatusPending); err != nil {
		return nil, ledger.StorageFault(err)
	}
	if out.ApprovedWithdrawals, err = s.withdrawalRepo.CountByStatus(ctx, model.RequestStatusApproved); err != nil {
		return nil, ledger.StorageFault(err)
	}
	if out.PendingWithdrawals, err = s.withdrawalRepo.CountByStatus(ctx, model.RequestStatusPending); err != nil {
		return nil, ledger.StorageFault(err)
	}
	if out.CampaignCount, err = s.campaignRepo.Count(ctx); err != nil {
		return nil, ledger.StorageFault(err)
	}
	return &out, nil
}
