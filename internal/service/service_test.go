package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"custody/internal/config"
	"custody/internal/infrastructure/lock"
	"custody/internal/ledger"
	"custody/internal/model"
	"custody/internal/repository"
	"custody/internal/testutil"
	"custody/pkg/money"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db          *gorm.DB
	deps        *Deps
	clock       *testutil.Clock
	deposits    *DepositService
	withdrawals *WithdrawalService
	dashboard   *DashboardService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	db := testutil.NewDB(t)
	deps, err := NewDeps(db, lock.NewLocalLocker(), cfg)
	require.NoError(t, err)

	clock := testutil.NewClock(start)
	deps.Clock = clock.Now

	return &fixture{
		db:          db,
		deps:        deps,
		clock:       clock,
		deposits:    NewDepositService(deps),
		withdrawals: NewWithdrawalService(deps),
		dashboard:   NewDashboardService(deps),
	}
}

func (f *fixture) account(t *testing.T, id int64) *model.Account {
	t.Helper()
	acct, err := repository.NewAccountRepository(f.db).GetByID(context.Background(), id)
	require.NoError(t, err)
	return acct
}

// deposit 提交并审核一笔充值
func (f *fixture) deposit(t *testing.T, accountID int64, amount money.Amount) *ApproveDepositResult {
	t.Helper()
	ctx := context.Background()
	dep, err := f.deposits.Submit(ctx, SubmitDepositInput{AccountID: accountID, Amount: amount, Network: "TRC20"})
	require.NoError(t, err)
	res, err := f.deposits.Approve(ctx, dep.DepositNo)
	require.NoError(t, err)
	return res
}

func (f *fixture) submitWithdrawal(accountID int64, amount money.Amount) (*model.WithdrawalRequest, error) {
	return f.withdrawals.Submit(context.Background(), SubmitWithdrawalInput{
		AccountID: accountID,
		Amount:    amount,
		Network:   "TRC20",
		Address:   "TXYZ1234567890abcdef",
	})
}

func TestDepositRoundTripGrantsBonus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dep, err := f.deposits.Submit(ctx, SubmitDepositInput{AccountID: 1, Amount: money.FromUnits(100), Network: "TRC20"})
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, dep.Status)

	res, err := f.deposits.Approve(ctx, dep.DepositNo)
	require.NoError(t, err)
	assert.True(t, res.BonusGranted)
	assert.Equal(t, money.FromUnits(100), res.Bonus)

	acct := f.account(t, 1)
	assert.Equal(t, money.FromUnits(200), acct.Balance)
	assert.True(t, acct.BonusUnlocked)
	assert.False(t, acct.BonusUsed)
	require.NotNil(t, acct.WithdrawUnlockAt)
	assert.WithinDuration(t, start.Add(2*time.Hour), *acct.WithdrawUnlockAt, time.Second)

	stored, err := f.deposits.Get(ctx, dep.DepositNo)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, stored.Status)
	require.NotNil(t, stored.ProcessedAt)

	board, err := f.dashboard.GetDashboard(ctx, 1)
	require.NoError(t, err)
	require.Len(t, board.Activity, 1)
	assert.Equal(t, model.ActivityKindDeposit, board.Activity[0].Kind)
	assert.Equal(t, model.ActivityStatusCompleted, board.Activity[0].Status)
	assert.Equal(t, "USDT", board.Activity[0].Token)
	assert.Equal(t, money.FromUnits(100), board.Activity[0].Amount)
	assert.Equal(t, int64(1), board.CampaignCount)
	assert.True(t, board.WithdrawLocked)

	pending, err := repository.NewOutboxRepository(f.db).GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, dep.DepositNo, pending[0].MessageKey)
	assert.Contains(t, pending[0].Payload, model.LedgerEventDepositApproved)
}

func TestBonusGrantedAtMostOnce(t *testing.T) {
	f := newFixture(t)

	f.deposit(t, 1, money.FromUnits(100))
	f.clock.Advance(3 * time.Hour)
	second := f.deposit(t, 1, money.FromUnits(150))

	assert.False(t, second.BonusGranted)
	acct := f.account(t, 1)
	assert.Equal(t, money.FromUnits(350), acct.Balance)
	// 第二次不刷新锁定时间
	assert.WithinDuration(t, start.Add(2*time.Hour), *acct.WithdrawUnlockAt, time.Second)

	count, err := repository.NewCampaignRepository(f.db).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDepositBelowThresholdHasNoBonusOrLock(t *testing.T) {
	f := newFixture(t)
	res := f.deposit(t, 1, money.FromUnits(99))

	assert.False(t, res.BonusGranted)
	acct := f.account(t, 1)
	assert.Equal(t, money.FromUnits(99), acct.Balance)
	assert.False(t, acct.BonusUnlocked)
	assert.Nil(t, acct.WithdrawUnlockAt)
}

func TestSubmitDepositRejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	for _, amt := range []money.Amount{0, -money.FromUnits(1)} {
		_, err := f.deposits.Submit(context.Background(), SubmitDepositInput{AccountID: 1, Amount: amt})
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	}
}

func TestApproveDepositTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dep, err := f.deposits.Submit(ctx, SubmitDepositInput{AccountID: 1, Amount: money.FromUnits(100)})
	require.NoError(t, err)
	_, err = f.deposits.Approve(ctx, dep.DepositNo)
	require.NoError(t, err)

	_, err = f.deposits.Approve(ctx, dep.DepositNo)
	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
	assert.ErrorIs(t, f.deposits.Reject(ctx, dep.DepositNo), ledger.ErrAlreadyProcessed)
	assert.Equal(t, money.FromUnits(200), f.account(t, 1).Balance)
}

func TestConcurrentApproveCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dep, err := f.deposits.Submit(ctx, SubmitDepositInput{AccountID: 1, Amount: money.FromUnits(100)})
	require.NoError(t, err)

	const callers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		processed int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.deposits.Approve(ctx, dep.DepositNo)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ledger.ErrAlreadyProcessed):
				processed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, processed)
	assert.Equal(t, money.FromUnits(200), f.account(t, 1).Balance)

	board, err := f.dashboard.GetDashboard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, board.Activity, 1)
}

func TestApproveRejectedDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dep, err := f.deposits.Submit(ctx, SubmitDepositInput{AccountID: 1, Amount: money.FromUnits(100)})
	require.NoError(t, err)
	require.NoError(t, f.deposits.Reject(ctx, dep.DepositNo))

	_, err = f.deposits.Approve(ctx, dep.DepositNo)
	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)

	acct := f.account(t, 1)
	assert.Zero(t, acct.Balance)
	assert.False(t, acct.BonusUnlocked)

	// 驳回不写动态
	board, err := f.dashboard.GetDashboard(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, board.Activity)
}

func TestUnknownRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.deposits.Approve(ctx, "DEP404")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.ErrorIs(t, f.deposits.Reject(ctx, "DEP404"), ledger.ErrNotFound)
	_, err = f.withdrawals.Approve(ctx, "WDR404")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.ErrorIs(t, f.withdrawals.Reject(ctx, "WDR404"), ledger.ErrNotFound)
	_, err = f.dashboard.GetDashboard(ctx, 404)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSubmitWithdrawalValidation(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, 1, money.FromUnits(50))

	tests := []struct {
		name string
		in   SubmitWithdrawalInput
		want error
	}{
		{name: "zero amount", in: SubmitWithdrawalInput{AccountID: 1, Amount: 0, Network: "TRC20", Address: "TXYZ1234567890"}, want: ledger.ErrInvalidAmount},
		{name: "unknown network", in: SubmitWithdrawalInput{AccountID: 1, Amount: money.FromUnits(1), Network: "XYZ", Address: "TXYZ1234567890"}, want: ledger.ErrInvalidNetwork},
		{name: "short address", in: SubmitWithdrawalInput{AccountID: 1, Amount: money.FromUnits(1), Network: "ERC20", Address: "abc"}, want: ledger.ErrInvalidAddress},
		{name: "more than balance", in: SubmitWithdrawalInput{AccountID: 1, Amount: money.FromUnits(100), Network: "BEP20", Address: "0x1234567890abcdef"}, want: ledger.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.withdrawals.Submit(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	w, err := f.withdrawals.Submit(context.Background(), SubmitWithdrawalInput{
		AccountID: 1, Amount: money.FromUnits(10), Network: " erc20 ", Address: "0x1234567890abcdef",
	})
	require.NoError(t, err)
	assert.Equal(t, model.NetworkERC20, w.Network)
	assert.Equal(t, model.RequestStatusPending, w.Status)
}

func TestWithdrawLockedUntilUnlockTime(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, 1, money.FromUnits(100))

	_, err := f.submitWithdrawal(1, money.FromUnits(10))
	assert.ErrorIs(t, err, ledger.ErrWithdrawLocked)

	f.clock.Advance(2*time.Hour - time.Second)
	_, err = f.submitWithdrawal(1, money.FromUnits(10))
	assert.ErrorIs(t, err, ledger.ErrWithdrawLocked)

	f.clock.Advance(time.Second)
	w, err := f.submitWithdrawal(1, money.FromUnits(10))
	require.NoError(t, err)

	res, err := f.withdrawals.Approve(context.Background(), w.WithdrawalNo)
	require.NoError(t, err)
	assert.Equal(t, money.FromUnits(190), res.Account.Balance)
	assert.Equal(t, money.FromUnits(190), f.account(t, 1).Balance)

	board, err := f.dashboard.GetDashboard(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, board.Activity, 2)
	assert.Equal(t, model.ActivityKindWithdraw, board.Activity[0].Kind)
	assert.Equal(t, "TXYZ1234567890abcdef", board.Activity[0].Address)
	assert.Equal(t, model.ActivityKindDeposit, board.Activity[1].Kind)
}

func TestApproveWithdrawalRechecksBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 两笔低于门槛的充值，不触发赠金和锁定
	f.deposit(t, 1, money.FromUnits(60))
	f.deposit(t, 1, money.FromUnits(60))

	first, err := f.submitWithdrawal(1, money.FromUnits(100))
	require.NoError(t, err)
	second, err := f.submitWithdrawal(1, money.FromUnits(100))
	require.NoError(t, err)

	_, err = f.withdrawals.Approve(ctx, first.WithdrawalNo)
	require.NoError(t, err)

	_, err = f.withdrawals.Approve(ctx, second.WithdrawalNo)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	assert.Equal(t, money.FromUnits(20), f.account(t, 1).Balance)
	stored, err := f.withdrawals.Get(ctx, second.WithdrawalNo)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, stored.Status)

	require.NoError(t, f.withdrawals.Reject(ctx, second.WithdrawalNo))
	_, err = f.withdrawals.Approve(ctx, second.WithdrawalNo)
	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
}

func TestConcurrentWithdrawalApprovalsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deposit(t, 1, money.FromUnits(60))
	f.deposit(t, 1, money.FromUnits(60))

	var requests []*model.WithdrawalRequest
	for i := 0; i < 5; i++ {
		w, err := f.submitWithdrawal(1, money.FromUnits(50))
		require.NoError(t, err)
		requests = append(requests, w)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved int
	)
	for _, w := range requests {
		wg.Add(1)
		go func(no string) {
			defer wg.Done()
			_, err := f.withdrawals.Approve(ctx, no)
			if err != nil {
				assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
				return
			}
			mu.Lock()
			approved++
			mu.Unlock()
		}(w.WithdrawalNo)
	}
	wg.Wait()

	assert.Equal(t, 2, approved)
	assert.Equal(t, money.FromUnits(20), f.account(t, 1).Balance)
}

type failingRecorder struct {
	ActivityRecorder
	err error
}

func (r failingRecorder) Record(context.Context, *model.ActivityEvent) error {
	return r.err
}

func TestActivityFailureKeepsLedgerCommitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deps.Recorder = failingRecorder{ActivityRecorder: f.deps.Recorder, err: errors.New("disk full")}

	dep, err := f.deposits.Submit(ctx, SubmitDepositInput{AccountID: 1, Amount: money.FromUnits(100)})
	require.NoError(t, err)

	res, err := f.deposits.Approve(ctx, dep.DepositNo)
	assert.ErrorIs(t, err, ledger.ErrActivityInconsistent)
	require.NotNil(t, res)
	assert.True(t, res.BonusGranted)

	assert.Equal(t, money.FromUnits(200), f.account(t, 1).Balance)
	stored, err := f.deposits.Get(ctx, dep.DepositNo)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusApproved, stored.Status)

	missing, err := repository.NewDepositRepository(f.db).ListApprovedWithoutActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, dep.DepositNo, missing[0].DepositNo)
}

func TestListsAndAnalytics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.deposit(t, 1, money.FromUnits(100))
	pendingDep, err := f.deposits.Submit(ctx, SubmitDepositInput{AccountID: 2, Amount: money.FromUnits(5)})
	require.NoError(t, err)

	f.clock.Advance(3 * time.Hour)
	w1, err := f.submitWithdrawal(1, money.FromUnits(10))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	w2, err := f.submitWithdrawal(1, money.FromUnits(10))
	require.NoError(t, err)
	_, err = f.withdrawals.Approve(ctx, w1.WithdrawalNo)
	require.NoError(t, err)

	pending, err := f.deposits.ListByStatus(ctx, model.RequestStatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, pendingDep.DepositNo, pending[0].DepositNo)

	all, err := f.withdrawals.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, w2.WithdrawalNo, all[0].WithdrawalNo)

	stats, err := f.dashboard.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, Analytics{
		Accounts:            2,
		ApprovedDeposits:    1,
		ApprovedWithdrawals: 1,
		PendingDeposits:     1,
		PendingWithdrawals:  1,
		CampaignCount:       1,
	}, *stats)
}

// staleAccountReads 打开后，下一次读取 account 行得到的 version 落后于库里的值
func staleAccountReads(t *testing.T, db *gorm.DB) *atomic.Bool {
	t.Helper()
	var armed atomic.Bool
	err := db.Callback().Query().After("gorm:query").Register("custody:stale_account", func(tx *gorm.DB) {
		acct, ok := tx.Statement.Dest.(*model.Account)
		if ok && armed.CompareAndSwap(true, false) {
			acct.Version--
		}
	})
	require.NoError(t, err)
	return &armed
}

func TestApproveRollsBackOnStaleAccountVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := staleAccountReads(t, f.db)

	dep, err := f.deposits.Submit(ctx, SubmitDepositInput{AccountID: 1, Amount: money.FromUnits(100)})
	require.NoError(t, err)

	stale.Store(true)
	_, err = f.deposits.Approve(ctx, dep.DepositNo)
	assert.ErrorIs(t, err, ledger.ErrStorageFault)
	assert.False(t, stale.Load())

	// 事务整体回滚：状态、余额、活动计数、事件都未落库
	stored, err := f.deposits.Get(ctx, dep.DepositNo)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, stored.Status)
	acct := f.account(t, 1)
	assert.Zero(t, acct.Balance)
	assert.False(t, acct.BonusUnlocked)
	count, err := repository.NewCampaignRepository(f.db).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	pending, err := repository.NewOutboxRepository(f.db).GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	res, err := f.deposits.Approve(ctx, dep.DepositNo)
	require.NoError(t, err)
	assert.True(t, res.BonusGranted)
	assert.Equal(t, money.FromUnits(200), f.account(t, 1).Balance)
}

func TestWithdrawalApproveRollsBackOnStaleAccountVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := staleAccountReads(t, f.db)
	f.deposit(t, 1, money.FromUnits(50))

	w, err := f.submitWithdrawal(1, money.FromUnits(20))
	require.NoError(t, err)

	stale.Store(true)
	_, err = f.withdrawals.Approve(ctx, w.WithdrawalNo)
	assert.ErrorIs(t, err, ledger.ErrStorageFault)

	stored, err := f.withdrawals.Get(ctx, w.WithdrawalNo)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusPending, stored.Status)
	assert.Equal(t, money.FromUnits(50), f.account(t, 1).Balance)
}
