package ledger

import (
	"math"
	"time"

	"custody/internal/model"
	"custody/pkg/money"
)

// DefaultLockDuration 赠金到账后提现锁定时长
const DefaultLockDuration = 2 * time.Hour

// Engine 账本引擎，只做纯计算，不访问存储
//
// 状态校验（pending -> approved 只发生一次）由调用方在同一事务里完成，
// 这里信任调用方，不重复检查申请状态
type Engine struct {
	Bonus        BonusPolicy
	LockDuration time.Duration
}

func NewEngine(bonus BonusPolicy, lockDuration time.Duration) *Engine {
	if lockDuration <= 0 {
		lockDuration = DefaultLockDuration
	}
	return &Engine{Bonus: bonus, LockDuration: lockDuration}
}

// DepositResult 充值入账结果
type DepositResult struct {
	Account      model.Account
	Bonus        money.Amount
	BonusGranted bool
}

// ApplyApprovedDeposit 充值入账：余额 += 充值金额 + 赠金
// 发放赠金时同时解锁赠金标记，并锁定提现 LockDuration
func (e *Engine) ApplyApprovedDeposit(account model.Account, deposit model.DepositRequest, now time.Time) (DepositResult, error) {
	if !deposit.Amount.IsPositive() {
		return DepositResult{}, ErrInvalidAmount
	}

	bonus := e.Bonus.Decide(deposit.Amount, account.BonusUnlocked)
	credit := deposit.Amount + bonus
	if credit < deposit.Amount || account.Balance > money.Amount(math.MaxInt64)-credit {
		return DepositResult{}, ErrInvalidAmount
	}

	account.Balance += credit
	if bonus > 0 {
		account.BonusUnlocked = true
		account = e.ApplyWithdrawalLock(account, now)
	}

	return DepositResult{
		Account:      account,
		Bonus:        bonus,
		BonusGranted: bonus > 0,
	}, nil
}

// ApplyApprovedWithdrawal 提现扣款
// 提交时已校验过余额，但审核前余额可能变化，这里再校验一次
func (e *Engine) ApplyApprovedWithdrawal(account model.Account, withdrawal model.WithdrawalRequest) (model.Account, error) {
	if !withdrawal.Amount.IsPositive() {
		return account, ErrInvalidAmount
	}
	if account.Balance < withdrawal.Amount {
		return account, ErrInsufficientFunds
	}
	account.Balance -= withdrawal.Amount
	return account, nil
}

// ApplyWithdrawalLock 设置提现解锁时间 now + LockDuration
func (e *Engine) ApplyWithdrawalLock(account model.Account, now time.Time) model.Account {
	unlockAt := now.Add(e.LockDuration)
	account.WithdrawUnlockAt = &unlockAt
	return account
}

// IsWithdrawLocked 解锁时间存在且未到
func IsWithdrawLocked(account model.Account, now time.Time) bool {
	return account.IsWithdrawLocked(now)
}
