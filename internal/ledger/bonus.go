package ledger

import "custody/pkg/money"

// BonusPolicy 首充赠金规则
//
// 账户未解锁赠金且单笔充值 >= Threshold 时赠送固定 Amount，否则不赠送
type BonusPolicy struct {
	Threshold money.Amount
	Amount    money.Amount
}

func DefaultBonusPolicy() BonusPolicy {
	return BonusPolicy{
		Threshold: money.FromUnits(100),
		Amount:    money.FromUnits(100),
	}
}

// Decide 必须使用本次审核事务内读到的账户状态
func (p BonusPolicy) Decide(depositAmount money.Amount, alreadyUnlocked bool) money.Amount {
	if alreadyUnlocked || p.Amount <= 0 {
		return 0
	}
	if depositAmount < p.Threshold {
		return 0
	}
	return p.Amount
}
