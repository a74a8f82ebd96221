package model

import (
	"time"

	"custody/pkg/money"
)

// Account 用户托管账户
// 可用余额的唯一可信来源，ID 由身份系统分配，这里只做引用
type Account struct {
	ID               int64        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Balance          money.Amount `gorm:"not null;default:0" json:"balance"`            // 可用余额（最小单位）
	BonusUnlocked    bool         `gorm:"not null;default:false" json:"bonus_unlocked"` // 只能 false -> true
	BonusUsed        bool         `gorm:"not null;default:false" json:"bonus_used"`     // 预留给赠金核销
	WithdrawUnlockAt *time.Time   `json:"withdraw_unlock_at"`                           // 为空或已过期表示可提现
	Version          int          `gorm:"not null;default:0" json:"-"`                  // 乐观锁版本号
	CreatedAt        time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// IsWithdrawLocked 提现锁定判断
func (a *Account) IsWithdrawLocked(now time.Time) bool {
	return a.WithdrawUnlockAt != nil && now.Before(*a.WithdrawUnlockAt)
}
