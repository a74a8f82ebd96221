package model

import (
	"time"

	"custody/pkg/money"
)

const (
	ActivityKindDeposit  = "Deposit"
	ActivityKindWithdraw = "Withdraw"

	ActivityStatusCompleted = "Completed"
)

// ActivityEvent 用户动态
//
// 只追加、不修改。每条已完成的余额变动对应一条，
// RequestNo 唯一，保证补偿任务重复写入时不会产生两条
type ActivityEvent struct {
	ID        int64        `gorm:"primaryKey;autoIncrement" json:"-"`
	RequestNo string       `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_no"`
	AccountID int64        `gorm:"not null;index:idx_activity_account_created,priority:1" json:"account_id"`
	Kind      string       `gorm:"type:varchar(16);not null" json:"type"`
	Token     string       `gorm:"type:varchar(16);not null" json:"token"`
	Amount    money.Amount `gorm:"not null" json:"amount"`
	Network   string       `gorm:"type:varchar(32)" json:"network"`
	Address   string       `gorm:"type:varchar(128)" json:"address,omitempty"`
	Status    string       `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt time.Time    `gorm:"not null;index:idx_activity_account_created,priority:2,sort:desc" json:"created_at"`
}

func (ActivityEvent) TableName() string {
	return "activity_event"
}
