package model

import (
	"time"

	"custody/pkg/money"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 事务消息表
// 与账本变更在同一事务中写入，由 OutboxSender 异步投递
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

const (
	LedgerEventDepositApproved    = "deposit.approved"
	LedgerEventWithdrawalApproved = "withdrawal.approved"
)

// LedgerEvent 账本变更事件，序列化后作为 OutboxMessage.Payload
type LedgerEvent struct {
	Event        string       `json:"event"`
	RequestNo    string       `json:"request_no"`
	AccountID    int64        `json:"account_id"`
	Amount       money.Amount `json:"amount"`
	Bonus        money.Amount `json:"bonus"`
	BalanceAfter money.Amount `json:"balance_after"`
	Network      string       `json:"network"`
	Address      string       `json:"address,omitempty"`
	OccurredAt   time.Time    `json:"occurred_at"`
}
