package model

import (
	"time"

	"custody/pkg/money"
)

// RequestStatus 充值/提现申请状态
//
// pending -> approved | rejected，终态不可再迁移
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

var validRequestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending: {RequestStatusApproved, RequestStatusRejected},
}

func (s RequestStatus) CanTransitionTo(target RequestStatus) bool {
	for _, allowed := range validRequestTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected
}

func ParseRequestStatus(s string) (RequestStatus, bool) {
	switch RequestStatus(s) {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected:
		return RequestStatus(s), true
	}
	return "", false
}

// DepositRequest 充值申请，用户提交，管理员审核
type DepositRequest struct {
	ID          int64         `gorm:"primaryKey;autoIncrement" json:"-"`
	DepositNo   string        `gorm:"type:varchar(64);uniqueIndex;not null" json:"deposit_no"`
	AccountID   int64         `gorm:"not null;index:idx_deposit_account_status,priority:1" json:"account_id"`
	Amount      money.Amount  `gorm:"not null" json:"amount"`
	Network     string        `gorm:"type:varchar(32)" json:"network"` // 链下结算用的元数据，不做校验
	Status      RequestStatus `gorm:"type:varchar(20);not null;index;index:idx_deposit_account_status,priority:2" json:"status"`
	ProcessedAt *time.Time    `json:"processed_at"`
	CreatedAt   time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DepositRequest) TableName() string {
	return "deposit_request"
}

// WithdrawalRequest 提现申请
type WithdrawalRequest struct {
	ID           int64         `gorm:"primaryKey;autoIncrement" json:"-"`
	WithdrawalNo string        `gorm:"type:varchar(64);uniqueIndex;not null" json:"withdrawal_no"`
	AccountID    int64         `gorm:"not null;index:idx_withdrawal_account_status,priority:1" json:"account_id"`
	Amount       money.Amount  `gorm:"not null" json:"amount"`
	Network      string        `gorm:"type:varchar(16);not null" json:"network"`
	Address      string        `gorm:"type:varchar(128);not null" json:"address"`
	Status       RequestStatus `gorm:"type:varchar(20);not null;index;index:idx_withdrawal_account_status,priority:2" json:"status"`
	ProcessedAt  *time.Time    `json:"processed_at"`
	CreatedAt    time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_request"
}

// 支持的提现网络
const (
	NetworkERC20 = "ERC20"
	NetworkTRC20 = "TRC20"
	NetworkBEP20 = "BEP20"
)

func IsSupportedNetwork(network string) bool {
	switch network {
	case NetworkERC20, NetworkTRC20, NetworkBEP20:
		return true
	}
	return false
}
