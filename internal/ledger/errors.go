package ledger

import (
	"errors"
	"fmt"
)

// Code 稳定的错误码，对外暴露，不随文案变化
type Code string

const (
	CodeInvalidAmount        Code = "INVALID_AMOUNT"
	CodeInvalidNetwork       Code = "INVALID_NETWORK"
	CodeInvalidAddress       Code = "INVALID_ADDRESS"
	CodeWithdrawLocked       Code = "WITHDRAW_LOCKED"
	CodeNotFound             Code = "NOT_FOUND"
	CodeAlreadyProcessed     Code = "ALREADY_PROCESSED"
	CodeInsufficientFunds    Code = "INSUFFICIENT_FUNDS"
	CodeStorageFault         Code = "STORAGE_FAULT"
	CodeActivityInconsistent Code = "ACTIVITY_INCONSISTENT"
)

// Error 业务错误
// 业务错误直接返回给调用方，不自动重试
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidAmount        = &Error{Code: CodeInvalidAmount, Message: "金额必须大于0"}
	ErrInvalidNetwork       = &Error{Code: CodeInvalidNetwork, Message: "不支持的网络"}
	ErrInvalidAddress       = &Error{Code: CodeInvalidAddress, Message: "提现地址不合法"}
	ErrWithdrawLocked       = &Error{Code: CodeWithdrawLocked, Message: "提现已锁定"}
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "记录不存在"}
	ErrAlreadyProcessed     = &Error{Code: CodeAlreadyProcessed, Message: "申请已处理"}
	ErrInsufficientFunds    = &Error{Code: CodeInsufficientFunds, Message: "余额不足"}
	ErrStorageFault         = &Error{Code: CodeStorageFault, Message: "存储异常"}
	ErrActivityInconsistent = &Error{Code: CodeActivityInconsistent, Message: "账本已提交，动态记录失败"}
)

// faultError 包装底层存储错误，errors.Is 可同时匹配 ErrStorageFault 和原始错误
type faultError struct {
	kind *Error
	err  error
}

func (e *faultError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind.Message, e.err)
}

func (e *faultError) Is(target error) bool {
	return target == e.kind
}

func (e *faultError) Unwrap() error {
	return e.err
}

// StorageFault 将存储层错误包装为 STORAGE_FAULT，业务错误原样返回
func StorageFault(err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return &faultError{kind: ErrStorageFault, err: err}
}

// Inconsistent 账本已提交但动态写入失败，需要对账
func Inconsistent(err error) error {
	return &faultError{kind: ErrActivityInconsistent, err: err}
}

// CodeOf 取出错误码，非业务错误归为 STORAGE_FAULT
func CodeOf(err error) Code {
	var fe *faultError
	if errors.As(err, &fe) {
		return fe.kind.Code
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeStorageFault
}
