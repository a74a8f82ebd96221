package service

import (
	"errors"

	"custody/internal/ledger"
	"custody/internal/repository"
)

const (
	kindDeposit    = "deposit"
	kindWithdrawal = "withdrawal"
)

// classify 把存储层错误翻译成业务错误，其余一律视为 STORAGE_FAULT
func classify(err error) error {
	if err == nil {
		return nil
	}
	var be *ledger.Error
	switch {
	case errors.As(err, &be), errors.Is(err, ledger.ErrStorageFault):
		return err
	case errors.Is(err, repository.ErrRequestNotFound), errors.Is(err, repository.ErrAccountNotFound):
		return ledger.ErrNotFound
	case errors.Is(err, repository.ErrRequestStatusInvalid):
		return ledger.ErrAlreadyProcessed
	default:
		return ledger.StorageFault(err)
	}
}
