package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"custody/internal/model"
)

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *gorm.DB, withdrawal *model.WithdrawalRequest) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(withdrawal).Error
}

func (r *WithdrawalRepository) GetByNo(ctx context.Context, withdrawalNo string) (*model.WithdrawalRequest, error) {
	var withdrawal model.WithdrawalRequest
	err := r.db.WithContext(ctx).Where("withdrawal_no = ?", withdrawalNo).First(&withdrawal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &withdrawal, nil
}

func (r *WithdrawalRepository) GetByNoForUpdate(ctx context.Context, tx *gorm.DB, withdrawalNo string) (*model.WithdrawalRequest, error) {
	var withdrawal model.WithdrawalRequest
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("withdrawal_no = ?", withdrawalNo).
		First(&withdrawal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &withdrawal, nil
}

func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, withdrawalNo string, from, to model.RequestStatus, at time.Time) error {
	if !from.CanTransitionTo(to) {
		return ErrRequestStatusInvalid
	}
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.WithdrawalRequest{}).
		Where("withdrawal_no = ? AND status = ?", withdrawalNo, from).
		Updates(map[string]interface{}{
			"status":       to,
			"processed_at": at,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRequestStatusInvalid
	}
	return nil
}

// List 按提交时间倒序，status 为空时返回全部
func (r *WithdrawalRepository) List(ctx context.Context, status model.RequestStatus, limit int) ([]*model.WithdrawalRequest, error) {
	var withdrawals []*model.WithdrawalRequest
	query := r.db.WithContext(ctx)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&withdrawals).Error
	return withdrawals, err
}

func (r *WithdrawalRepository) CountByStatus(ctx context.Context, status model.RequestStatus) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.WithdrawalRequest{}).Where("status = ?", status).Count(&total).Error
	return total, err
}

func (r *WithdrawalRepository) ListApprovedWithoutActivity(ctx context.Context, limit int) ([]*model.WithdrawalRequest, error) {
	var withdrawals []*model.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Table(model.WithdrawalRequest{}.TableName()+" AS w").
		Select("w.*").
		Joins("LEFT JOIN "+model.ActivityEvent{}.TableName()+" a ON a.request_no = w.withdrawal_no").
		Where("w.status = ? AND a.id IS NULL", model.RequestStatusApproved).
		Order("w.id ASC").
		Limit(limit).
		Find(&withdrawals).Error
	return withdrawals, err
}
