package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"custody/internal/model"
)

var (
	ErrRequestNotFound      = errors.New("申请不存在")
	ErrRequestStatusInvalid = errors.New("申请状态不合法")
)

type DepositRepository struct {
	db *gorm.DB
}

func NewDepositRepository(db *gorm.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

func (r *DepositRepository) Create(ctx context.Context, tx *gorm.DB, deposit *model.DepositRequest) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(deposit).Error
}

func (r *DepositRepository) GetByNo(ctx context.Context, depositNo string) (*model.DepositRequest, error) {
	var deposit model.DepositRequest
	err := r.db.WithContext(ctx).Where("deposit_no = ?", depositNo).First(&deposit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &deposit, nil
}

func (r *DepositRepository) GetByNoForUpdate(ctx context.Context, tx *gorm.DB, depositNo string) (*model.DepositRequest, error) {
	var deposit model.DepositRequest
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("deposit_no = ?", depositNo).
		First(&deposit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &deposit, nil
}

// UpdateStatus 状态 CAS，只有仍处于 from 状态的那一次更新会成功
func (r *DepositRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, depositNo string, from, to model.RequestStatus, at time.Time) error {
	if !from.CanTransitionTo(to) {
		return ErrRequestStatusInvalid
	}
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.DepositRequest{}).
		Where("deposit_no = ? AND status = ?", depositNo, from).
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

// ListByStatus 待审核队列按提交时间正序
func (r *DepositRepository) ListByStatus(ctx context.Context, status model.RequestStatus, limit int) ([]*model.DepositRequest, error) {
	var deposits []*model.DepositRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&deposits).Error
	return deposits, err
}

func (r *DepositRepository) CountByStatus(ctx context.Context, status model.RequestStatus) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.DepositRequest{}).Where("status = ?", status).Count(&total).Error
	return total, err
}

// ListApprovedWithoutActivity 已入账但缺少动态记录的充值
func (r *DepositRepository) ListApprovedWithoutActivity(ctx context.Context, limit int) ([]*model.DepositRequest, error) {
	var deposits []*model.DepositRequest
	err := r.db.WithContext(ctx).
		Table(model.DepositRequest{}.TableName()+" AS d").
		Select("d.*").
		Joins("LEFT JOIN "+model.ActivityEvent{}.TableName()+" a ON a.request_no = d.deposit_no").
		Where("d.status = ? AND a.id IS NULL", model.RequestStatusApproved).
		Order("d.id ASC").
		Limit(limit).
		Find(&deposits).Error
	return deposits, err
}
