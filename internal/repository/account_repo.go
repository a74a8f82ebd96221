package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"custody/internal/model"
)

var (
	ErrAccountNotFound = errors.New("账户不存在")
	ErrOptimisticLock  = errors.New("乐观锁冲突，请重试")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByIDForUpdate 事务内加行锁读取
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetOrCreateForUpdate 账户不存在时创建空账户，然后加行锁读取
func (r *AccountRepository) GetOrCreateForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&model.Account{ID: id}).Error
	if err != nil {
		return nil, err
	}
	return r.GetByIDForUpdate(ctx, tx, id)
}

// Save 写回账本字段，version 不匹配说明读到的是旧数据
func (r *AccountRepository) Save(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	if account.Balance < 0 {
		return errors.New("余额不能为负数")
	}

	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND version = ?", account.ID, account.Version).
		Updates(map[string]interface{}{
			"balance":            account.Balance,
			"bonus_unlocked":     account.BonusUnlocked,
			"bonus_used":         account.BonusUsed,
			"withdraw_unlock_at": account.WithdrawUnlockAt,
			"version":            gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	account.Version++
	return nil
}

func (r *AccountRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Account{}).Count(&total).Error
	return total, err
}
