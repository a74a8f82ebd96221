package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"custody/internal/model"
)

// ActivityRepository 用户动态，只提供追加和查询
type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Record 追加一条动态，同一 request_no 重复写入时忽略
func (r *ActivityRepository) Record(ctx context.Context, event *model.ActivityEvent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_no"}},
			DoNothing: true,
		}).
		Create(event).Error
}

// ListRecent 最新的在前
func (r *ActivityRepository) ListRecent(ctx context.Context, accountID int64, limit int) ([]*model.ActivityEvent, error) {
	events := make([]*model.ActivityEvent, 0, limit)
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
