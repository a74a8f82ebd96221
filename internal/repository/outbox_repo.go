package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"custody/internal/model"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// CreateEvent 在账本事务内写入待投递事件
func (r *OutboxRepository) CreateEvent(ctx context.Context, tx *gorm.DB, topic string, event *model.LedgerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化账本事件失败: %w", err)
	}
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(&model.OutboxMessage{
		MessageKey: event.RequestNo,
		Topic:      topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}).Error
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Update("status", model.OutboxStatusSent).Error
}

// RecordFailure 重试次数加一，达到上限后标记为 FAILED，返回是否已放弃
func (r *OutboxRepository) RecordFailure(ctx context.Context, msg *model.OutboxMessage, maxRetries int) (bool, error) {
	retries := msg.RetryCount + 1
	updates := map[string]interface{}{"retry_count": retries}
	failed := maxRetries > 0 && retries >= maxRetries
	if failed {
		updates["status"] = model.OutboxStatusFailed
	}

	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", msg.ID).
		Updates(updates).Error
	if err != nil {
		return false, err
	}
	msg.RetryCount = retries
	return failed, nil
}

func (r *OutboxRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}
