package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"custody/internal/model"
)

type CampaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Increment 与赠金发放在同一事务内计数
func (r *CampaignRepository) Increment(ctx context.Context, tx *gorm.DB) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"count": gorm.Expr(model.Campaign{}.TableName() + ".count + 1"),
			}),
		}).
		Create(&model.Campaign{ID: model.DefaultCampaignID, Count: 1}).Error
}

func (r *CampaignRepository) Count(ctx context.Context) (int64, error) {
	var campaign model.Campaign
	err := r.db.WithContext(ctx).Where("id = ?", model.DefaultCampaignID).First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return campaign.Count, nil
}
