package model

// Campaign 赠金活动计数，每有一个账户解锁赠金加一
type Campaign struct {
	ID    int64 `gorm:"primaryKey;autoIncrement:false" json:"-"`
	Count int64 `gorm:"not null;default:0" json:"count"`
}

// DefaultCampaignID 目前只有一个活动
const DefaultCampaignID = 1

func (Campaign) TableName() string {
	return "campaign"
}
