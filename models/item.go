package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ItemStatusDraft     = "DRAFT"
	ItemStatusScripted  = "SCRIPTED"
	ItemStatusCompleted = "COMPLETED"
	ItemStatusFailed    = "FAILED"
)

// ContentItem owns an ordered set of blocks and, once assembled, the final
// stitched video reference.
type ContentItem struct {
	ID             string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OrganizationID string    `gorm:"index;type:varchar(64)" json:"organizationId"`
	Title          string    `json:"title"`
	Idea           string    `gorm:"type:text" json:"idea"`
	Status         string    `json:"status"`
	FinalVideoPath string    `json:"finalVideoPath"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (ContentItem) TableName() string {
	return "content_item"
}

func GetItemByID(db *gorm.DB, itemID string) (*ContentItem, error) {
	var item ContentItem
	if err := db.First(&item, "id = ?", itemID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func CreateItem(db *gorm.DB, item *ContentItem) error {
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	return db.Create(item).Error
}

func DeleteItemByID(db *gorm.DB, itemID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ?", itemID).Delete(&Block{}).Error; err != nil {
			return err
		}
		return tx.Delete(&ContentItem{}, "id = ?", itemID).Error
	})
}

func (i *ContentItem) UpdateFinalVideo(db *gorm.DB, path string) error {
	updates := map[string]interface{}{
		"final_video_path": path,
		"status":           ItemStatusCompleted,
		"updated_at":       time.Now(),
	}
	return db.Model(i).Updates(updates).Error
}
