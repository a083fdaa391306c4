package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	BlockStatusWaitingInput = "WAITING_INPUT"
	BlockStatusReady        = "READY"
	BlockStatusProcessing   = "PROCESSING"
	BlockStatusCompleted    = "COMPLETED"
	BlockStatusFailed       = "FAILED"

	BlockKindNarrator = "NARRATOR"
	BlockKindShowcase = "SHOWCASE"

	MediaKindVideo = "VIDEO"
	MediaKindImage = "IMAGE"
)

// Block is one scene/shot of a content item. Blocks with a VIDEO input are
// used as-is and never go through clip generation.
type Block struct {
	ID             string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ItemID         string    `gorm:"index;type:varchar(64)" json:"itemId"`
	Order          int       `gorm:"column:sort_order" json:"order"`
	Kind           string    `json:"kind"`
	DurationTarget int       `json:"durationTarget"`
	Script         string    `gorm:"type:text" json:"script"`
	VisualPrompt   string    `gorm:"type:text" json:"visualPrompt"`
	Instructions   string    `gorm:"type:text" json:"instructions"`
	InputMediaPath string    `json:"inputMediaPath"`
	InputMediaKind string    `json:"inputMediaKind"`
	GeneratedPath  string    `json:"generatedPath"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (Block) TableName() string {
	return "video_block"
}

// NormalizedDuration coerces the target duration into the set the clip
// generator accepts. Out-of-range values fall back to 6 seconds instead of
// failing the render.
func (b *Block) NormalizedDuration() int {
	switch b.DurationTarget {
	case 4, 6, 8:
		return b.DurationTarget
	default:
		return 6
	}
}

func GetBlockByID(db *gorm.DB, blockID string) (*Block, error) {
	var block Block
	if err := db.First(&block, "id = ?", blockID).Error; err != nil {
		return nil, err
	}
	return &block, nil
}

func GetBlocksByItemID(db *gorm.DB, itemID string) ([]Block, error) {
	var blocks []Block
	if err := db.Where("item_id = ?", itemID).Order("sort_order ASC").Find(&blocks).Error; err != nil {
		return nil, err
	}
	return blocks, nil
}

func BatchCreateBlocks(db *gorm.DB, blocks []Block) error {
	if len(blocks) == 0 {
		return nil
	}
	return db.Create(&blocks).Error
}

// ReplaceBlocksForItem deletes every block of the item and recreates the
// given set in one transaction. Script regeneration is a full replace,
// never a patch.
func ReplaceBlocksForItem(db *gorm.DB, itemID string, blocks []Block) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ?", itemID).Delete(&Block{}).Error; err != nil {
			return err
		}
		if len(blocks) == 0 {
			return nil
		}
		if err := tx.Create(&blocks).Error; err != nil {
			return err
		}
		return tx.Model(&ContentItem{}).Where("id = ?", itemID).Updates(map[string]interface{}{
			"status":     ItemStatusScripted,
			"updated_at": time.Now(),
		}).Error
	})
}

func (b *Block) UpdateStatus(db *gorm.DB, status string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	return db.Model(b).Updates(updates).Error
}

func (b *Block) UpdateInput(db *gorm.DB, mediaPath, mediaKind string) error {
	updates := map[string]interface{}{
		"input_media_path": mediaPath,
		"input_media_kind": mediaKind,
		"status":           BlockStatusReady,
		"updated_at":       time.Now(),
	}
	return db.Model(b).Updates(updates).Error
}

func (b *Block) UpdateGenerated(db *gorm.DB, generatedPath string) error {
	updates := map[string]interface{}{
		"generated_path": generatedPath,
		"status":         BlockStatusCompleted,
		"updated_at":     time.Now(),
	}
	return db.Model(b).Updates(updates).Error
}
