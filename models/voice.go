package models

import (
	"time"

	"gorm.io/gorm"
)

// Voice is a named external voice identity. OrganizationID empty means the
// voice is global (visible to every organization).
type Voice struct {
	ID              string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name            string    `json:"name"`
	ProviderVoiceID string    `gorm:"index;type:varchar(64)" json:"providerVoiceId"`
	OrganizationID  string    `gorm:"index;type:varchar(64)" json:"organizationId"`
	PreviewURL      string    `json:"previewUrl"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (Voice) TableName() string {
	return "voice"
}

func CreateVoice(db *gorm.DB, v *Voice) error {
	now := time.Now()
	v.CreatedAt = now
	v.UpdatedAt = now
	return db.Create(v).Error
}

// ListVoicesForOrganization returns global voices plus voices scoped to the
// given organization. An empty orgID returns only global voices.
func ListVoicesForOrganization(db *gorm.DB, orgID string) ([]Voice, error) {
	var voices []Voice
	q := db.Order("created_at ASC")
	if orgID == "" {
		q = q.Where("organization_id = ''")
	} else {
		q = q.Where("organization_id = '' OR organization_id = ?", orgID)
	}
	if err := q.Find(&voices).Error; err != nil {
		return nil, err
	}
	return voices, nil
}

func GetVoiceByProviderID(db *gorm.DB, providerID string) (*Voice, error) {
	var v Voice
	if err := db.First(&v, "provider_voice_id = ?", providerID).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// UpsertVoiceByProviderID updates the catalog row for the provider voice id
// or creates it when missing. Used by voice seeding.
func UpsertVoiceByProviderID(db *gorm.DB, v *Voice) error {
	existing, err := GetVoiceByProviderID(db, v.ProviderVoiceID)
	if err == gorm.ErrRecordNotFound {
		return CreateVoice(db, v)
	}
	if err != nil {
		return err
	}
	return db.Model(existing).Updates(map[string]interface{}{
		"name":        v.Name,
		"preview_url": v.PreviewURL,
		"updated_at":  time.Now(),
	}).Error
}
