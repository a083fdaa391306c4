package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"BlockReel-server/logger"
	"BlockReel-server/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeedVoices pulls the provider's voice catalog into the local table so the
// frontend can list voices without touching the provider. Preview audio is
// copied into our own bucket; a missing preview is not fatal.
func SeedVoices(ctx context.Context, db *gorm.DB, voice *VoiceClient, storage *ObjectStorage, log *logger.Logger) error {
	catalog, err := voice.ListVoices(ctx)
	if err != nil {
		return fmt.Errorf("fetch voice catalog: %w", err)
	}

	httpClient := &http.Client{Timeout: time.Minute}
	seeded := 0
	for _, pv := range catalog {
		previewURL := ""
		if pv.PreviewURL != "" {
			previewURL = copyPreview(ctx, httpClient, storage, pv, log)
		}

		v := &models.Voice{
			ID:              uuid.NewString(),
			Name:            pv.Name,
			ProviderVoiceID: pv.VoiceID,
			PreviewURL:      previewURL,
		}
		if err := models.UpsertVoiceByProviderID(db, v); err != nil {
			log.Warn("voice upsert failed", "provider_voice_id", pv.VoiceID, "error", err.Error())
			continue
		}
		seeded++
	}
	log.Info("voice catalog seeded", "total", len(catalog), "seeded", seeded)
	return nil
}

func copyPreview(ctx context.Context, client *http.Client, storage *ObjectStorage, pv ProviderVoice, log *logger.Logger) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pv.PreviewURL, nil)
	if err != nil {
		return ""
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Warn("preview download failed", "provider_voice_id", pv.VoiceID, "error", err.Error())
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warn("preview download failed", "provider_voice_id", pv.VoiceID, "status", resp.StatusCode)
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return ""
	}

	objectName := fmt.Sprintf("previews/%s.mp3", pv.VoiceID)
	if _, err := storage.Upload(ctx, objectName, data, "audio/mpeg"); err != nil {
		log.Warn("preview upload failed", "provider_voice_id", pv.VoiceID, "error", err.Error())
		return ""
	}
	return storage.PublicURL(objectName)
}
