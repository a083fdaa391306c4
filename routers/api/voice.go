package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"BlockReel-server/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const previewText = "Hola, así es como sueno. Este es un adelanto de mi voz."

func ListVoices(c *gin.Context) {
	orgID := c.Query("organization_id")

	voices, err := models.ListVoicesForOrganization(db, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load voices failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"voices": voices, "total_voices": len(voices)})
}

// CloneVoice creates a voice identity from uploaded audio samples and
// registers it in the catalog. Preview synthesis is best-effort; a voice
// without a preview is still usable.
func CloneVoice(c *gin.Context) {
	name := c.PostForm("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	orgID := c.PostForm("organization_id")

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required: " + err.Error()})
		return
	}
	files := form.File["samples"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one sample is required"})
		return
	}

	workDir, err := os.MkdirTemp("", "clone-")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "workspace failed: " + err.Error()})
		return
	}
	defer os.RemoveAll(workDir)

	samplePaths := make([]string, 0, len(files))
	for i, fh := range files {
		path := filepath.Join(workDir, fmt.Sprintf("sample-%d%s", i, filepath.Ext(fh.Filename)))
		if err := c.SaveUploadedFile(fh, path); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save sample failed: " + err.Error()})
			return
		}
		samplePaths = append(samplePaths, path)
	}

	providerID, err := voice.CloneVoice(c.Request.Context(), name, samplePaths)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "voice clone failed: " + err.Error()})
		return
	}

	previewURL := ""
	if audio, err := voice.SynthesizeSpeech(c.Request.Context(), previewText, providerID); err != nil {
		log.Warn("preview synthesis failed", "provider_voice_id", providerID, "error", err.Error())
	} else {
		objectName := fmt.Sprintf("previews/%s.mp3", providerID)
		if _, err := storage.Upload(c.Request.Context(), objectName, audio, "audio/mpeg"); err != nil {
			log.Warn("preview upload failed", "provider_voice_id", providerID, "error", err.Error())
		} else {
			previewURL = storage.PublicURL(objectName)
		}
	}

	v := &models.Voice{
		ID:              uuid.NewString(),
		Name:            name,
		ProviderVoiceID: providerID,
		OrganizationID:  orgID,
		PreviewURL:      previewURL,
	}
	if err := models.CreateVoice(db, v); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save voice failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"voice": v})
}
