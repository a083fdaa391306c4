package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"BlockReel-server/models"
	"BlockReel-server/service"

	"github.com/gin-gonic/gin"
)

func ListBlocks(c *gin.Context) {
	itemID := c.Param("item_id")

	blocks, err := models.GetBlocksByItemID(db, itemID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load blocks failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": itemID, "blocks": blocks, "total_blocks": len(blocks)})
}

func GetBlockDetail(c *gin.Context) {
	blockID := c.Param("block_id")

	block, err := models.GetBlockByID(db, blockID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found: " + err.Error()})
		return
	}

	resp := gin.H{"block": block}
	if block.GeneratedPath != "" {
		if url, err := storage.SignedURL(c.Request.Context(), block.GeneratedPath, 24*time.Hour); err == nil {
			resp["generated_url"] = url
		}
	}
	if block.InputMediaPath != "" {
		if url, err := storage.SignedURL(c.Request.Context(), block.InputMediaPath, 24*time.Hour); err == nil {
			resp["input_media_url"] = url
		}
	}
	c.JSON(http.StatusOK, resp)
}

// mediaKindFor maps an upload extension to the stored media kind. Anything
// outside the accepted set is rejected.
func mediaKindFor(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".mov", ".webm":
		return models.MediaKindVideo, nil
	case ".png", ".jpg", ".jpeg", ".webp":
		return models.MediaKindImage, nil
	default:
		return "", fmt.Errorf("unsupported media type %q", filepath.Ext(filename))
	}
}

// UploadBlockInput stores user media for a block. A video input replaces
// generation entirely; an image input seeds it.
func UploadBlockInput(c *gin.Context) {
	blockID := c.Param("block_id")

	block, err := models.GetBlockByID(db, blockID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found: " + err.Error()})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required: " + err.Error()})
		return
	}
	kind, err := mediaKindFor(fileHeader.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "open upload failed: " + err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read upload failed: " + err.Error()})
		return
	}

	objectName := fmt.Sprintf("inputs/%s%s", blockID, strings.ToLower(filepath.Ext(fileHeader.Filename)))
	storedPath, err := storage.Upload(c.Request.Context(), objectName, data, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store upload failed: " + err.Error()})
		return
	}
	if err := block.UpdateInput(db, storedPath, kind); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update block failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"block_id": blockID, "input_media_path": storedPath, "input_media_kind": kind})
}

// RenderBlock enqueues clip generation for one block.
func RenderBlock(c *gin.Context) {
	blockID := c.Param("block_id")

	var req struct {
		VoiceID string `json:"voice_id" form:"voice_id"`
	}
	_ = c.ShouldBind(&req)

	block, err := models.GetBlockByID(db, blockID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found: " + err.Error()})
		return
	}
	if block.InputMediaKind == models.MediaKindVideo {
		c.JSON(http.StatusBadRequest, gin.H{"error": "block has a video input and is used as-is"})
		return
	}

	if req.VoiceID != "" {
		if _, err := models.GetVoiceByProviderID(db, req.VoiceID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown voice: " + req.VoiceID})
			return
		}
	}

	if err := service.EnqueueRenderBlock(log, blockID, req.VoiceID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "render task created", "block_id": blockID})
}
