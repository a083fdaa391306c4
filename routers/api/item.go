package api

import (
	"errors"
	"net/http"
	"time"

	"BlockReel-server/models"
	"BlockReel-server/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func CreateItem(c *gin.Context) {
	var req struct {
		OrganizationID string `json:"organization_id"`
		Title          string `json:"title" binding:"required"`
		Idea           string `json:"idea"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item := &models.ContentItem{
		ID:             uuid.NewString(),
		OrganizationID: req.OrganizationID,
		Title:          req.Title,
		Idea:           req.Idea,
		Status:         models.ItemStatusDraft,
	}
	if err := models.CreateItem(db, item); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create item failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func GetItem(c *gin.Context) {
	itemID := c.Param("item_id")

	item, err := models.GetItemByID(db, itemID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found: " + err.Error()})
		return
	}
	blocks, err := models.GetBlocksByItemID(db, itemID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load blocks failed: " + err.Error()})
		return
	}

	resp := gin.H{"item": item, "blocks": blocks, "total_blocks": len(blocks)}
	if item.FinalVideoPath != "" {
		url, err := storage.SignedURL(c.Request.Context(), item.FinalVideoPath, 24*time.Hour)
		if err != nil {
			log.Warn("sign final video url failed", "item_id", itemID, "error", err.Error())
		} else {
			resp["final_video_url"] = url
		}
	}
	c.JSON(http.StatusOK, resp)
}

func DeleteItem(c *gin.Context) {
	itemID := c.Param("item_id")

	if _, err := models.GetItemByID(db, itemID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found: " + err.Error()})
		return
	}
	if err := models.DeleteItemByID(db, itemID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete item failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "item deleted", "item_id": itemID})
}

// GenerateItemScript asks the script generator for a block plan and replaces
// the item's blocks with it. Regeneration is a full replace.
func GenerateItemScript(c *gin.Context) {
	itemID := c.Param("item_id")

	var req struct {
		Intent string `json:"intent"`
		Draft  string `json:"draft"`
	}
	_ = c.ShouldBindJSON(&req)

	item, err := models.GetItemByID(db, itemID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found: " + err.Error()})
		return
	}

	draft := req.Draft
	if draft == "" {
		draft = item.Idea
	}
	drafts, err := scripts.GenerateScript(c.Request.Context(), req.Intent, draft)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "script generation failed: " + err.Error()})
		return
	}

	now := time.Now()
	blocks := make([]models.Block, len(drafts))
	for i, d := range drafts {
		blocks[i] = models.Block{
			ID:             uuid.NewString(),
			ItemID:         itemID,
			Order:          i,
			Kind:           d.Kind,
			DurationTarget: d.DurationTarget,
			Script:         d.Script,
			VisualPrompt:   d.VisualPrompt,
			Instructions:   d.Instructions,
			Status:         models.BlockStatusWaitingInput,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}
	if err := models.ReplaceBlocksForItem(db, itemID, blocks); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save blocks failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": itemID, "blocks": blocks, "total_blocks": len(blocks)})
}

// AssembleItem enqueues the final stitch. Refused while any block still
// lacks media so the caller learns immediately instead of from a dead task.
func AssembleItem(c *gin.Context) {
	itemID := c.Param("item_id")

	if _, err := models.GetItemByID(db, itemID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found: " + err.Error()})
		return
	}
	blocks, err := models.GetBlocksByItemID(db, itemID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load blocks failed: " + err.Error()})
		return
	}
	if len(blocks) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "item has no blocks"})
		return
	}

	if err := service.ValidateBlocksReady(blocks); err != nil {
		var unready *service.UnreadyBlocksError
		if errors.As(err, &unready) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   err.Error(),
				"unready": unready.Unready,
				"total":   unready.Total,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := service.EnqueueAssembleItem(log, itemID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "assembly task created", "item_id": itemID})
}
