package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"BlockReel-server/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type progressSnapshot struct {
	ItemID     string          `json:"item_id"`
	ItemStatus string          `json:"item_status"`
	Completed  int             `json:"completed_blocks"`
	Total      int             `json:"total_blocks"`
	Blocks     []blockProgress `json:"blocks"`
}

type blockProgress struct {
	ID     string `json:"id"`
	Order  int    `json:"order"`
	Status string `json:"status"`
}

func snapshotItem(itemID string) (*progressSnapshot, error) {
	item, err := models.GetItemByID(db, itemID)
	if err != nil {
		return nil, err
	}
	blocks, err := models.GetBlocksByItemID(db, itemID)
	if err != nil {
		return nil, err
	}

	snap := &progressSnapshot{
		ItemID:     item.ID,
		ItemStatus: item.Status,
		Total:      len(blocks),
		Blocks:     make([]blockProgress, len(blocks)),
	}
	for i, b := range blocks {
		snap.Blocks[i] = blockProgress{ID: b.ID, Order: b.Order, Status: b.Status}
		if b.Status == models.BlockStatusCompleted {
			snap.Completed++
		}
	}
	return snap, nil
}

func (s *progressSnapshot) fingerprint() string {
	var sb strings.Builder
	sb.WriteString(s.ItemStatus)
	for _, b := range s.Blocks {
		fmt.Fprintf(&sb, "|%s=%s", b.ID, b.Status)
	}
	return sb.String()
}

// ItemProgressWebSocket streams item and block status over a websocket.
// Status lives in the database; this endpoint only polls and pushes, the
// queue workers do the actual writes.
func ItemProgressWebSocket(c *gin.Context) {
	itemID := c.Param("item_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "websocket upgrade failed"})
		return
	}
	defer conn.Close()

	snap, err := snapshotItem(itemID)
	if err != nil {
		_ = conn.WriteJSON(gin.H{"error": "item not found: " + err.Error()})
		return
	}
	if err := conn.WriteJSON(snap); err != nil {
		return
	}
	prev := snap.fingerprint()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		cur, err := snapshotItem(itemID)
		if err != nil {
			continue
		}
		if fp := cur.fingerprint(); fp != prev {
			if err := conn.WriteJSON(cur); err != nil {
				break
			}
			prev = fp
		}
		if cur.ItemStatus == models.ItemStatusCompleted || cur.ItemStatus == models.ItemStatusFailed {
			break
		}
	}
}
