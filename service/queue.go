package service

import (
	"encoding/json"
	"fmt"
	"time"

	"BlockReel-server/config"
	"BlockReel-server/logger"

	"github.com/hibiken/asynq"
)

const (
	TypeRenderBlock  = "block:render"
	TypeAssembleItem = "item:assemble"
)

type RenderBlockPayload struct {
	BlockID string `json:"block_id"`
	VoiceID string `json:"voice_id,omitempty"`
}

type AssembleItemPayload struct {
	ItemID string `json:"item_id"`
}

var QueueClient *asynq.Client

func InitQueue() {
	QueueClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.Redis.Addr,
		Password: config.AppConfig.Redis.Password,
	})
}

// EnqueueRenderBlock schedules one block render. Generation is slow, so
// the task gets a long timeout; failed renders are not retried blindly
// because the handler reports business failures as terminal.
func EnqueueRenderBlock(log *logger.Logger, blockID, voiceID string) error {
	payload, err := json.Marshal(RenderBlockPayload{BlockID: blockID, VoiceID: voiceID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}
	task := asynq.NewTask(TypeRenderBlock, payload,
		asynq.MaxRetry(2),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	info, err := QueueClient.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	log.Info("render task enqueued", "block_id", blockID, "task_id", info.ID)
	return nil
}

// EnqueueAssembleItem schedules the final stitch of an item's blocks.
func EnqueueAssembleItem(log *logger.Logger, itemID string) error {
	payload, err := json.Marshal(AssembleItemPayload{ItemID: itemID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}
	task := asynq.NewTask(TypeAssembleItem, payload,
		asynq.MaxRetry(1),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	info, err := QueueClient.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	log.Info("assembly task enqueued", "item_id", itemID, "task_id", info.ID)
	return nil
}
