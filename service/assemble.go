package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"BlockReel-server/models"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"
)

// UnreadyBlocksError reports how many blocks cannot contribute media when
// final assembly is requested.
type UnreadyBlocksError struct {
	Unready int
	Total   int
}

func (e *UnreadyBlocksError) Error() string {
	return fmt.Sprintf("%d of %d blocks are not ready for assembly", e.Unready, e.Total)
}

// ValidateBlocksReady reports whether every block can contribute media to
// the final cut. Returns an *UnreadyBlocksError otherwise.
func ValidateBlocksReady(blocks []models.Block) error {
	_, err := collectClipRefs(blocks)
	return err
}

// clipRef is one block's contribution to the final cut, in timeline order.
type clipRef struct {
	BlockID    string
	ObjectPath string
}

// collectClipRefs validates that every block is in a terminal-good state
// with usable media and returns the ordered clip list. Completed blocks
// contribute their generated clip; ready video-input blocks contribute the
// upload as-is. Anything else, a stale generated path on a FAILED or
// PROCESSING block included, counts as unready.
func collectClipRefs(blocks []models.Block) ([]clipRef, error) {
	refs := make([]clipRef, 0, len(blocks))
	unready := 0
	for _, b := range blocks {
		switch {
		case b.Status == models.BlockStatusCompleted && b.GeneratedPath != "":
			refs = append(refs, clipRef{BlockID: b.ID, ObjectPath: b.GeneratedPath})
		case b.Status == models.BlockStatusReady && b.InputMediaKind == models.MediaKindVideo && b.InputMediaPath != "":
			refs = append(refs, clipRef{BlockID: b.ID, ObjectPath: b.InputMediaPath})
		default:
			unready++
		}
	}
	if unready > 0 {
		return nil, &UnreadyBlocksError{Unready: unready, Total: len(blocks)}
	}
	return refs, nil
}

// HandleAssembleItem stitches an item's block clips into the final video:
// validate readiness, download every clip, trim-and-concat, upload. An
// assembly failure surfaces the error and leaves the item's status alone;
// the item only changes state on success.
func (p *Processor) HandleAssembleItem(ctx context.Context, t *asynq.Task) error {
	var payload AssembleItemPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	item, err := models.GetItemByID(p.DB, payload.ItemID)
	if err != nil {
		return fmt.Errorf("item %s not found: %v: %w", payload.ItemID, err, asynq.SkipRetry)
	}
	log := p.log.With("item_id", item.ID)

	blocks, err := models.GetBlocksByItemID(p.DB, item.ID)
	if err != nil {
		return fmt.Errorf("load blocks: %w", err)
	}
	if len(blocks) == 0 {
		return fmt.Errorf("item %s has no blocks: %w", item.ID, asynq.SkipRetry)
	}

	refs, err := collectClipRefs(blocks)
	if err != nil {
		log.Warn("assembly refused", "error", err.Error())
		return fmt.Errorf("item %s: %v: %w", item.ID, err, asynq.SkipRetry)
	}

	storedPath, err := p.assembleAndStore(ctx, item.ID, refs)
	if err != nil {
		log.Error("item assembly failed", "error", err.Error())
		return fmt.Errorf("assemble item %s: %v: %w", item.ID, err, asynq.SkipRetry)
	}

	if err := item.UpdateFinalVideo(p.DB, storedPath); err != nil {
		return fmt.Errorf("persist final video: %w", err)
	}
	log.Info("item assembly completed", "path", storedPath, "clips", len(refs))
	return nil
}

// assembleAndStore owns the workspace for one assembly: stage, stitch,
// upload. The workspace is removed on every exit path.
func (p *Processor) assembleAndStore(ctx context.Context, itemID string, refs []clipRef) (string, error) {
	workDir, err := os.MkdirTemp("", "assemble-")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workDir)

	finalPath, err := p.assembleClips(ctx, refs, workDir)
	if err != nil {
		return "", err
	}
	finalBytes, err := os.ReadFile(finalPath)
	if err != nil {
		return "", fmt.Errorf("read final video: %w", err)
	}
	return p.Storage.Upload(ctx, fmt.Sprintf("renders/%s.mp4", itemID), finalBytes, "video/mp4")
}

// assembleClips stages every clip into the workspace in timeline order and
// stitches them into one file. Downloads run in parallel; the index keeps
// the order stable.
func (p *Processor) assembleClips(ctx context.Context, refs []clipRef, workDir string) (string, error) {
	localPaths := make([]string, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			data, err := p.Storage.Download(gctx, ref.ObjectPath)
			if err != nil {
				return fmt.Errorf("download clip for block %s: %w", ref.BlockID, err)
			}
			path := filepath.Join(workDir, fmt.Sprintf("clip-%03d.mp4", i))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("stage clip for block %s: %w", ref.BlockID, err)
			}
			localPaths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	finalPath := filepath.Join(workDir, "final.mp4")
	if err := p.Engine.Stitch(ctx, localPaths, finalPath, p.Trim); err != nil {
		return "", err
	}
	return finalPath, nil
}
