package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"BlockReel-server/config"
	"BlockReel-server/logger"
	"BlockReel-server/media"
	"BlockReel-server/models"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

// ErrVideoInputBlock rejects render requests for blocks whose input is
// already a video. Those are reused as-is during final assembly.
var ErrVideoInputBlock = errors.New("block has a VIDEO input and cannot be generated")

// BlobStorage is the object-storage boundary the pipeline needs.
type BlobStorage interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, objectName string) ([]byte, error)
	SignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// ClipGenerator produces one clip per request via an asynchronous upstream job.
type ClipGenerator interface {
	Generate(ctx context.Context, req ClipRequest) ([]byte, error)
}

// VoiceAdapter is the voice-service boundary (transform, align, clone, TTS).
type VoiceAdapter interface {
	TransformVoice(ctx context.Context, audioPath, voiceID string) ([]byte, error)
	AlignAudio(ctx context.Context, audio []byte, transcript string) (media.Alignment, error)
	CloneVoice(ctx context.Context, name string, samplePaths []string) (string, error)
	SynthesizeSpeech(ctx context.Context, text, voiceID string) ([]byte, error)
}

// MediaEngine is the subset of the process runner the orchestrators drive.
type MediaEngine interface {
	Stitch(ctx context.Context, inputPaths []string, outputPath string, policy media.TrimPolicy) error
	ExtractAudio(ctx context.Context, videoPath, outputPath string) error
	ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string) error
	BurnCaptions(ctx context.Context, videoPath, subtitlePath, outputPath string) error
}

// Processor consumes render and assembly tasks from the queue. Each task
// runs as one sequential pipeline; concurrency happens across tasks.
type Processor struct {
	DB      *gorm.DB
	Storage BlobStorage
	Clips   ClipGenerator
	Voice   VoiceAdapter
	Engine  MediaEngine
	Trim    media.TrimPolicy
	log     *logger.Logger
}

func NewProcessor(db *gorm.DB, storage BlobStorage, clips ClipGenerator, voice VoiceAdapter, engine MediaEngine, trim media.TrimPolicy, log *logger.Logger) *Processor {
	return &Processor{
		DB:      db,
		Storage: storage,
		Clips:   clips,
		Voice:   voice,
		Engine:  engine,
		Trim:    trim,
		log:     log.With("service", "processor"),
	}
}

// StartProcessor runs the queue consumer in the background.
func (p *Processor) StartProcessor(concurrency int) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     config.AppConfig.Redis.Addr,
			Password: config.AppConfig.Redis.Password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeRenderBlock, p.HandleRenderBlock)
	mux.HandleFunc(TypeAssembleItem, p.HandleAssembleItem)

	p.log.Info("starting task processor", "concurrency", concurrency)
	go func() {
		if err := srv.Run(mux); err != nil {
			p.log.Fatal("task processor stopped", "error", err.Error())
		}
	}()
}

// HandleRenderBlock drives one block through the render state machine:
// generate, optionally re-voice, optionally caption, persist.
func (p *Processor) HandleRenderBlock(ctx context.Context, t *asynq.Task) error {
	var payload RenderBlockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	block, err := models.GetBlockByID(p.DB, payload.BlockID)
	if err != nil {
		return fmt.Errorf("block %s not found: %v: %w", payload.BlockID, err, asynq.SkipRetry)
	}
	log := p.log.With("block_id", block.ID, "item_id", block.ItemID)

	if block.InputMediaKind == models.MediaKindVideo {
		return fmt.Errorf("block %s: %v: %w", block.ID, ErrVideoInputBlock, asynq.SkipRetry)
	}

	// Durable before any external call.
	if err := block.UpdateStatus(p.DB, models.BlockStatusProcessing); err != nil {
		return fmt.Errorf("mark block processing: %w", err)
	}

	storedPath, err := p.renderAndStore(ctx, block, payload.VoiceID)
	if err != nil {
		p.failBlock(block, log, err)
		return fmt.Errorf("render block %s: %v: %w", block.ID, err, asynq.SkipRetry)
	}

	if err := block.UpdateGenerated(p.DB, storedPath); err != nil {
		return fmt.Errorf("persist rendered clip: %w", err)
	}
	log.Info("block render completed", "path", storedPath)
	return nil
}

// renderAndStore owns the workspace for one render: generate, post-process,
// upload. The workspace is removed on every exit path.
func (p *Processor) renderAndStore(ctx context.Context, block *models.Block, voiceID string) (string, error) {
	workDir, err := os.MkdirTemp("", "render-")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workDir)

	clipPath, err := p.renderClip(ctx, block, voiceID, workDir)
	if err != nil {
		return "", err
	}
	clipBytes, err := os.ReadFile(clipPath)
	if err != nil {
		return "", fmt.Errorf("read rendered clip: %w", err)
	}
	return p.Storage.Upload(ctx, fmt.Sprintf("generated/%s.mp4", block.ID), clipBytes, "video/mp4")
}

func (p *Processor) failBlock(block *models.Block, log *logger.Logger, cause error) {
	log.Error("block render failed", "error", cause.Error())
	if err := block.UpdateStatus(p.DB, models.BlockStatusFailed); err != nil {
		log.Error("mark block failed errored", "error", err.Error())
	}
}

// renderClip produces the final local clip file for one block inside the
// given workspace. Generation failures are fatal; voice-transform and
// caption failures degrade gracefully and keep the pipeline going.
func (p *Processor) renderClip(ctx context.Context, block *models.Block, voiceID, workDir string) (string, error) {
	log := p.log.With("block_id", block.ID)

	var seedImage []byte
	if block.InputMediaPath != "" && block.InputMediaKind == models.MediaKindImage {
		img, err := p.Storage.Download(ctx, block.InputMediaPath)
		if err != nil {
			log.Warn("seed image download failed, generating without it",
				"stage", "fetch input", "error", err.Error())
		} else {
			seedImage = img
		}
	}

	clipBytes, err := p.Clips.Generate(ctx, ClipRequest{
		Prompt:          ComposePrompt(block),
		ImageBytes:      seedImage,
		DurationSeconds: block.NormalizedDuration(),
	})
	if err != nil {
		return "", err
	}

	clipPath := filepath.Join(workDir, "clip.mp4")
	if err := os.WriteFile(clipPath, clipBytes, 0o644); err != nil {
		return "", fmt.Errorf("write generated clip: %w", err)
	}

	if voiceID != "" {
		clipPath = p.applyVoiceTransform(ctx, block, clipPath, voiceID, workDir)
	}
	if strings.TrimSpace(block.Script) != "" {
		clipPath = p.applyCaptions(ctx, block, clipPath, workDir)
	}
	return clipPath, nil
}

// applyVoiceTransform re-voices the clip's audio track. Every failure,
// quota exhaustion included, falls back to the original audio; this stage
// never fails the block.
func (p *Processor) applyVoiceTransform(ctx context.Context, block *models.Block, clipPath, voiceID, workDir string) string {
	log := p.log.With("block_id", block.ID, "stage", "voice transform")

	audioPath := filepath.Join(workDir, "original.mp3")
	if err := p.Engine.ExtractAudio(ctx, clipPath, audioPath); err != nil {
		log.Warn("audio extraction failed, keeping original audio", "error", err.Error())
		return clipPath
	}

	transformed, err := p.Voice.TransformVoice(ctx, audioPath, voiceID)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			log.Warn("voice quota exhausted, keeping original audio", "voice_id", voiceID)
		} else {
			log.Warn("voice transform failed, keeping original audio",
				"voice_id", voiceID, "error", err.Error())
		}
		return clipPath
	}

	voicedAudio := filepath.Join(workDir, "voiced.mp3")
	if err := os.WriteFile(voicedAudio, transformed, 0o644); err != nil {
		log.Warn("write transformed audio failed, keeping original audio", "error", err.Error())
		return clipPath
	}

	voicedClip := filepath.Join(workDir, "voiced.mp4")
	if err := p.Engine.ReplaceAudio(ctx, clipPath, voicedAudio, voicedClip); err != nil {
		log.Warn("audio replacement failed, keeping original audio", "error", err.Error())
		return clipPath
	}
	return voicedClip
}

// applyCaptions aligns the clip's audio against the spoken script and
// burns word-timed captions in. Captions are best-effort: any failure
// leaves the clip untouched.
func (p *Processor) applyCaptions(ctx context.Context, block *models.Block, clipPath, workDir string) string {
	log := p.log.With("block_id", block.ID, "stage", "captions")

	audioPath := filepath.Join(workDir, "caption-src.mp3")
	if err := p.Engine.ExtractAudio(ctx, clipPath, audioPath); err != nil {
		log.Warn("audio extraction failed, skipping captions", "error", err.Error())
		return clipPath
	}
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		log.Warn("read extracted audio failed, skipping captions", "error", err.Error())
		return clipPath
	}

	alignment, err := p.Voice.AlignAudio(ctx, audio, block.Script)
	if err != nil {
		log.Warn("forced alignment failed, skipping captions", "error", err.Error())
		return clipPath
	}
	if len(alignment.Chars) == 0 {
		log.Warn("alignment returned no characters, skipping captions")
		return clipPath
	}

	track := media.RenderASS(media.BuildCaptions(alignment))
	subtitlePath := filepath.Join(workDir, "captions.ass")
	if err := os.WriteFile(subtitlePath, []byte(track), 0o644); err != nil {
		log.Warn("write subtitle track failed, skipping captions", "error", err.Error())
		return clipPath
	}

	captioned := filepath.Join(workDir, "captioned.mp4")
	if err := p.Engine.BurnCaptions(ctx, clipPath, subtitlePath, captioned); err != nil {
		log.Warn("caption burn failed, skipping captions", "error", err.Error())
		return clipPath
	}
	return captioned
}

// ComposePrompt builds the clip generation prompt from the block's visual
// prompt plus optional action and dialogue lines.
func ComposePrompt(block *models.Block) string {
	var parts []string
	if v := strings.TrimSpace(block.VisualPrompt); v != "" {
		parts = append(parts, v)
	}
	if a := strings.TrimSpace(block.Instructions); a != "" {
		parts = append(parts, "Action: "+a)
	}
	if d := strings.TrimSpace(block.Script); d != "" {
		parts = append(parts, fmt.Sprintf("Dialogue: %q", d))
	}
	if len(parts) == 0 {
		parts = append(parts, "A vertical short-form video scene")
	}
	return strings.Join(parts, "\n")
}
