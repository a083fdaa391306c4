package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"BlockReel-server/media"
	"BlockReel-server/models"
)

type fakeStorage struct {
	objects   map[string][]byte
	uploads   map[string][]byte
	uploadErr error
}

func (f *fakeStorage) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[objectName] = data
	return objectName, nil
}

func (f *fakeStorage) Download(ctx context.Context, objectName string) ([]byte, error) {
	data, ok := f.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectName)
	}
	return data, nil
}

func (f *fakeStorage) SignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	return "https://signed.example/" + objectName, nil
}

type fakeClips struct {
	clip   []byte
	err    error
	gotReq ClipRequest
}

func (f *fakeClips) Generate(ctx context.Context, req ClipRequest) ([]byte, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.clip, nil
}

type fakeVoice struct {
	transformed  []byte
	transformErr error
	alignment    media.Alignment
	alignErr     error
}

func (f *fakeVoice) TransformVoice(ctx context.Context, audioPath, voiceID string) ([]byte, error) {
	if f.transformErr != nil {
		return nil, f.transformErr
	}
	return f.transformed, nil
}

func (f *fakeVoice) AlignAudio(ctx context.Context, audio []byte, transcript string) (media.Alignment, error) {
	if f.alignErr != nil {
		return media.Alignment{}, f.alignErr
	}
	return f.alignment, nil
}

func (f *fakeVoice) CloneVoice(ctx context.Context, name string, samplePaths []string) (string, error) {
	return "cloned-voice", nil
}

func (f *fakeVoice) SynthesizeSpeech(ctx context.Context, text, voiceID string) ([]byte, error) {
	return []byte("tts"), nil
}

// fakeEngine tags output files with the operation applied so tests can
// assert which stages ran.
type fakeEngine struct {
	extractErr error
	replaceErr error
	burnErr    error
	stitchErr  error
	stitched   []string
}

func (f *fakeEngine) Stitch(ctx context.Context, inputPaths []string, outputPath string, policy media.TrimPolicy) error {
	if f.stitchErr != nil {
		return f.stitchErr
	}
	f.stitched = append([]string(nil), inputPaths...)
	var parts []string
	for _, p := range inputPaths {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		parts = append(parts, string(data))
	}
	return os.WriteFile(outputPath, []byte(strings.Join(parts, "|")), 0o644)
}

func (f *fakeEngine) ExtractAudio(ctx context.Context, videoPath, outputPath string) error {
	if f.extractErr != nil {
		return f.extractErr
	}
	return os.WriteFile(outputPath, []byte("audio-of-"+videoPath), 0o644)
}

func (f *fakeEngine) ReplaceAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	video, err := os.ReadFile(videoPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, append(video, []byte(":revoiced")...), 0o644)
}

func (f *fakeEngine) BurnCaptions(ctx context.Context, videoPath, subtitlePath, outputPath string) error {
	if f.burnErr != nil {
		return f.burnErr
	}
	video, err := os.ReadFile(videoPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, append(video, []byte(":captioned")...), 0o644)
}

func newTestProcessor(t *testing.T, storage *fakeStorage, clips *fakeClips, voice *fakeVoice, engine *fakeEngine) *Processor {
	t.Helper()
	return NewProcessor(nil, storage, clips, voice, engine,
		media.TrimPolicy{Enabled: true, LeadSeconds: 0.25, TailSeconds: 0.25}, testLogger(t))
}

func tempDirsWithPrefix(t *testing.T, prefix string) map[string]bool {
	t.Helper()
	entries, err := os.ReadDir(os.TempDir())
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	dirs := make(map[string]bool)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			dirs[e.Name()] = true
		}
	}
	return dirs
}

func assertNoNewTempDirs(t *testing.T, prefix string, before map[string]bool) {
	t.Helper()
	for name := range tempDirsWithPrefix(t, prefix) {
		if !before[name] {
			t.Errorf("workspace %s left behind", name)
		}
	}
}

func alignedScript(text string) media.Alignment {
	a := media.Alignment{}
	for i, r := range text {
		start := float64(i) * 0.1
		a.Chars = append(a.Chars, media.AlignedChar{Char: string(r), Start: start, End: start + 0.1})
	}
	return a
}

func TestRenderClipFullPipeline(t *testing.T) {
	clips := &fakeClips{clip: []byte("CLIP")}
	voice := &fakeVoice{transformed: []byte("VOICED"), alignment: alignedScript("hola mundo")}
	engine := &fakeEngine{}
	p := newTestProcessor(t, &fakeStorage{}, clips, voice, engine)

	block := &models.Block{ID: "b1", Script: "hola mundo", VisualPrompt: "a founder at a desk", DurationTarget: 8}
	path, err := p.renderClip(t.Context(), block, "voice123", t.TempDir())
	if err != nil {
		t.Fatalf("renderClip: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "CLIP:revoiced:captioned" {
		t.Errorf("output = %q, want voice then captions applied", data)
	}
	if clips.gotReq.DurationSeconds != 8 {
		t.Errorf("duration = %d, want 8", clips.gotReq.DurationSeconds)
	}
}

func TestRenderClipQuotaFallbackKeepsOriginalAudio(t *testing.T) {
	clips := &fakeClips{clip: []byte("CLIP")}
	voice := &fakeVoice{transformErr: fmt.Errorf("voice transform: %w", ErrQuotaExceeded)}
	p := newTestProcessor(t, &fakeStorage{}, clips, voice, &fakeEngine{})

	block := &models.Block{ID: "b1", VisualPrompt: "a desk", DurationTarget: 4}
	path, err := p.renderClip(t.Context(), block, "voice123", t.TempDir())
	if err != nil {
		t.Fatalf("renderClip: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "CLIP" {
		t.Errorf("output = %q, want untouched generated clip", data)
	}
}

func TestRenderClipVoiceFailureKeepsOriginalAudio(t *testing.T) {
	clips := &fakeClips{clip: []byte("CLIP")}
	voice := &fakeVoice{transformErr: errors.New("connection reset")}
	p := newTestProcessor(t, &fakeStorage{}, clips, voice, &fakeEngine{})

	block := &models.Block{ID: "b1", VisualPrompt: "a desk", DurationTarget: 4}
	path, err := p.renderClip(t.Context(), block, "voice123", t.TempDir())
	if err != nil {
		t.Fatalf("renderClip: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "CLIP" {
		t.Errorf("output = %q, want untouched generated clip", data)
	}
}

func TestRenderClipAlignmentFailureSkipsCaptions(t *testing.T) {
	clips := &fakeClips{clip: []byte("CLIP")}
	voice := &fakeVoice{alignErr: errors.New("alignment unavailable")}
	p := newTestProcessor(t, &fakeStorage{}, clips, voice, &fakeEngine{})

	block := &models.Block{ID: "b1", Script: "hola", VisualPrompt: "a desk", DurationTarget: 4}
	path, err := p.renderClip(t.Context(), block, "", t.TempDir())
	if err != nil {
		t.Fatalf("renderClip: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "CLIP" {
		t.Errorf("output = %q, want clip without captions", data)
	}
}

func TestRenderClipEmptyAlignmentSkipsCaptions(t *testing.T) {
	clips := &fakeClips{clip: []byte("CLIP")}
	voice := &fakeVoice{}
	p := newTestProcessor(t, &fakeStorage{}, clips, voice, &fakeEngine{})

	block := &models.Block{ID: "b1", Script: "hola", VisualPrompt: "a desk", DurationTarget: 4}
	path, err := p.renderClip(t.Context(), block, "", t.TempDir())
	if err != nil {
		t.Fatalf("renderClip: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "CLIP" {
		t.Errorf("output = %q, want clip without captions", data)
	}
}

func TestRenderClipGenerationFailure(t *testing.T) {
	clips := &fakeClips{err: errors.New("upstream rejected prompt")}
	p := newTestProcessor(t, &fakeStorage{}, clips, &fakeVoice{}, &fakeEngine{})

	block := &models.Block{ID: "b1", VisualPrompt: "a desk", DurationTarget: 4}
	if _, err := p.renderClip(t.Context(), block, "", t.TempDir()); err == nil {
		t.Fatal("expected generation error to surface")
	}
}

func TestRenderClipSeedImageAndDurationNormalization(t *testing.T) {
	storage := &fakeStorage{objects: map[string][]byte{"inputs/b1.png": []byte("PNG")}}
	clips := &fakeClips{clip: []byte("CLIP")}
	p := newTestProcessor(t, storage, clips, &fakeVoice{}, &fakeEngine{})

	block := &models.Block{
		ID:             "b1",
		VisualPrompt:   "a desk",
		DurationTarget: 5,
		InputMediaPath: "inputs/b1.png",
		InputMediaKind: models.MediaKindImage,
	}
	if _, err := p.renderClip(t.Context(), block, "", t.TempDir()); err != nil {
		t.Fatalf("renderClip: %v", err)
	}
	if string(clips.gotReq.ImageBytes) != "PNG" {
		t.Errorf("seed image = %q", clips.gotReq.ImageBytes)
	}
	if clips.gotReq.DurationSeconds != 6 {
		t.Errorf("duration = %d, want out-of-range target coerced to 6", clips.gotReq.DurationSeconds)
	}
}

func TestRenderClipSeedImageFailureDegrades(t *testing.T) {
	storage := &fakeStorage{}
	clips := &fakeClips{clip: []byte("CLIP")}
	p := newTestProcessor(t, storage, clips, &fakeVoice{}, &fakeEngine{})

	block := &models.Block{
		ID:             "b1",
		VisualPrompt:   "a desk",
		DurationTarget: 4,
		InputMediaPath: "inputs/missing.png",
		InputMediaKind: models.MediaKindImage,
	}
	if _, err := p.renderClip(t.Context(), block, "", t.TempDir()); err != nil {
		t.Fatalf("renderClip: %v", err)
	}
	if len(clips.gotReq.ImageBytes) != 0 {
		t.Errorf("seed image = %q, want generation without it", clips.gotReq.ImageBytes)
	}
}

func TestRenderAndStoreCleansWorkspace(t *testing.T) {
	before := tempDirsWithPrefix(t, "render-")
	storage := &fakeStorage{}
	clips := &fakeClips{clip: []byte("CLIP")}
	p := newTestProcessor(t, storage, clips, &fakeVoice{}, &fakeEngine{})

	block := &models.Block{ID: "b1", VisualPrompt: "a desk", DurationTarget: 4}
	storedPath, err := p.renderAndStore(t.Context(), block, "")
	if err != nil {
		t.Fatalf("renderAndStore: %v", err)
	}
	if storedPath != "generated/b1.mp4" {
		t.Errorf("stored path = %q", storedPath)
	}
	if string(storage.uploads["generated/b1.mp4"]) != "CLIP" {
		t.Errorf("uploaded = %q", storage.uploads["generated/b1.mp4"])
	}
	assertNoNewTempDirs(t, "render-", before)
}

func TestRenderAndStoreCleansWorkspaceOnFailure(t *testing.T) {
	before := tempDirsWithPrefix(t, "render-")
	clips := &fakeClips{err: errors.New("upstream rejected prompt")}
	p := newTestProcessor(t, &fakeStorage{}, clips, &fakeVoice{}, &fakeEngine{})

	block := &models.Block{ID: "b1", VisualPrompt: "a desk", DurationTarget: 4}
	if _, err := p.renderAndStore(t.Context(), block, ""); err == nil {
		t.Fatal("expected generation failure")
	}
	assertNoNewTempDirs(t, "render-", before)
}

func TestComposePrompt(t *testing.T) {
	tests := []struct {
		name  string
		block models.Block
		want  string
	}{
		{
			name: "all parts",
			block: models.Block{
				VisualPrompt: "a founder at a desk",
				Instructions: "zoom in slowly",
				Script:       "hola mundo",
			},
			want: "a founder at a desk\nAction: zoom in slowly\nDialogue: \"hola mundo\"",
		},
		{
			name:  "visual only",
			block: models.Block{VisualPrompt: "a city street"},
			want:  "a city street",
		},
		{
			name:  "script only",
			block: models.Block{Script: "hola"},
			want:  "Dialogue: \"hola\"",
		},
		{
			name:  "empty block",
			block: models.Block{},
			want:  "A vertical short-form video scene",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComposePrompt(&tt.block); got != tt.want {
				t.Errorf("ComposePrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}
