package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"BlockReel-server/logger"
	"BlockReel-server/media"
)

// ErrQuotaExceeded marks a voice-transform rejection due to usage-limit
// exhaustion. Callers fall back to the original audio instead of retrying.
var ErrQuotaExceeded = errors.New("voice service quota exceeded")

const (
	speechToSpeechModel = "eleven_multilingual_sts_v2"
	textToSpeechModel   = "eleven_multilingual_v2"
	transformOutputFmt  = "mp3_44100_128"
)

// VoiceClient talks to the ElevenLabs-style voice service: speech-to-speech
// transformation, forced alignment, voice cloning and plain synthesis.
// Pure request/response; no state survives between calls.
type VoiceClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

func NewVoiceClient(baseURL, apiKey string, log *logger.Logger) *VoiceClient {
	return &VoiceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 5 * time.Minute},
		log:     log.With("service", "voice"),
	}
}

// TransformVoice sends the source audio through speech-to-speech bound to
// the target voice and returns the re-voiced audio bytes.
func (c *VoiceClient) TransformVoice(ctx context.Context, audioPath, voiceID string) ([]byte, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := attachFile(w, "audio", audioPath); err != nil {
		return nil, fmt.Errorf("read source audio: %w", err)
	}
	if err := w.WriteField("model_id", speechToSpeechModel); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/speech-to-speech/%s?output_format=%s", c.baseURL, voiceID, transformOutputFmt)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice transform request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyError(resp, "voice transform")
	}
	return io.ReadAll(resp.Body)
}

// AlignAudio submits audio plus its expected transcript for forced
// alignment and returns per-character timings covering the full text.
func (c *VoiceClient) AlignAudio(ctx context.Context, audio []byte, transcript string) (media.Alignment, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "audio.mp3")
	if err != nil {
		return media.Alignment{}, err
	}
	if _, err := part.Write(audio); err != nil {
		return media.Alignment{}, err
	}
	if err := w.WriteField("text", transcript); err != nil {
		return media.Alignment{}, err
	}
	if err := w.Close(); err != nil {
		return media.Alignment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forced-alignment", &body)
	if err != nil {
		return media.Alignment{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return media.Alignment{}, fmt.Errorf("alignment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return media.Alignment{}, c.classifyError(resp, "alignment")
	}

	var decoded struct {
		Characters []struct {
			Text  string  `json:"text"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"characters"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return media.Alignment{}, fmt.Errorf("decode alignment response: %w", err)
	}

	a := media.Alignment{Chars: make([]media.AlignedChar, len(decoded.Characters))}
	for i, ch := range decoded.Characters {
		a.Chars[i] = media.AlignedChar{Char: ch.Text, Start: ch.Start, End: ch.End}
	}
	return a, nil
}

// CloneVoice creates a new voice identity from one or more audio samples
// and returns the provider's voice id.
func (c *VoiceClient) CloneVoice(ctx context.Context, name string, samplePaths []string) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("name", name); err != nil {
		return "", err
	}
	for _, p := range samplePaths {
		if err := attachFile(w, "files", p); err != nil {
			return "", fmt.Errorf("read voice sample: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/voices/add", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("voice clone request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", c.classifyError(resp, "voice clone")
	}

	var decoded struct {
		VoiceID string `json:"voice_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode clone response: %w", err)
	}
	if decoded.VoiceID == "" {
		return "", fmt.Errorf("voice clone response missing voice_id")
	}
	return decoded.VoiceID, nil
}

// SynthesizeSpeech runs plain text-to-speech with fixed synthesis settings
// tuned for consistent narration across renders.
func (c *VoiceClient) SynthesizeSpeech(ctx context.Context, text, voiceID string) ([]byte, error) {
	payload := map[string]interface{}{
		"text":     text,
		"model_id": textToSpeechModel,
		"voice_settings": map[string]float64{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyError(resp, "speech synthesis")
	}
	return io.ReadAll(resp.Body)
}

// ProviderVoice is one entry of the provider's voice catalog.
type ProviderVoice struct {
	VoiceID    string `json:"voice_id"`
	Name       string `json:"name"`
	PreviewURL string `json:"preview_url"`
}

// ListVoices fetches the provider's voice catalog.
func (c *VoiceClient) ListVoices(ctx context.Context) ([]ProviderVoice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/voices", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyError(resp, "voice list")
	}

	var decoded struct {
		Voices []ProviderVoice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode voice list: %w", err)
	}
	return decoded.Voices, nil
}

// classifyError maps a non-2xx response to an error. Quota exhaustion is
// reported via a structured body and surfaces as ErrQuotaExceeded; anything
// else keeps the service message, falling back to the raw HTTP status when
// the body is not parseable.
func (c *VoiceClient) classifyError(resp *http.Response, op string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var decoded struct {
		Detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Detail.Status != "" {
		if decoded.Detail.Status == "quota_exceeded" {
			return fmt.Errorf("%s: %w: %s", op, ErrQuotaExceeded, decoded.Detail.Message)
		}
		return fmt.Errorf("%s failed: %s: %s", op, decoded.Detail.Status, decoded.Detail.Message)
	}
	return fmt.Errorf("%s failed: %s", op, resp.Status)
}

func attachFile(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}
