package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"BlockReel-server/logger"

	"golang.org/x/time/rate"
)

var (
	// ErrGenerationEmpty means the generation job finished without
	// producing a clip.
	ErrGenerationEmpty = errors.New("clip generation produced no video")
	// ErrGenerationTimeout means the job did not finish within the
	// configured wait budget.
	ErrGenerationTimeout = errors.New("clip generation timed out")
)

const defaultVeoBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// ClipRequest describes one clip generation job: a composed prompt, an
// optional seed image and a target duration from the allowed set.
type ClipRequest struct {
	Prompt          string
	ImageBytes      []byte
	DurationSeconds int
}

// retryableError wraps upstream failures that justify rotating to another
// API key and retrying (quota pressure, transient 5xx). Authentication and
// validation errors are never wrapped and fail fast.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// KeyPool hands out API keys round-robin under a shared rate limit. Keys
// come from configuration, never from code.
type KeyPool struct {
	mu      sync.Mutex
	keys    []string
	next    int
	limiter *rate.Limiter
}

func NewKeyPool(keys []string) *KeyPool {
	return &KeyPool{
		keys:    keys,
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

func (p *KeyPool) take(ctx context.Context) (string, error) {
	if len(p.keys) == 0 {
		return "", errors.New("no API keys configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := p.keys[p.next%len(p.keys)]
	p.next++
	return key, nil
}

func (p *KeyPool) size() int { return len(p.keys) }

// VeoClient drives the asynchronous clip generation service: start a job,
// poll the long-running operation until done, download the result.
type VeoClient struct {
	baseURL      string
	model        string
	pool         *KeyPool
	http         *http.Client
	pollInterval time.Duration
	pollMax      time.Duration
	pollBudget   time.Duration
	log          *logger.Logger
}

func NewVeoClient(baseURL, model string, pool *KeyPool, pollBudget time.Duration, log *logger.Logger) *VeoClient {
	if baseURL == "" {
		baseURL = defaultVeoBaseURL
	}
	if pollBudget <= 0 {
		pollBudget = 10 * time.Minute
	}
	return &VeoClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        model,
		pool:         pool,
		http:         &http.Client{Timeout: 2 * time.Minute},
		pollInterval: 2 * time.Second,
		pollMax:      10 * time.Second,
		pollBudget:   pollBudget,
		log:          log.With("service", "veo"),
	}
}

// Generate runs one clip generation job to completion and returns the clip
// bytes. Retryable upstream failures rotate through the key pool; anything
// else is surfaced immediately.
func (c *VeoClient) Generate(ctx context.Context, req ClipRequest) ([]byte, error) {
	attempts := c.pool.size()
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		key, err := c.pool.take(ctx)
		if err != nil {
			return nil, err
		}

		clip, err := c.generateOnce(ctx, key, req)
		if err == nil {
			return clip, nil
		}

		var re *retryableError
		if !errors.As(err, &re) {
			return nil, err
		}
		lastErr = err
		c.log.Warn("clip generation attempt failed, rotating key",
			"attempt", attempt+1, "error", err.Error())
	}
	return nil, fmt.Errorf("clip generation exhausted key pool: %w", lastErr)
}

func (c *VeoClient) generateOnce(ctx context.Context, key string, req ClipRequest) ([]byte, error) {
	opName, err := c.startJob(ctx, key, req)
	if err != nil {
		return nil, err
	}
	uri, err := c.awaitJob(ctx, key, opName)
	if err != nil {
		return nil, err
	}
	return c.download(ctx, key, uri)
}

func (c *VeoClient) startJob(ctx context.Context, key string, req ClipRequest) (string, error) {
	instance := map[string]interface{}{"prompt": req.Prompt}
	if len(req.ImageBytes) > 0 {
		instance["image"] = map[string]string{
			"bytesBase64Encoded": base64.StdEncoding.EncodeToString(req.ImageBytes),
			"mimeType":           "image/png",
		}
	}
	payload := map[string]interface{}{
		"instances": []interface{}{instance},
		"parameters": map[string]interface{}{
			"aspectRatio":     "9:16",
			"durationSeconds": req.DurationSeconds,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, c.model)
	body, err := c.call(ctx, http.MethodPost, url, key, raw)
	if err != nil {
		return "", err
	}

	var decoded struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode job start response: %w", err)
	}
	if decoded.Name == "" {
		return "", errors.New("job start response missing operation name")
	}
	return decoded.Name, nil
}

// awaitJob polls the long-running operation with capped-linear backoff
// under an explicit wait budget instead of looping forever.
func (c *VeoClient) awaitJob(ctx context.Context, key, opName string) (string, error) {
	deadline := time.Now().Add(c.pollBudget)
	interval := c.pollInterval

	for {
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w after %s (operation %s)", ErrGenerationTimeout, c.pollBudget, opName)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
		if interval += c.pollInterval; interval > c.pollMax {
			interval = c.pollMax
		}

		url := fmt.Sprintf("%s/%s", c.baseURL, opName)
		body, err := c.call(ctx, http.MethodGet, url, key, nil)
		if err != nil {
			return "", err
		}

		var op struct {
			Done  bool `json:"done"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
			Response struct {
				GenerateVideoResponse struct {
					GeneratedSamples []struct {
						Video struct {
							URI string `json:"uri"`
						} `json:"video"`
					} `json:"generatedSamples"`
				} `json:"generateVideoResponse"`
			} `json:"response"`
		}
		if err := json.Unmarshal(body, &op); err != nil {
			return "", fmt.Errorf("decode operation poll response: %w", err)
		}
		if !op.Done {
			continue
		}
		if op.Error != nil {
			return "", fmt.Errorf("clip generation job failed: %s", op.Error.Message)
		}
		samples := op.Response.GenerateVideoResponse.GeneratedSamples
		if len(samples) == 0 || samples[0].Video.URI == "" {
			return "", ErrGenerationEmpty
		}
		return samples[0].Video.URI, nil
	}
}

func (c *VeoClient) download(ctx context.Context, key, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", key)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clip download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyGoogleStatus(resp.StatusCode, "clip download")
	}
	return io.ReadAll(resp.Body)
}

func (c *VeoClient) call(ctx context.Context, method, url, key string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-goog-api-key", key)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyGoogleStatus(resp.StatusCode, fmt.Sprintf("%s %s", method, url))
	}
	return raw, nil
}

// classifyGoogleStatus separates transient pressure (retry with another
// key) from caller mistakes (fail fast).
func classifyGoogleStatus(status int, op string) error {
	err := fmt.Errorf("%s: unexpected status %d", op, status)
	if status == http.StatusTooManyRequests || status >= 500 {
		return &retryableError{err: err}
	}
	return err
}
