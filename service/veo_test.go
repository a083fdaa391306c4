package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestVeoClient(t *testing.T, baseURL string, keys []string, budget time.Duration) *VeoClient {
	t.Helper()
	c := NewVeoClient(baseURL, "veo-test", NewKeyPool(keys), budget, testLogger(t))
	c.pollInterval = 2 * time.Millisecond
	c.pollMax = 10 * time.Millisecond
	return c
}

func TestGenerateSuccessAfterPolling(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("POST /models/veo-test:predictLongRunning", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "key-a" {
			t.Errorf("api key = %q", r.Header.Get("x-goog-api-key"))
		}
		var payload struct {
			Instances []struct {
				Prompt string `json:"prompt"`
			} `json:"instances"`
			Parameters struct {
				AspectRatio     string `json:"aspectRatio"`
				DurationSeconds int    `json:"durationSeconds"`
			} `json:"parameters"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode start payload: %v", err)
		}
		if payload.Parameters.AspectRatio != "9:16" || payload.Parameters.DurationSeconds != 8 {
			t.Errorf("parameters = %+v", payload.Parameters)
		}
		fmt.Fprint(w, `{"name":"operations/job-1"}`)
	})
	mux.HandleFunc("GET /operations/job-1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			fmt.Fprint(w, `{"done":false}`)
			return
		}
		fmt.Fprintf(w, `{"done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":%q}}]}}}`,
			srv.URL+"/files/clip-1")
	})
	mux.HandleFunc("GET /files/clip-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "key-a" {
			t.Errorf("download api key = %q", r.Header.Get("x-goog-api-key"))
		}
		w.Write([]byte("clip-bytes"))
	})

	c := newTestVeoClient(t, srv.URL, []string{"key-a"}, time.Second)
	clip, err := c.Generate(t.Context(), ClipRequest{Prompt: "a scene", DurationSeconds: 8})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(clip) != "clip-bytes" {
		t.Errorf("clip = %q", clip)
	}
	if polls.Load() < 3 {
		t.Errorf("polls = %d, want at least 3", polls.Load())
	}
}

func TestGenerateEmptyResult(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("POST /models/veo-test:predictLongRunning", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"operations/job-1"}`)
	})
	mux.HandleFunc("GET /operations/job-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"done":true,"response":{"generateVideoResponse":{"generatedSamples":[]}}}`)
	})

	c := newTestVeoClient(t, srv.URL, []string{"key-a"}, time.Second)
	_, err := c.Generate(t.Context(), ClipRequest{Prompt: "a scene", DurationSeconds: 4})
	if !errors.Is(err, ErrGenerationEmpty) {
		t.Fatalf("err = %v, want ErrGenerationEmpty", err)
	}
}

func TestGenerateTimeoutUnderBudget(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("POST /models/veo-test:predictLongRunning", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"operations/job-1"}`)
	})
	mux.HandleFunc("GET /operations/job-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"done":false}`)
	})

	c := newTestVeoClient(t, srv.URL, []string{"key-a"}, 30*time.Millisecond)
	_, err := c.Generate(t.Context(), ClipRequest{Prompt: "a scene", DurationSeconds: 4})
	if !errors.Is(err, ErrGenerationTimeout) {
		t.Fatalf("err = %v, want ErrGenerationTimeout", err)
	}
}

func TestGenerateFailsFastOnClientError(t *testing.T) {
	var starts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		starts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestVeoClient(t, srv.URL, []string{"key-a", "key-b"}, time.Second)
	_, err := c.Generate(t.Context(), ClipRequest{Prompt: "bad request", DurationSeconds: 4})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := starts.Load(); got != 1 {
		t.Errorf("start attempts = %d, want 1 (no key rotation on 400)", got)
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("err = %v, want status surfaced", err)
	}
}

func TestGenerateRotatesKeyOnQuotaPressure(t *testing.T) {
	var mu sync.Mutex
	var keysSeen []string
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("POST /models/veo-test:predictLongRunning", func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("x-goog-api-key")
		mu.Lock()
		keysSeen = append(keysSeen, key)
		mu.Unlock()
		if key == "key-a" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"name":"operations/job-2"}`)
	})
	mux.HandleFunc("GET /operations/job-2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":%q}}]}}}`,
			srv.URL+"/files/clip-2")
	})
	mux.HandleFunc("GET /files/clip-2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("clip-bytes"))
	})

	c := newTestVeoClient(t, srv.URL, []string{"key-a", "key-b"}, time.Second)
	clip, err := c.Generate(t.Context(), ClipRequest{Prompt: "a scene", DurationSeconds: 6})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(clip) != "clip-bytes" {
		t.Errorf("clip = %q", clip)
	}
	if len(keysSeen) != 2 || keysSeen[0] != "key-a" || keysSeen[1] != "key-b" {
		t.Errorf("keys seen = %v, want rotation a then b", keysSeen)
	}
}

func TestGenerateExhaustsKeyPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestVeoClient(t, srv.URL, []string{"key-a", "key-b"}, time.Second)
	_, err := c.Generate(t.Context(), ClipRequest{Prompt: "a scene", DurationSeconds: 4})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "exhausted key pool") {
		t.Errorf("err = %v, want pool exhaustion", err)
	}
}

func TestKeyPoolRoundRobin(t *testing.T) {
	p := NewKeyPool([]string{"a", "b"})
	got := make([]string, 0, 2)
	for range 2 {
		k, err := p.take(t.Context())
		if err != nil {
			t.Fatalf("take: %v", err)
		}
		got = append(got, k)
	}
	if got[0] != "a" || got[1] != "b" {
		t.Errorf("keys = %v, want round-robin a, b", got)
	}
}

func TestKeyPoolEmpty(t *testing.T) {
	p := NewKeyPool(nil)
	if _, err := p.take(t.Context()); err == nil {
		t.Fatal("expected error for empty pool")
	}
}
