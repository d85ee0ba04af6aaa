package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/dhlab/gallicanav/internal/config"
	"github.com/dhlab/gallicanav/internal/ledger"
	"github.com/dhlab/gallicanav/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		Primary: config.Primary{Env: "test", LogLevel: "info"},
		Pipeline: config.PipelineConfig{
			InactivityMinutes:  60,
			RequestThreshold:   1,
			MinRequestsPerUser: 5,
			Workers:            1,
		},
		Server: config.ServerConfig{Port: "0", ReadTimeout: 5, WriteTimeout: 5, IdleTimeout: 5},
	}
}

func TestHealth(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	s := New(testConfig(), store, ledger.NewMemory(), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	ld := ledger.NewMemory()

	if err := store.Write(ctx, storage.RawKey(1), []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Write(ctx, storage.ProcessedKey(1), []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ld.MarkDone(ctx, ledger.StageClassify, 1); err != nil {
		t.Fatalf("mark: %v", err)
	}

	s := New(testConfig(), store, ld, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Data struct {
			Chunks     map[string][]int `json:"chunks"`
			Completed  map[string][]int `json:"completed"`
			Thresholds map[string]any   `json:"thresholds"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := body.Data.Chunks["raw"]; len(got) != 1 || got[0] != 1 {
		t.Fatalf("raw chunks = %v", got)
	}
	if got := body.Data.Chunks["sessions"]; len(got) != 0 {
		t.Fatalf("sessions chunks = %v", got)
	}
	if got := body.Data.Completed["classify"]; len(got) != 1 || got[0] != 1 {
		t.Fatalf("completed classify = %v", got)
	}
	if body.Data.Thresholds["inactivity_minutes"].(float64) != 60 {
		t.Fatalf("thresholds = %v", body.Data.Thresholds)
	}
}
