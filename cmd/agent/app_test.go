package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/config"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/rs/zerolog"
)

func testAgentConfig(t *testing.T, apiURL string) *config.Agent {
	t.Helper()
	return &config.Agent{
		APIURL:         apiURL,
		DataDir:        t.TempDir(),
		LogLevel:       "error",
		ControlAddr:    "127.0.0.1:0",
		StartupDelay:   10 * time.Millisecond,
		ReportInterval: time.Hour,
		PollInterval:   time.Hour,
		OvertTimeout:   time.Second,
		GeoRetries:     1,
		GeoTimeout:     time.Second,
	}
}

func TestWakeNeverFails(t *testing.T) {
	unavailable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unavailable.Close()

	tests := []struct {
		name     string
		surface  string
		mirrored bool
	}{
		{"first wake without record", "false", false},
		{"controller down, errors swallowed", "false", true},
		{"controller down, errors surfaced", "true", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataDir := t.TempDir()
			t.Setenv("GT_DATA_DIR", dataDir)
			t.Setenv("GT_API_URL", unavailable.URL)
			t.Setenv("GT_SURFACE_ERRORS", tt.surface)
			t.Setenv("GT_GEO_ENABLED", "false")

			if tt.mirrored {
				c := testAgentConfig(t, unavailable.URL)
				c.DataDir = dataDir
				app, err := newApp(t.Context(), c, zerolog.Nop())
				if err != nil {
					t.Fatalf("newApp: %v", err)
				}
				if err := app.bridge.MirrorIdentity(t.Context(), "hw-1"); err != nil {
					t.Fatalf("MirrorIdentity: %v", err)
				}
				app.Close()
			}

			var stdout, stderr bytes.Buffer
			rootCmd.SetOut(&stdout)
			rootCmd.SetErr(&stderr)
			rootCmd.SetArgs([]string{"wake"})
			defer rootCmd.SetArgs(nil)

			if err := rootCmd.ExecuteContext(t.Context()); err != nil {
				t.Errorf("expected wake to succeed, got %v", err)
			}
			if stderr.Len() != 0 {
				t.Errorf("expected empty stderr, got %q", stderr.String())
			}
		})
	}
}

func TestWakeUnusableDataDir(t *testing.T) {
	// A regular file where the data directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GT_DATA_DIR", filepath.Join(blocker, "data"))

	var stderr bytes.Buffer
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"wake"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.ExecuteContext(t.Context()); err != nil {
		t.Errorf("expected wake to succeed, got %v", err)
	}
	if stderr.Len() != 0 {
		t.Errorf("expected empty stderr, got %q", stderr.String())
	}
}

func TestFingerprintIgnoresVersion(t *testing.T) {
	app, err := newApp(t.Context(), testAgentConfig(t, "http://127.0.0.1:1"), zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer app.Close()

	ua := app.fingerprint.Collect().UserAgent
	if ua != agentName {
		t.Errorf("expected user agent %q, got %q", agentName, ua)
	}
	if strings.Contains(ua, version) {
		t.Errorf("fingerprint user agent %q must not carry the version", ua)
	}
}

func TestDispatcherAcknowledgesEachCommand(t *testing.T) {
	var (
		mu   sync.Mutex
		acks []types.CommandAck
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/device-commands":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"commands":[{"id":"c1","type":"wipe","data":{}},{"id":2,"type":"photo"}]}`))
		case "/device-command-executed":
			var ack types.CommandAck
			json.NewDecoder(r.Body).Decode(&ack)
			mu.Lock()
			acks = append(acks, ack)
			mu.Unlock()
			w.Write([]byte(`{"status":"success"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	app, err := newApp(t.Context(), testAgentConfig(t, server.URL), zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer app.Close()

	var terminated atomic.Bool
	d, closeExecutors := app.dispatcher(func() { terminated.Store(true) })
	defer closeExecutors()

	n, err := d.RunOnce(t.Context(), "hw-1")
	if err != nil || n != 2 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(acks) != 2 {
		t.Fatalf("expected 2 acks, got %d", len(acks))
	}
	if acks[0].CommandID != "c1" || acks[0].Result.Success || acks[0].Result.Error != "Wipe not confirmed" {
		t.Errorf("unexpected wipe ack %+v", acks[0])
	}
	// No camera is configured
	if acks[1].CommandID != "2" || acks[1].Result.Success {
		t.Errorf("unexpected photo ack %+v", acks[1])
	}
	if terminated.Load() {
		t.Error("unconfirmed wipe must not terminate the agent")
	}
}

func TestRunShutsDownCleanly(t *testing.T) {
	var checks atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/check-device-status" {
			checks.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"monitored"}`))
	}))
	defer server.Close()

	cfg := testAgentConfig(t, server.URL)
	app, err := newApp(t.Context(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- app.run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for checks.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if checks.Load() == 0 {
		t.Fatal("expected the agent to check its status")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	rec, err := app.bridge.Load(t.Context())
	if err != nil {
		t.Fatalf("expected mirrored record: %v", err)
	}
	ident, err := app.fingerprint.Identity(t.Context())
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if rec.HardwareID != ident.ID {
		t.Errorf("mirrored %q, identity is %q", rec.HardwareID, ident.ID)
	}
}
