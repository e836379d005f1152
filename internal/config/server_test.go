package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadServer(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, *Server)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *Server) {
				if cfg.Port != "8080" {
					t.Errorf("expected port 8080, got %s", cfg.Port)
				}
				if cfg.LogLevel != "info" {
					t.Errorf("expected log level info, got %s", cfg.LogLevel)
				}
				if cfg.WSReadTimeout != 60*time.Second {
					t.Errorf("expected WSReadTimeout 60s, got %v", cfg.WSReadTimeout)
				}
				if cfg.CheckinBurst != 5 {
					t.Errorf("expected burst 5, got %d", cfg.CheckinBurst)
				}
				if len(cfg.AllowedOrigins) != 1 {
					t.Errorf("expected 1 allowed origin, got %d", len(cfg.AllowedOrigins))
				}
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"PORT":             "9000",
				"LOG_LEVEL":        "debug",
				"WS_READ_TIMEOUT":  "30",
				"WS_WRITE_TIMEOUT": "5",
				"ALLOWED_ORIGINS":  "http://example.com, http://test.com,",
				"JWT_SECRET":       "s3cret",
				"CHECKIN_RATE":     "1.5",
			},
			check: func(t *testing.T, cfg *Server) {
				if cfg.Port != "9000" {
					t.Errorf("expected port 9000, got %s", cfg.Port)
				}
				if cfg.WSWriteTimeout != 5*time.Second {
					t.Errorf("expected WSWriteTimeout 5s, got %v", cfg.WSWriteTimeout)
				}
				if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://test.com" {
					t.Errorf("unexpected allowed origins %v", cfg.AllowedOrigins)
				}
				if cfg.JWTSecret != "s3cret" {
					t.Errorf("expected jwt secret, got %q", cfg.JWTSecret)
				}
				if cfg.CheckinRate != 1.5 {
					t.Errorf("expected checkin rate 1.5, got %v", cfg.CheckinRate)
				}
			},
		},
		{
			name:    "invalid WS_READ_TIMEOUT",
			env:     map[string]string{"WS_READ_TIMEOUT": "invalid"},
			wantErr: true,
		},
		{
			name:    "invalid CHECKIN_RATE",
			env:     map[string]string{"CHECKIN_RATE": "fast"},
			wantErr: true,
		},
		{
			name:    "invalid CHECKIN_BURST",
			env:     map[string]string{"CHECKIN_BURST": "many"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg, err := LoadServer()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestWebSocketConstants(t *testing.T) {
	os.Clearenv()

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.PongWait != cfg.WSReadTimeout {
		t.Errorf("PongWait (%v) should equal WSReadTimeout (%v)", cfg.PongWait, cfg.WSReadTimeout)
	}
	if cfg.PingPeriod >= cfg.PongWait {
		t.Errorf("PingPeriod (%v) should be less than PongWait (%v)", cfg.PingPeriod, cfg.PongWait)
	}
	if cfg.WriteWait != cfg.WSWriteTimeout {
		t.Errorf("WriteWait (%v) should equal WSWriteTimeout (%v)", cfg.WriteWait, cfg.WSWriteTimeout)
	}
	if cfg.MaxMessageSize <= 0 {
		t.Errorf("MaxMessageSize should be positive, got %d", cfg.MaxMessageSize)
	}
}
