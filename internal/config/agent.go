package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Agent holds the configuration of the on-device agent
type Agent struct {
	APIURL      string
	DataDir     string
	LogLevel    string
	ControlAddr string

	StartupDelay   time.Duration
	ReportInterval time.Duration
	PollInterval   time.Duration
	OvertTimeout   time.Duration
	SurfaceErrors  bool

	GeoEnabled    bool
	GeoLookupURL  string
	GeoTimeout    time.Duration
	GeoRetries    int
	GeoRetryDelay time.Duration

	CameraCommand   []string
	WipedURL        string
	MessageReappear time.Duration
}

// LoadAgent loads agent configuration from GT_* environment variables
func LoadAgent() (*Agent, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Agent{
		APIURL:       strings.TrimSuffix(getEnv("GT_API_URL", "http://localhost:8080/api"), "/"),
		DataDir:      getEnv("GT_DATA_DIR", defaultDataDir()),
		LogLevel:     getEnv("GT_LOG_LEVEL", "info"),
		ControlAddr:  getEnv("GT_CONTROL_ADDR", "127.0.0.1:8081"),
		GeoLookupURL: getEnv("GT_GEO_LOOKUP_URL", "https://ipapi.co/json/"),
		WipedURL:     getEnv("GT_WIPED_URL", "/wiped.html"),
	}

	var err error
	if cfg.StartupDelay, err = getDuration("GT_STARTUP_DELAY", "3s"); err != nil {
		return nil, err
	}
	if cfg.ReportInterval, err = getDuration("GT_REPORT_INTERVAL", "10m"); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getDuration("GT_POLL_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if cfg.OvertTimeout, err = getDuration("GT_OVERT_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.GeoTimeout, err = getDuration("GT_GEO_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.GeoRetryDelay, err = getDuration("GT_GEO_RETRY_DELAY", "1s"); err != nil {
		return nil, err
	}
	if cfg.MessageReappear, err = getDuration("GT_MESSAGE_REAPPEAR", "5s"); err != nil {
		return nil, err
	}
	if cfg.SurfaceErrors, err = getBool("GT_SURFACE_ERRORS", false); err != nil {
		return nil, err
	}
	if cfg.GeoEnabled, err = getBool("GT_GEO_ENABLED", true); err != nil {
		return nil, err
	}

	cfg.GeoRetries, err = strconv.Atoi(getEnv("GT_GEO_RETRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid GT_GEO_RETRIES: %w", err)
	}
	if cfg.GeoRetries < 1 {
		return nil, fmt.Errorf("invalid GT_GEO_RETRIES: must be at least 1, got %d", cfg.GeoRetries)
	}

	if cfg.ReportInterval == 0 || cfg.PollInterval == 0 {
		return nil, fmt.Errorf("invalid interval: GT_REPORT_INTERVAL and GT_POLL_INTERVAL must be positive")
	}

	if raw := getEnv("GT_CAMERA_COMMAND", ""); raw != "" {
		cfg.CameraCommand = strings.Fields(raw)
	}

	return cfg, nil
}

// StorePath is the SQLite database holding preferences and the durable record
func (c *Agent) StorePath() string {
	return filepath.Join(c.DataDir, "agent.db")
}

// CacheDir holds cached assets cleared by a wipe
func (c *Agent) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// ControlURL is the base URL of the local control API
func (c *Agent) ControlURL() string {
	return "http://" + c.ControlAddr
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ghosttrack")
	}
	return ".ghosttrack"
}
