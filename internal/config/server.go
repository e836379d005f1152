package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Server holds the configuration of the controller backend
type Server struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	JWTSecret      string
	OIDCIssuer     string

	// Per-device check-in rate limit (events per second) and burst
	CheckinRate  float64
	CheckinBurst int

	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// LoadServer loads server configuration from environment variables
func LoadServer() (*Server, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Server{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		OIDCIssuer:     getEnv("OIDC_ISSUER", ""),
	}

	rate, err := strconv.ParseFloat(getEnv("CHECKIN_RATE", "0.2"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CHECKIN_RATE: %w", err)
	}
	cfg.CheckinRate = rate

	burst, err := strconv.Atoi(getEnv("CHECKIN_BURST", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid CHECKIN_BURST: %w", err)
	}
	cfg.CheckinBurst = burst

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	cfg.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	cfg.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	cfg.PongWait = cfg.WSReadTimeout
	cfg.PingPeriod = (cfg.PongWait * 9) / 10 // Must be less than pongWait
	cfg.WriteWait = cfg.WSWriteTimeout
	cfg.MaxMessageSize = 512

	return cfg, nil
}
