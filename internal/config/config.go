package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds live-session configuration (shape as user-service template).
type Config struct {
	AppEnv   string // APP_ENV
	LogLevel string // LOG_LEVEL

	// Platform endpoints
	APIBaseURL   string // API_BASE_URL — REST collaborator (exhibitions, tokens, recordings)
	SignalingURL string // SIGNALING_URL — ws(s):// event socket
	MediaURL     string // MEDIA_URL — media server base (WHIP/WHEP endpoints)

	// Signaling reconnect (defaults match the production web client)
	ReconnectAttempts int           // SIGNALING_RECONNECT_ATTEMPTS
	ReconnectDelay    time.Duration // SIGNALING_RECONNECT_DELAY_MS
	ReconnectDelayMax time.Duration // SIGNALING_RECONNECT_DELAY_MAX_MS
	ConnectTimeout    time.Duration // SIGNALING_CONNECT_TIMEOUT_MS

	// Chat
	ChatMaxMessageLen int // CHAT_MAX_MESSAGE_LEN

	// Viewer: rejoin media automatically after a signaling reconnect if the
	// viewer had an active media join. Off by default: rejoining commits
	// bandwidth on the viewer's behalf.
	AutoRejoinOnReconnect bool // AUTO_REJOIN_ON_RECONNECT

	// Broadcaster recording (best-effort local capture)
	RecordingEnabled bool   // RECORDING_ENABLED
	RecordingDir     string // RECORDING_DIR — optional on-disk copy of the blob

	// simulate: local dev harness listen address
	SimHost string // SIM_HOST
	SimPort string // SIM_PORT
}

// Load loads config from environment (.env if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	attempts, _ := strconv.Atoi(getEnv("SIGNALING_RECONNECT_ATTEMPTS", "10"))
	delayMs, _ := strconv.Atoi(getEnv("SIGNALING_RECONNECT_DELAY_MS", "1000"))
	delayMaxMs, _ := strconv.Atoi(getEnv("SIGNALING_RECONNECT_DELAY_MAX_MS", "5000"))
	timeoutMs, _ := strconv.Atoi(getEnv("SIGNALING_CONNECT_TIMEOUT_MS", "20000"))
	chatMax, _ := strconv.Atoi(getEnv("CHAT_MAX_MESSAGE_LEN", "200"))

	cfg := &Config{
		AppEnv:                getEnv("APP_ENV", "development"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		APIBaseURL:            getEnv("API_BASE_URL", "http://localhost:8090"),
		SignalingURL:          getEnv("SIGNALING_URL", "ws://localhost:8090/ws/live"),
		MediaURL:              getEnv("MEDIA_URL", "http://localhost:8090/media"),
		ReconnectAttempts:     attempts,
		ReconnectDelay:        time.Duration(delayMs) * time.Millisecond,
		ReconnectDelayMax:     time.Duration(delayMaxMs) * time.Millisecond,
		ConnectTimeout:        time.Duration(timeoutMs) * time.Millisecond,
		ChatMaxMessageLen:     chatMax,
		AutoRejoinOnReconnect: getEnv("AUTO_REJOIN_ON_RECONNECT", "false") == "true",
		RecordingEnabled:      getEnv("RECORDING_ENABLED", "true") == "true",
		RecordingDir:          getEnv("RECORDING_DIR", ""),
		SimHost:               getEnv("SIM_HOST", "0.0.0.0"),
		SimPort:               firstEnv("SIM_PORT", "APP_PORT", "8090"),
	}
	return cfg, nil
}

// Validate checks required fields and value sanity.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("config: API_BASE_URL is required")
	}
	if c.SignalingURL == "" {
		return errors.New("config: SIGNALING_URL is required")
	}
	u, err := url.Parse(c.SignalingURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("config: SIGNALING_URL must be a ws:// or wss:// URL, got %q", c.SignalingURL)
	}
	if c.MediaURL == "" {
		return errors.New("config: MEDIA_URL is required")
	}
	if c.ReconnectAttempts <= 0 {
		return errors.New("config: SIGNALING_RECONNECT_ATTEMPTS must be positive")
	}
	if c.ReconnectDelay <= 0 || c.ReconnectDelayMax < c.ReconnectDelay {
		return errors.New("config: reconnect delays must be positive and max >= initial")
	}
	if c.ChatMaxMessageLen <= 0 {
		return errors.New("config: CHAT_MAX_MESSAGE_LEN must be positive")
	}
	return nil
}

// SimAddr returns listen address for the simulate HTTP server.
func (c *Config) SimAddr() string {
	return c.SimHost + ":" + c.SimPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	keys := keysAndDef[:len(keysAndDef)-1]
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
