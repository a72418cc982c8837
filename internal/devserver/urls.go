package devserver

import (
	"strings"

	"github.com/artisan-platform/live-session/pkg/constants"
)

// URLConfig holds the external base URL the harness reports in responses.
type URLConfig struct {
	BaseURL string // e.g. http://localhost:8090
}

// SignalingURL returns the ws:// URL of the event socket.
func (c *URLConfig) SignalingURL() string {
	base := c.base()
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + constants.PathSignalingWS
}

// MediaURL returns the WHIP endpoint for authors, WHEP for viewers.
func (c *URLConfig) MediaURL(role string) string {
	if role == "AUTHOR" {
		return c.base() + constants.PathWHIP
	}
	return c.base() + constants.PathWHEP
}

func (c *URLConfig) base() string {
	if c == nil || c.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.BaseURL, "/")
}
