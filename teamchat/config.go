package teamchat

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls how the SDK connects.
type Config struct {
	// ServerURL is the websocket endpoint, e.g. "ws://localhost:8080/ws".
	ServerURL string
	// APIBaseURL is the REST endpoint, e.g. "http://localhost:8080/api".
	APIBaseURL string
	// Token is the bearer credential attached to the handshake and every
	// REST call. The SDK consumes it; issuance and refresh live elsewhere.
	Token string

	// HandshakeTimeout bounds dial plus hello/ack. Must be finite.
	HandshakeTimeout time.Duration
	// ReadTimeout/WriteTimeout bound individual socket operations.
	// Zero disables the read timeout (the push channel can idle).
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ReconnectDelay is the backoff base; attempt N waits N * ReconnectDelay.
	ReconnectDelay time.Duration
	// MaxReconnectTries bounds automatic reconnect attempts. Past the
	// ceiling the transport stays disconnected until an explicit Connect.
	MaxReconnectTries int

	// TypingWindow is the silence window after which typing state clears
	// and the auto stop-typing event fires.
	TypingWindow time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReconnectDelay:    2 * time.Second,
		MaxReconnectTries: 5,
		TypingWindow:      3 * time.Second,
	}
}

// fileConfig is the YAML shape; durations are strings like "10s".
type fileConfig struct {
	ServerURL         string `yaml:"server_url"`
	APIBaseURL        string `yaml:"api_base_url"`
	Token             string `yaml:"token"`
	HandshakeTimeout  string `yaml:"handshake_timeout"`
	ReadTimeout       string `yaml:"read_timeout"`
	WriteTimeout      string `yaml:"write_timeout"`
	ReconnectDelay    string `yaml:"reconnect_delay"`
	MaxReconnectTries *int   `yaml:"max_reconnect_tries"`
	TypingWindow      string `yaml:"typing_window"`
}

// LoadConfig reads a YAML config file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.ServerURL = fc.ServerURL
	cfg.APIBaseURL = fc.APIBaseURL
	cfg.Token = fc.Token
	if fc.MaxReconnectTries != nil {
		cfg.MaxReconnectTries = *fc.MaxReconnectTries
	}
	for _, d := range []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{fc.HandshakeTimeout, &cfg.HandshakeTimeout, "handshake_timeout"},
		{fc.ReadTimeout, &cfg.ReadTimeout, "read_timeout"},
		{fc.WriteTimeout, &cfg.WriteTimeout, "write_timeout"},
		{fc.ReconnectDelay, &cfg.ReconnectDelay, "reconnect_delay"},
		{fc.TypingWindow, &cfg.TypingWindow, "typing_window"},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return cfg, nil
}
