package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	envConfigPath         = "LINEECHO_CONFIG"
	envChannelSecret      = "LINE_CHANNEL_SECRET"
	envChannelAccessToken = "LINE_CHANNEL_ACCESS_TOKEN"
)

const (
	DefaultCallbackPath  = "/callback"
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 8000
	DefaultMaxBodyBytes  = 1 << 20
	DefaultAPITimeoutSec = 10
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Line    LineConfig    `json:"line"`
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// LineConfig holds the channel credentials and webhook settings.
type LineConfig struct {
	ChannelSecret         string `json:"channel_secret"`
	ChannelAccessToken    string `json:"channel_access_token"`
	APIEndpoint           string `json:"api_endpoint,omitempty"`
	CallbackPath          string `json:"callback_path,omitempty"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds,omitempty"`
}

// ServerConfig configures HTTP bind settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	MaxBodyBytes int64  `json:"max_body_bytes,omitempty"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

// Validate reports the first missing or malformed required setting.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}
	if strings.TrimSpace(c.Line.ChannelSecret) == "" {
		return errors.New("line.channel_secret is required")
	}
	if strings.TrimSpace(c.Line.ChannelAccessToken) == "" {
		return errors.New("line.channel_access_token is required")
	}
	if !strings.HasPrefix(c.Line.CallbackPath, "/") {
		return fmt.Errorf("line.callback_path must start with /: %q", c.Line.CallbackPath)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	return nil
}

// Address returns the host:port the HTTP server binds to.
func (s ServerConfig) Address() string {
	host := strings.TrimSpace(s.Host)
	if host == "" {
		host = DefaultHost
	}

	port := s.Port
	if port <= 0 {
		port = DefaultPort
	}

	return fmt.Sprintf("%s:%d", host, port)
}

// applyEnvOverrides injects the channel secrets from the environment on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if secret := strings.TrimSpace(os.Getenv(envChannelSecret)); secret != "" {
		cfg.Line.ChannelSecret = secret
	}

	if token := strings.TrimSpace(os.Getenv(envChannelAccessToken)); token != "" {
		cfg.Line.ChannelAccessToken = token
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Line.CallbackPath) == "" {
		cfg.Line.CallbackPath = DefaultCallbackPath
	}
	if cfg.Line.RequestTimeoutSeconds <= 0 {
		cfg.Line.RequestTimeoutSeconds = DefaultAPITimeoutSec
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// findConfigPath resolves the active config file location.
//
// Precedence is LINEECHO_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
