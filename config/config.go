package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type StreamingConfig struct {
	FlushIntervalMS     int `toml:"flush_interval_ms"`
	MaxMessagesInMemory int `toml:"max_messages_in_memory"`
	HistoryLimit        int `toml:"history_limit"`
}

type SearchConfig struct {
	Enabled             bool   `toml:"enabled"`
	Endpoint            string `toml:"endpoint,omitempty"`
	MaxURLs             int    `toml:"max_urls"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
}

// ToolConfig describes an MCP server launched over stdio
type ToolConfig struct {
	ID      string            `toml:"id"`
	Command string            `toml:"command"`
	Args    []string          `toml:"args,omitempty"`
	Env     map[string]string `toml:"env,omitempty"`
}

type UserConfig struct {
	DefaultProvider string           `toml:"default_provider"`
	DefaultModel    string           `toml:"default_model"`
	SystemPrompt    string           `toml:"system_prompt,omitempty"`
	SecurityMethod  SecurityMethod   `toml:"security_method,omitempty"`
	SSHKeyPath      string           `toml:"ssh_key_path,omitempty"`
	Providers       []ProviderConfig `toml:"providers"`
	Streaming       StreamingConfig  `toml:"streaming"`
	Search          SearchConfig     `toml:"search"`
	Tools           []ToolConfig     `toml:"tools,omitempty"`
}

type Config struct {
	DataDirectory   string
	DefaultProvider string
	DefaultModel    string
	SystemPrompt    string
	Providers       []ProviderConfig
	Streaming       StreamingConfig
	Search          SearchConfig
	Tools           []ToolConfig

	CredentialStore *CredentialStore
}

var Debug = false

// DebugLog is nil unless debug logging was enabled with CHATDESK_DEBUG
var DebugLog *zerolog.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Streaming.FlushIntervalMS) * time.Millisecond
}

func (c *Config) FetchTimeout() time.Duration {
	return c.Search.FetchTimeout()
}

func (s SearchConfig) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutSeconds) * time.Second
}

// APIKey resolves the key for a provider: the credential store first, then
// <PROVIDER>_API_KEY from the environment.
func (c *Config) APIKey(providerID string) string {
	if c.CredentialStore != nil {
		if key := c.CredentialStore.Get(providerID); key != "" {
			return key
		}
	}
	return os.Getenv(strings.ToUpper(providerID) + "_API_KEY")
}

func (c *Config) applyEnvOverrides() {
	if provider := os.Getenv("CHATDESK_PROVIDER"); provider != "" {
		c.DefaultProvider = provider
	}
	if model := os.Getenv("CHATDESK_MODEL"); model != "" {
		c.DefaultModel = model
	}
}

func (c *Config) applyUserConfig(u *UserConfig) {
	d := DefaultUserConfig()

	c.DefaultProvider = firstNonEmpty(u.DefaultProvider, d.DefaultProvider)
	c.DefaultModel = firstNonEmpty(u.DefaultModel, d.DefaultModel)
	c.SystemPrompt = u.SystemPrompt
	c.Providers = u.Providers
	if len(c.Providers) == 0 {
		c.Providers = d.Providers
	}
	c.Tools = u.Tools

	c.Streaming = u.Streaming
	if c.Streaming.FlushIntervalMS <= 0 {
		c.Streaming.FlushIntervalMS = d.Streaming.FlushIntervalMS
	}
	if c.Streaming.MaxMessagesInMemory <= 0 {
		c.Streaming.MaxMessagesInMemory = d.Streaming.MaxMessagesInMemory
	}
	if c.Streaming.HistoryLimit <= 0 {
		c.Streaming.HistoryLimit = d.Streaming.HistoryLimit
	}

	c.Search = u.Search
	if c.Search.MaxURLs <= 0 {
		c.Search.MaxURLs = d.Search.MaxURLs
	}
	if c.Search.FetchTimeoutSeconds <= 0 {
		c.Search.FetchTimeoutSeconds = d.Search.FetchTimeoutSeconds
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func CheckDebug() bool {
	debug := os.Getenv("CHATDESK_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog opens <dataDir>/debug.log and installs DebugLog when
// CHATDESK_DEBUG is set. The returned logger is a no-op otherwise.
func InitDebugLog(dataDir string) zerolog.Logger {
	if !CheckDebug() {
		return zerolog.Nop()
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600: may contain prompts and tool output
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return zerolog.Nop()
	}

	logger := zerolog.New(f).With().Timestamp().Caller().Logger().Level(zerolog.DebugLevel)
	DebugLog = &logger
	DebugLog.Info().Str("path", logPath).Msg("debug logging started")
	return logger
}

// Load reads the system settings file, then the user config in the data
// directory, then applies .env and environment overrides. Missing files are
// created from templates.
func Load() (*Config, error) {
	cfg := &Config{DataDirectory: GetDefaultDataDir()}

	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}
	if systemCfg.DataDirectory != "" {
		cfg.DataDirectory = systemCfg.DataDirectory
	}
	if dataDir := os.Getenv("CHATDESK_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	}

	return LoadFromDataDir(cfg.DataDir())
}

// LoadFromDataDir loads everything that lives in dataDir. Used by Load and by
// tests that must not touch the real home directory.
func LoadFromDataDir(dataDir string) (*Config, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	cfg := &Config{DataDirectory: dataDir}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.applyUserConfig(userCfg)

	if err := LoadDotEnv(dataDir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	method := userCfg.SecurityMethod
	if method == "" {
		method = SecurityPlainText
	}
	cfg.CredentialStore = NewCredentialStore(method, ExpandPath(userCfg.SSHKeyPath))
	if err := cfg.CredentialStore.Load(dataDir); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads <dataDir>/.env without overriding variables already set
func LoadDotEnv(dataDir string) error {
	path := filepath.Join(dataDir, ".env")
	if !FileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
