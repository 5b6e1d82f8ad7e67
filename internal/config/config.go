// Package config resolves runtime configuration from environment variables.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Placeholder value shipped in example env files. A key equal to this must be
// rejected before any API call is attempted.
const apiKeyPlaceholder = "YOUR_API_KEY"

var (
	ErrMissingAPIKey     = errors.New("OPENAI_API_KEY is not set")
	ErrPlaceholderAPIKey = errors.New("OPENAI_API_KEY still holds the placeholder value")
)

// Config stores runtime configuration for murmur.
type Config struct {
	API     APIConfig
	Store   StoreConfig
	Record  RecordConfig
	History HistoryConfig
	Debug   bool
}

type APIConfig struct {
	Key             string
	TranscribeURL   string
	ChatURL         string
	TranscribeModel string
	ChatModel       string
	Language        string
	UploadTimeout   time.Duration
	ChatTimeout     time.Duration
}

type StoreConfig struct {
	Path string
}

type RecordConfig struct {
	Dir        string
	Compressed bool
}

type HistoryConfig struct {
	Limit int
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	dataDir := envOrDefault("MURMUR_DATA_DIR", filepath.Join(home, ".local", "share", "murmur"))

	cfg := Config{
		API: APIConfig{
			Key:             strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			TranscribeURL:   envOrDefault("MURMUR_TRANSCRIBE_URL", "https://api.openai.com/v1/audio/transcriptions"),
			ChatURL:         envOrDefault("MURMUR_CHAT_URL", "https://api.openai.com/v1/chat/completions"),
			TranscribeModel: envOrDefault("MURMUR_TRANSCRIBE_MODEL", "whisper-1"),
			ChatModel:       envOrDefault("MURMUR_CHAT_MODEL", "gpt-4o-mini"),
			Language:        envOrDefault("MURMUR_LANGUAGE", "en"),
			UploadTimeout:   time.Duration(envOrDefaultInt("MURMUR_UPLOAD_TIMEOUT_S", 30)) * time.Second,
			ChatTimeout:     time.Duration(envOrDefaultInt("MURMUR_CHAT_TIMEOUT_S", 20)) * time.Second,
		},
		Store: StoreConfig{
			Path: envOrDefault("MURMUR_DB_PATH", filepath.Join(dataDir, "murmur.sqlite")),
		},
		Record: RecordConfig{
			Dir:        envOrDefault("MURMUR_RECORDINGS_DIR", filepath.Join(dataDir, "recordings")),
			Compressed: envOrDefaultBool("MURMUR_COMPRESSED", false),
		},
		History: HistoryConfig{
			Limit: envOrDefaultInt("MURMUR_HISTORY_LIMIT", 5),
		},
		Debug: envOrDefaultBool("MURMUR_DEBUG", false),
	}

	if cfg.History.Limit <= 0 {
		cfg.History.Limit = 5
	}
	if cfg.API.UploadTimeout <= 0 {
		cfg.API.UploadTimeout = 30 * time.Second
	}
	if cfg.API.ChatTimeout <= 0 {
		cfg.API.ChatTimeout = 20 * time.Second
	}

	return cfg, nil
}

// Validate checks the credential without touching the network.
func (c Config) Validate() error {
	switch c.API.Key {
	case "":
		return ErrMissingAPIKey
	case apiKeyPlaceholder:
		return ErrPlaceholderAPIKey
	}
	return nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
