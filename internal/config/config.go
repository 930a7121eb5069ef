package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server   ServerConfig
	Gmail    GmailConfig
	Gemini   GeminiConfig
	Pipeline PipelineConfig
	Sweep    SweepConfig
	Storage  StorageConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type GmailConfig struct {
	PendingLabel   string
	ProcessedLabel string
	AccessToken    string
}

type GeminiConfig struct {
	Model      string
	APIKey     string
	MaxBodyLen int
}

type PipelineConfig struct {
	MaxThreads     int
	MaxMessages    int
	Budget         string // duration, e.g. "4m"
	MessagesPerSec float64
	RunInterval    string // duration between scheduled runs; empty disables
}

type SweepConfig struct {
	InactiveDays int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4200,
		},
		Gmail: GmailConfig{
			PendingLabel:   "jobs-to-process",
			ProcessedLabel: "jobs-processed",
		},
		Gemini: GeminiConfig{
			Model:      "gemini-2.0-flash",
			MaxBodyLen: 4000,
		},
		Pipeline: PipelineConfig{
			MaxThreads:     25,
			MaxMessages:    40,
			Budget:         "4m",
			MessagesPerSec: 1,
			RunInterval:    "15m",
		},
		Sweep: SweepConfig{
			InactiveDays: 30,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.apptrack.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/apptrack/config.json
// and secrets must be provided via environment variables.
//
// Environment variables (APPTRACK_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try platform keychain for secrets still empty after env overrides.
	if cfg.Gemini.APIKey == "" {
		if key, err := kc.Get("apptrack", "gemini_api_key"); err == nil && key != "" {
			cfg.Gemini.APIKey = key
		}
	}
	if cfg.Gmail.AccessToken == "" {
		if tok, err := kc.Get("apptrack", "gmail_token"); err == nil && tok != "" {
			cfg.Gmail.AccessToken = tok
		}
	}

	if cfg.Gemini.APIKey == "" {
		msg := "missing required config: Gemini API key. " +
			"Set it via environment variable APPTRACK_GEMINI_API_KEY" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}
	if cfg.Gmail.AccessToken == "" {
		msg := "missing required config: Gmail access token. " +
			"Set it via environment variable APPTRACK_GMAIL_TOKEN" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

// keychainReader reads from macOS Keychain via the security CLI.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
