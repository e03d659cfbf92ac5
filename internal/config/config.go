package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Gemini  GeminiConfig
	Storage StorageConfig
	Feed    FeedConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Timeout bounds each analysis request. Zero means no client timeout.
	Timeout time.Duration
}

type StorageConfig struct {
	DataDir string
}

type FeedConfig struct {
	// Path to a YAML feed replacing the built-in one. Empty uses the built-in.
	Path string
}

type LogConfig struct {
	Level string
}

// Fallback environment variables for the Gemini API key, checked in order
// after STYLELENS_GEMINI_API_KEY.
var apiKeyFallbackEnv = []string{"GEMINI_API_KEY", "API_KEY"}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Model:   "gemini-3-pro-preview",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend, a .env file in the
// working directory, environment variables and the platform secret store.
//
// The file lives at $XDG_CONFIG_HOME/stylelens/config.json. Environment
// variables (STYLELENS_*) override file values. Variables from .env never
// override ones already set in the process environment.
//
// Load does not require the Gemini API key; commands that call the service
// check it with RequireAPIKey.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not read .env: %v\n", err)
	}
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadFromPath(path string, kc keychain) (Config, error) {
	return loadWith(newFileBackend(path), kc)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, env := range apiKeyFallbackEnv {
		if cfg.Gemini.APIKey != "" {
			break
		}
		cfg.Gemini.APIKey = os.Getenv(env)
	}

	if cfg.Gemini.APIKey == "" {
		if key, err := kc.Get("stylelens", "gemini_api_key"); err == nil && key != "" {
			cfg.Gemini.APIKey = key
		}
	}

	return cfg, nil
}

// RequireAPIKey returns an error naming every place the Gemini API key can
// be supplied when none was found.
func (c Config) RequireAPIKey() error {
	if c.Gemini.APIKey != "" {
		return nil
	}
	return fmt.Errorf("missing required config: Gemini API key. "+
		"Set it via environment variable STYLELENS_GEMINI_API_KEY (or %s), a .env file%s",
		strings.Join(apiKeyFallbackEnv, ", "), apiKeyHint())
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
