package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kalambet/voicecrm/internal/extract"
	"github.com/kalambet/voicecrm/internal/provider"
	"github.com/kalambet/voicecrm/internal/speech"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	AI      AIConfig
	Upload  UploadConfig
	CORS    CORSConfig
	Log     LogConfig
	Eval    EvalConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	DataDir string
}

type AIConfig struct {
	APIKey             string
	BaseURL            string
	TranscribeModel    string
	TranscribeLanguage string
	ExtractModel       string
}

type UploadConfig struct {
	TempDir  string
	MaxBytes int64
}

type CORSConfig struct {
	// AllowedOrigins is a comma-separated list; "*" allows any origin.
	AllowedOrigins string
}

type LogConfig struct {
	Level  string
	Format string
}

type EvalConfig struct {
	OutputDir   string
	Concurrency int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Storage: StorageConfig{
			DataDir: ".",
		},
		AI: AIConfig{
			BaseURL:            provider.DefaultBaseURL,
			TranscribeModel:    speech.DefaultModel,
			TranscribeLanguage: speech.DefaultLanguage,
			ExtractModel:       extract.DefaultModel,
		},
		Upload: UploadConfig{
			TempDir:  os.TempDir(),
			MaxBytes: 25 << 20,
		},
		CORS: CORSConfig{
			AllowedOrigins: "*",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Eval: EvalConfig{
			OutputDir:   "eval",
			Concurrency: 1,
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/voicecrm/config.json, then applies environment overrides
// (VOICECRM_*). The AI credential comes only from GROQ_API_KEY and may be
// empty; calls that need it fail later with provider.ErrMissingAPIKey.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside the server.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("upload.max_bytes must be positive, got %d", c.Upload.MaxBytes))
	}
	if c.Eval.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("eval.concurrency must be at least 1, got %d", c.Eval.Concurrency))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Origins splits AllowedOrigins into its entries.
func (c CORSConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
