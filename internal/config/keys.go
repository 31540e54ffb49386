package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "VOICECRM_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "VOICECRM_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VOICECRM_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "ai.api_key", typ: kString, env: "GROQ_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.AI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.APIKey },
	},
	{
		key: "ai.base_url", typ: kString, env: "VOICECRM_AI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.AI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.BaseURL },
	},
	{
		key: "ai.transcribe_model", typ: kString, env: "VOICECRM_AI_TRANSCRIBE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.TranscribeModel = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.TranscribeModel },
	},
	{
		key: "ai.transcribe_language", typ: kString, env: "VOICECRM_AI_TRANSCRIBE_LANGUAGE",
		apply:   func(cfg *Config, v any) { cfg.AI.TranscribeLanguage = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.TranscribeLanguage },
	},
	{
		key: "ai.extract_model", typ: kString, env: "VOICECRM_AI_EXTRACT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.ExtractModel = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.ExtractModel },
	},
	{
		key: "upload.temp_dir", typ: kString, env: "VOICECRM_UPLOAD_TEMP_DIR",
		apply:   func(cfg *Config, v any) { cfg.Upload.TempDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Upload.TempDir },
	},
	{
		key: "upload.max_bytes", typ: kInt, env: "VOICECRM_UPLOAD_MAX_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Upload.MaxBytes = int64(v.(int)) },
		extract: func(cfg Config) any { return cfg.Upload.MaxBytes },
	},
	{
		key: "cors.allowed_origins", typ: kString, env: "VOICECRM_CORS_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.CORS.AllowedOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.CORS.AllowedOrigins },
	},
	{
		key: "log.level", typ: kString, env: "VOICECRM_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "VOICECRM_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "eval.output_dir", typ: kString, env: "VOICECRM_EVAL_OUTPUT_DIR",
		apply:   func(cfg *Config, v any) { cfg.Eval.OutputDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Eval.OutputDir },
	},
	{
		key: "eval.concurrency", typ: kInt, env: "VOICECRM_EVAL_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Eval.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Eval.Concurrency },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
