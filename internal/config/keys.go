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
	kFloat
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
		key: "server.port", typ: kInt, env: "APPTRACK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "gmail.pending_label", typ: kString, env: "APPTRACK_GMAIL_PENDING_LABEL",
		apply:   func(cfg *Config, v any) { cfg.Gmail.PendingLabel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gmail.PendingLabel },
	},
	{
		key: "gmail.processed_label", typ: kString, env: "APPTRACK_GMAIL_PROCESSED_LABEL",
		apply:   func(cfg *Config, v any) { cfg.Gmail.ProcessedLabel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gmail.ProcessedLabel },
	},
	{
		key: "gmail.access_token", typ: kString, env: "APPTRACK_GMAIL_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gmail.AccessToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Gmail.AccessToken },
	},
	{
		key: "gemini.model", typ: kString, env: "APPTRACK_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "gemini.api_key", typ: kString, env: "APPTRACK_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.max_body_len", typ: kInt, env: "APPTRACK_GEMINI_MAX_BODY_LEN",
		apply:   func(cfg *Config, v any) { cfg.Gemini.MaxBodyLen = v.(int) },
		extract: func(cfg Config) any { return cfg.Gemini.MaxBodyLen },
	},
	{
		key: "pipeline.max_threads", typ: kInt, env: "APPTRACK_PIPELINE_MAX_THREADS",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.MaxThreads = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.MaxThreads },
	},
	{
		key: "pipeline.max_messages", typ: kInt, env: "APPTRACK_PIPELINE_MAX_MESSAGES",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.MaxMessages = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.MaxMessages },
	},
	{
		key: "pipeline.budget", typ: kString, env: "APPTRACK_PIPELINE_BUDGET",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Budget = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.Budget },
	},
	{
		key: "pipeline.messages_per_sec", typ: kFloat, env: "APPTRACK_PIPELINE_MESSAGES_PER_SEC",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.MessagesPerSec = v.(float64) },
		extract: func(cfg Config) any { return cfg.Pipeline.MessagesPerSec },
	},
	{
		key: "pipeline.run_interval", typ: kString, env: "APPTRACK_PIPELINE_RUN_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.RunInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.RunInterval },
	},
	{
		key: "sweep.inactive_days", typ: kInt, env: "APPTRACK_SWEEP_INACTIVE_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Sweep.InactiveDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Sweep.InactiveDays },
	},
	{
		key: "storage.data_dir", typ: kString, env: "APPTRACK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "APPTRACK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
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
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
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
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
