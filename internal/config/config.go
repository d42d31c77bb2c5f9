package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Ledger struct {
		// Backend is one of memory, redis, postgres or sqlite.
		Backend string `yaml:"backend"`
	} `yaml:"ledger"`
	Vault struct {
		TTL  string `yaml:"ttl"`
		Seed string `yaml:"seed"`
	} `yaml:"vault"`
	AntiCheat struct {
		MinAnswerMillis         int64  `yaml:"min_answer_ms"`
		PerCharMillis           int64  `yaml:"per_char_ms"`
		PerWeightMillis         int64  `yaml:"per_weight_ms"`
		SessionFloorPerQuestion int64  `yaml:"session_floor_per_question_ms"`
		RejectViolations        int    `yaml:"reject_violations"`
		ReplayWindow            string `yaml:"replay_window"`
		TraceRetention          string `yaml:"trace_retention"`
	} `yaml:"anticheat"`
	Leaderboard struct {
		FeedSize int `yaml:"feed_size"`
	} `yaml:"leaderboard"`
	Identity struct {
		Secret   string `yaml:"secret"`
		TokenTTL string `yaml:"token_ttl"`
	} `yaml:"identity"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path and applies environment overrides.
// A missing file yields an environment-only config.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"PORT":            &c.Server.Port,
		"REDIS_ADDR":      &c.Redis.Addr,
		"REDIS_PASSWORD":  &c.Redis.Password,
		"POSTGRES_URL":    &c.Postgres.URL,
		"SQLITE_PATH":     &c.SQLite.Path,
		"LEDGER_BACKEND":  &c.Ledger.Backend,
		"VAULT_SEED":      &c.Vault.Seed,
		"IDENTITY_SECRET": &c.Identity.Secret,
		"LOG_LEVEL":       &c.Log.Level,
		"LOG_FORMAT":      &c.Log.Format,
	}
	for env, field := range overrides {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*field = v
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
