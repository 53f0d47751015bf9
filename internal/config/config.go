package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/teampulse/insight/internal/analytics"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Database  DatabaseConfig       `yaml:"database"`
	JWT       JWTConfig            `yaml:"jwt"`
	LLM       LLMConfig            `yaml:"llm"`
	Redis     RedisConfig          `yaml:"redis"`
	Cache     CacheConfig          `yaml:"cache"`
	Report    ReportConfig         `yaml:"report"`
	Analytics analytics.Thresholds `yaml:"analytics"`
	Log       LogConfig            `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
	// AllowedOrigins for CORS; empty allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`
	// AdvisoryRPS limits advisory and report requests per client IP.
	AdvisoryRPS   float64 `yaml:"advisory_rps"`
	AdvisoryBurst int     `yaml:"advisory_burst"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

// LLMConfig selects the generative backend for advisory insights. An empty
// provider keeps the deterministic template.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // openai, azure, anthropic, ollama, gemini
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RedisConfig for the optional shared cache and async task queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type CacheConfig struct {
	Backend     string        `yaml:"backend"` // memory, db, redis
	AdvisoryTTL time.Duration `yaml:"advisory_ttl"`
	ReportTTL   time.Duration `yaml:"report_ttl"`
	SweepEvery  time.Duration `yaml:"sweep_every"`
}

type ReportConfig struct {
	Dir         string        `yaml:"dir"`
	Retention   time.Duration `yaml:"retention"`
	PurgeCron   string        `yaml:"purge_cron"`
	PrewarmCron string        `yaml:"prewarm_cron"` // empty disables nightly prewarm
}

type LogConfig struct {
	Level string `yaml:"level"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	cfg.Analytics = cfg.Analytics.WithDefaults()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          "8080",
			Mode:          "debug",
			AdvisoryRPS:   2,
			AdvisoryBurst: 5,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "insight.db",
		},
		JWT: JWTConfig{
			Secret:     "insight-secret-key-change-in-production",
			ExpireHour: 24,
		},
		LLM: LLMConfig{
			MaxTokens:   1024,
			Temperature: 0.3,
			Timeout:     30 * time.Second,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Cache: CacheConfig{
			Backend:     "memory",
			AdvisoryTTL: time.Hour,
			ReportTTL:   6 * time.Hour,
			SweepEvery:  10 * time.Minute,
		},
		Report: ReportConfig{
			Dir:       "data/reports",
			Retention: 7 * 24 * time.Hour,
			PurgeCron: "0 3 * * *",
		},
		Analytics: analytics.DefaultThresholds(),
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		c.LLM.BaseURL = baseURL
	}
	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		c.LLM.APIKey = apiKey
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if backend := os.Getenv("CACHE_BACKEND"); backend != "" {
		c.Cache.Backend = backend
	}
	if dir := os.Getenv("REPORT_DIR"); dir != "" {
		c.Report.Dir = dir
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if days := os.Getenv("STALE_DAYS"); days != "" {
		if n, err := strconv.Atoi(days); err == nil {
			c.Analytics.StaleDays = n
		}
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
