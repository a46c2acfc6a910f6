// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Workers  int    `yaml:"workers"` // concurrent update handlers
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type WebConfig struct {
	Port               int           `yaml:"port"`
	AdminAPIKey        string        `yaml:"admin_api_key"`
	AdminSessionSecret string        `yaml:"admin_session_secret"`
	AdminSessionTTL    time.Duration `yaml:"admin_session_ttl"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	StateTTL time.Duration `yaml:"state_ttl"` // conversational state lifetime
}

// GeneratorConfig drives the external LLM client and the job-level retry
// discipline. CallTimeout must stay well under JobTimeout so one backoff and
// a second attempt still fit inside the job budget.
type GeneratorConfig struct {
	AuthKey     string  `yaml:"auth_key"` // base64 client_id:client_secret
	AuthURL     string  `yaml:"auth_url"`
	Scope       string  `yaml:"scope"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	CACertFile  string  `yaml:"ca_cert_file"`
	Insecure    bool    `yaml:"insecure"` // skip TLS verification when no CA bundle is available

	OpenAIKey     string `yaml:"openai_key"` // OpenAI-compatible fallback provider
	OpenAIBaseURL string `yaml:"openai_base_url"`

	JobTimeout  time.Duration `yaml:"job_timeout"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	Attempts    int           `yaml:"attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

type ScheduleConfig struct {
	BaseURL       string        `yaml:"base_url"`
	DefaultPeriod string        `yaml:"default_period"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
}

type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
	MaxWait  time.Duration `yaml:"max_wait"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	Web       WebConfig       `yaml:"web"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Generator GeneratorConfig `yaml:"generator"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Poll      PollConfig      `yaml:"poll"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Web.Port <= 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Web.AdminSessionTTL <= 0 {
		cfg.Web.AdminSessionTTL = 30 * time.Minute
	}
	if cfg.Redis.StateTTL <= 0 {
		cfg.Redis.StateTTL = 15 * time.Minute
	}
	if cfg.Generator.AuthURL == "" {
		cfg.Generator.AuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	}
	if cfg.Generator.Scope == "" {
		cfg.Generator.Scope = "GIGACHAT_API_PERS"
	}
	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "https://gigachat.devices.sberbank.ru/api/v1"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "GigaChat-Pro"
	}
	if cfg.Generator.Temperature <= 0 {
		cfg.Generator.Temperature = 0.6
	}
	if cfg.Generator.JobTimeout <= 0 {
		cfg.Generator.JobTimeout = 180 * time.Second
	}
	if cfg.Generator.CallTimeout <= 0 {
		cfg.Generator.CallTimeout = 80 * time.Second
	}
	if cfg.Generator.Attempts <= 0 {
		cfg.Generator.Attempts = 2
	}
	if cfg.Generator.Backoff <= 0 {
		cfg.Generator.Backoff = 30 * time.Second
	}
	if cfg.Schedule.DefaultPeriod == "" {
		cfg.Schedule.DefaultPeriod = "1 numerator"
	}
	if cfg.Schedule.CallTimeout <= 0 {
		cfg.Schedule.CallTimeout = 10 * time.Second
	}
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = 15 * time.Second
	}
	if cfg.Poll.MaxWait <= 0 {
		cfg.Poll.MaxWait = 100 * time.Second
	}

	// Minimal validation. The per-call budget must leave slack for one
	// backoff plus a retry inside the job budget.
	if cfg.Bot.Token == "" && !dev {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Generator.CallTimeout >= cfg.Generator.JobTimeout {
		return nil, errors.New("generator.call_timeout must be smaller than generator.job_timeout")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
