package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Slack     SlackConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	// URL is either a postgres:// connection string or a sqlite file path.
	URL string
}

type SlackConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	APIBase      string
	AuthorizeURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SchedulerConfig struct {
	Interval    time.Duration
	Concurrency int
}

func LoadAll() (*Config, error) {
	var errs []error

	collect := func(key string) string {
		v, err := requireEnv(key)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectInt := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", "slack_connect.db"),
		},
		Slack: SlackConfig{
			ClientID:     collect("SLACK_CLIENT_ID"),
			ClientSecret: collect("SLACK_CLIENT_SECRET"),
			RedirectURI:  collect("SLACK_REDIRECT_URI"),
			APIBase:      getEnv("SLACK_API_BASE", "https://slack.com/api"),
			AuthorizeURL: getEnv("SLACK_AUTHORIZE_URL", "https://slack.com/oauth/v2/authorize"),
		},
		Scheduler: SchedulerConfig{
			Interval:    time.Duration(collectInt("SCHED_INTERVAL_SECONDS", 60)) * time.Second,
			Concurrency: collectInt("SCHED_CONCURRENCY", 4),
		},
	}

	redisCfg, redisErrs := loadRedisConfig()
	cfg.Redis = redisCfg
	errs = append(errs, redisErrs...)

	errs = append(errs, validate(cfg)...)

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, []error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	var errs []error
	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, err)
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		errs = append(errs, err)
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, errs
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHED_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Scheduler.Concurrency <= 0 {
		errs = append(errs, errors.New("SCHED_CONCURRENCY must be > 0"))
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
