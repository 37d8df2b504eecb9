// Package config loads engine settings from ~/.spin-accounts/config.toml
// and SA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/bnema/spin-accounts-cli/internal/domain"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".spin-accounts"
	envPrefix  = "SA"
)

type Config struct {
	Paths    Paths    `mapstructure:"paths"`
	Remote   Remote   `mapstructure:"remote"`
	Gateway  Gateway  `mapstructure:"gateway"`
	Pool     Pool     `mapstructure:"pool"`
	Governor Governor `mapstructure:"governor"`
	Cache    Cache    `mapstructure:"cache"`
	Reward   Reward   `mapstructure:"reward"`
	PaidSpin PaidSpin `mapstructure:"paid_spin"`
	Batch    Batch    `mapstructure:"batch"`
	Daemon   Daemon   `mapstructure:"daemon"`
	Notify   Notify   `mapstructure:"notify"`
	Log      Log      `mapstructure:"log"`
}

type Paths struct {
	Home        string `mapstructure:"home"`
	SessionsDir string `mapstructure:"sessions_dir"`
	Accounts    string `mapstructure:"accounts"`
	Ledger      string `mapstructure:"ledger"`
}

type Remote struct {
	GraphQLURL    string        `mapstructure:"graphql_url"`
	AppURL        string        `mapstructure:"app_url"`
	BotRef        string        `mapstructure:"bot_ref"`
	RefCode       string        `mapstructure:"ref_code"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

type Gateway struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Pool struct {
	ConstructLimit int           `mapstructure:"construct_limit"`
	ValidateLimit  int           `mapstructure:"validate_limit"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type Governor struct {
	MinInterval  time.Duration `mapstructure:"min_interval"`
	MaxWorkflows int           `mapstructure:"max_workflows"`
}

type Cache struct {
	Backend      string        `mapstructure:"backend"`
	RedisAddr    string        `mapstructure:"redis_addr"`
	RedisDB      int           `mapstructure:"redis_db"`
	ProfileTTL   time.Duration `mapstructure:"profile_ttl"`
	BalanceTTL   time.Duration `mapstructure:"balance_ttl"`
	InventoryTTL time.Duration `mapstructure:"inventory_ttl"`
	ValidityTTL  time.Duration `mapstructure:"validity_ttl"`
}

type Reward struct {
	ReserveFloor           int64 `mapstructure:"reserve_floor"`
	HighValueThreshold     int64 `mapstructure:"high_value_threshold"`
	ExchangeThreshold      int64 `mapstructure:"exchange_threshold"`
	ExchangeAfterSpin      bool  `mapstructure:"exchange_after_spin"`
	ExchangeOnBalanceCheck bool  `mapstructure:"exchange_on_balance_check"`
}

type PaidSpin struct {
	Type          string `mapstructure:"type"`
	MinStars      int64  `mapstructure:"min_stars"`
	AutoEnabled   bool   `mapstructure:"auto_enabled"`
	AutoThreshold int64  `mapstructure:"auto_threshold"`
}

type Batch struct {
	BalanceBatchSize int           `mapstructure:"balance_batch_size"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

type Daemon struct {
	Listen           string `mapstructure:"listen"`
	SpinSchedule     string `mapstructure:"spin_schedule"`
	PaidSpinSchedule string `mapstructure:"paid_spin_schedule"`
	Timezone         string `mapstructure:"timezone"`
	WatchSessions    bool   `mapstructure:"watch_sessions"`
}

type Notify struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

// secretsEnv holds values that are only ever read from the environment.
type secretsEnv struct {
	TelegramToken  string `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `envconfig:"TELEGRAM_CHAT_ID"`
	RedisAddr      string `envconfig:"REDIS_ADDR"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
}

// Load reads config.toml from the config directory (missing file is fine),
// applies defaults and environment overrides, and validates the result.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}
	root := filepath.Join(homeDir, configDir)

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(root)
	applyDefaults(v, root)

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	var env secretsEnv
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	cfg.applyEnv(env)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(env secretsEnv) {
	if env.TelegramToken != "" {
		c.Notify.TelegramToken = env.TelegramToken
	}
	if env.TelegramChatID != 0 {
		c.Notify.TelegramChatID = env.TelegramChatID
	}
	if env.RedisAddr != "" {
		c.Cache.RedisAddr = env.RedisAddr
		c.Cache.Backend = CacheBackendRedis
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
}

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

func (c Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.SessionsDir) == "" {
		problems = append(problems, "paths.sessions_dir is required")
	}
	if c.Pool.ConstructLimit <= 0 {
		problems = append(problems, "pool.construct_limit must be positive")
	}
	if c.Pool.ValidateLimit <= 0 {
		problems = append(problems, "pool.validate_limit must be positive")
	}
	if c.Remote.RetryAttempts <= 0 {
		problems = append(problems, "remote.retry_attempts must be positive")
	}
	if c.Remote.RetryBackoff < 0 {
		problems = append(problems, "remote.retry_backoff must not be negative")
	}
	if c.Governor.MinInterval < 0 {
		problems = append(problems, "governor.min_interval must not be negative")
	}
	if c.Governor.MaxWorkflows < 0 {
		problems = append(problems, "governor.max_workflows must not be negative")
	}
	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			problems = append(problems, "cache.redis_addr is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported cache.backend %q", c.Cache.Backend))
	}
	if c.Reward.ReserveFloor < 0 {
		problems = append(problems, "reward.reserve_floor must not be negative")
	}
	if _, err := domain.ParseSpinType(c.PaidSpin.Type); err != nil {
		problems = append(problems, "paid_spin.type: "+err.Error())
	}
	if c.Batch.BalanceBatchSize <= 0 {
		problems = append(problems, "batch.balance_batch_size must be positive")
	}
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == 0 {
		problems = append(problems, "notify.telegram_chat_id is required when a telegram token is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}

	return nil
}
