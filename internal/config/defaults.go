package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	configFileMode = 0o600
	configDirMode  = 0o700
)

func defaults(root string) map[string]map[string]any {
	return map[string]map[string]any{
		"paths": {
			"home":         root,
			"sessions_dir": filepath.Join(root, "sessions"),
			"accounts":     filepath.Join(root, "accounts.toml"),
			"ledger":       filepath.Join(root, "history.db"),
		},
		"remote": {
			"graphql_url":    "https://virusgift.pro/api/graphql/query",
			"app_url":        "https://virusgift.pro/",
			"bot_ref":        "@virus_play_bot",
			"ref_code":       "",
			"timeout":        20 * time.Second,
			"retry_attempts": 3,
			"retry_backoff":  500 * time.Millisecond,
		},
		"gateway": {
			"base_url": "http://127.0.0.1:8089",
			"timeout":  20 * time.Second,
		},
		"pool": {
			"construct_limit": 5,
			"validate_limit":  15,
			"connect_timeout": 20 * time.Second,
		},
		"governor": {
			"min_interval":  500 * time.Millisecond,
			"max_workflows": 0,
		},
		"cache": {
			"backend":       CacheBackendMemory,
			"redis_addr":    "",
			"redis_db":      0,
			"profile_ttl":   10 * time.Second,
			"balance_ttl":   10 * time.Second,
			"inventory_ttl": 15 * time.Second,
			"validity_ttl":  5 * time.Minute,
		},
		"reward": {
			"reserve_floor":             int64(100),
			"high_value_threshold":      int64(200),
			"exchange_threshold":        int64(200),
			"exchange_after_spin":       true,
			"exchange_on_balance_check": true,
		},
		"paid_spin": {
			"type":           "PAID",
			"min_stars":      int64(200),
			"auto_enabled":   false,
			"auto_threshold": int64(200),
		},
		"batch": {
			"balance_batch_size": 20,
			"progress_interval":  1500 * time.Millisecond,
		},
		"daemon": {
			"listen":             "127.0.0.1:9464",
			"spin_schedule":      "@every 1h",
			"paid_spin_schedule": "@every 5m",
			"timezone":           "UTC",
			"watch_sessions":     true,
		},
		"notify": {
			"telegram_token":   "",
			"telegram_chat_id": int64(0),
		},
		"log": {
			"level": "info",
		},
	}
}

func applyDefaults(v *viper.Viper, root string) {
	for section, values := range defaults(root) {
		for key, value := range values {
			v.SetDefault(section+"."+key, value)
		}
	}
}

// WriteDefault writes a config.toml holding every default to path,
// replacing any existing file atomically.
func WriteDefault(path string) error {
	root := filepath.Dir(path)
	doc := make(map[string]map[string]any)
	for section, values := range defaults(root) {
		encoded := make(map[string]any, len(values))
		for key, value := range values {
			if d, ok := value.(time.Duration); ok {
				encoded[key] = d.String()
				continue
			}
			encoded[key] = value
		}
		doc[section] = encoded
	}

	if err := os.MkdirAll(root, configDirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config file: %w", err)
	}

	if err := renameio.WriteFile(path, data, configFileMode); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// DefaultPath is the config.toml location below the user's home directory.
func DefaultPath(homeDir string) string {
	return filepath.Join(homeDir, configDir, configName+"."+configType)
}
