// Package birdd holds the daemon's config, logging, and module
// supervision.
package birdd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for birdd.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Cache   CacheConfig   `toml:"cache"`
	Library LibraryConfig `toml:"library"`
	Modules ModulesConfig `toml:"modules"`
}

// ServerConfig defines shared daemon settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	Identity  string     `toml:"identity"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds MQTT auth credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// CacheConfig configures the on-disk media cache.
type CacheConfig struct {
	Root string `toml:"root"`
	// MaxSizeMB is an advisory budget surfaced by cache.stats. The
	// daemon never evicts on its own.
	MaxSizeMB int64 `toml:"max_size_mb"`
}

// LibraryConfig configures the track listing backend.
type LibraryConfig struct {
	BaseURL  string   `toml:"base_url"`
	UserID   string   `toml:"user_id"`
	PageSize int      `toml:"page_size"`
	Feeds    []string `toml:"feeds"`
}

// ModulesConfig holds module configurations.
type ModulesConfig struct {
	Player       PlayerConfig       `toml:"player"`
	CacheManager CacheManagerConfig `toml:"cache_manager"`
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
}

// PlayerConfig configures the player module.
type PlayerConfig struct {
	Enabled  bool    `toml:"enabled"`
	NodeID   string  `toml:"node_id"`
	Name     string  `toml:"name"`
	TickMS   int64   `toml:"tick_ms"`
	Volume   float64 `toml:"volume"`
	Looping  bool    `toml:"looping"`
	Pipeline string  `toml:"pipeline"`
	Device   string  `toml:"device"`
}

// CacheManagerConfig configures the cache management module.
type CacheManagerConfig struct {
	Enabled bool   `toml:"enabled"`
	NodeID  string `toml:"node_id"`
	Name    string `toml:"name"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
}

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "bird", "birdd.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "bird", "birdd.toml"), nil
}

// DefaultCacheRoot returns the default media cache directory.
func DefaultCacheRoot() (string, error) {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "bird", "media"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", "bird", "media"), nil
}
