package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database     DatabaseConnection `mapstructure:"database"`
	StateStorage StateStorage       `mapstructure:"state_storage"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// DatabaseConnection points at the local RDB database of this field instance.
type DatabaseConnection struct {
	Driver              string `mapstructure:"driver"` // mysql or sqlite
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	User                string `mapstructure:"user"`
	Password            string `mapstructure:"password"`
	Database            string `mapstructure:"database"`
	FilePath            string `mapstructure:"file_path"` // For SQLite
	ReplicationUser     string `mapstructure:"replication_user"`
	ReplicationPassword string `mapstructure:"replication_password"`
	ServerID            uint32 `mapstructure:"server_id"`
}

type StateStorage struct {
	Type     string `mapstructure:"type"` // mysql or bolt
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	FilePath string `mapstructure:"file_path"` // For bolt
}

// RemoteConfig describes the home base RDB the field instance pushes to.
type RemoteConfig struct {
	Name          string `mapstructure:"name"`
	BaseURL       string `mapstructure:"base_url"`
	APIPath       string `mapstructure:"api_path"`
	Token         string `mapstructure:"token"`
	Timeout       string `mapstructure:"timeout"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryInterval string `mapstructure:"retry_interval"`
	RetryMaxDelay string `mapstructure:"retry_max_delay"`
}

func (r RemoteConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(r.Timeout)
	return d
}

func (r RemoteConfig) GetRetryInterval() time.Duration {
	d, _ := time.ParseDuration(r.RetryInterval)
	return d
}

func (r RemoteConfig) GetRetryMaxDelay() time.Duration {
	d, _ := time.ParseDuration(r.RetryMaxDelay)
	return d
}

// Target names the checkpoint and id mappings kept for this remote.
func (r RemoteConfig) Target() string {
	if r.Name != "" {
		return r.Name
	}
	return strings.TrimRight(r.BaseURL, "/")
}

type SyncConfig struct {
	MediaRoot     string   `mapstructure:"media_root"`
	RunTimeout    string   `mapstructure:"run_timeout"`
	SerialRetries int      `mapstructure:"serial_retries"`
	Realtime      bool     `mapstructure:"realtime"`
	WatchTables   []string `mapstructure:"watch_tables"`
	Debounce      string   `mapstructure:"debounce"`
}

func (s SyncConfig) GetRunTimeout() time.Duration {
	d, _ := time.ParseDuration(s.RunTimeout)
	return d
}

func (s SyncConfig) GetDebounce() time.Duration {
	d, _ := time.ParseDuration(s.Debounce)
	return d
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	File     string `mapstructure:"file"` // empty logs to stderr
	MaxSize  int    `mapstructure:"max_size"`
	MaxAge   int    `mapstructure:"max_age"`
	Compress bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "rdb")
	v.SetDefault("database.file_path", "")
	v.SetDefault("database.replication_user", "")
	v.SetDefault("database.replication_password", "")
	v.SetDefault("database.server_id", 1001)
	v.SetDefault("state_storage.type", "bolt")
	v.SetDefault("state_storage.file_path", "data/rdbsync.db")
	v.SetDefault("state_storage.host", "127.0.0.1")
	v.SetDefault("state_storage.port", 3306)
	v.SetDefault("state_storage.user", "")
	v.SetDefault("state_storage.password", "")
	v.SetDefault("state_storage.database", "rdbsync")
	v.SetDefault("remote.name", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.api_path", "/api/v1")
	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("remote.retry_count", 3)
	v.SetDefault("remote.retry_interval", "1s")
	v.SetDefault("remote.retry_max_delay", "30s")
	v.SetDefault("sync.media_root", "media")
	v.SetDefault("sync.run_timeout", "30m")
	v.SetDefault("sync.serial_retries", 10)
	v.SetDefault("sync.debounce", "5s")
	v.SetDefault("sync.watch_tables", []string{
		"locations_location",
		"userdefinedfields_field",
		"userdefinedfields_fieldvalue",
		"inventory_inventory",
		"inventory_action",
		"inventory_photonote",
	})
	v.SetDefault("sync.realtime", false)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", "@every 1h")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth_token", "")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "35m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_age", 30)
}

// LoadConfig reads path (if it exists), .env files and the environment.
// RDB_SITE_URL is honoured for the remote base URL.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RDBSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("remote.base_url", "RDBSYNC_REMOTE_BASE_URL", "RDB_SITE_URL"); err != nil {
		return nil, err
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Remote.BaseURL) == "" {
		return errors.New("remote.base_url is required (or set RDB_SITE_URL)")
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.StateStorage.Type {
	case "mysql", "bolt":
	default:
		return fmt.Errorf("unsupported state storage %q", c.StateStorage.Type)
	}
	if c.Remote.RetryCount < 0 {
		return errors.New("remote.retry_count must not be negative")
	}
	return nil
}
