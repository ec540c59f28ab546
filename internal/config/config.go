package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the proxy, the publisher and the
// renewal task. It is loaded once at startup and treated as read-only.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Sge       SgeConfig       `mapstructure:"sge"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Streams   StreamsConfig   `mapstructure:"streams"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Logging   LoggingConfig   `mapstructure:"logging"`

	// path the configuration was loaded from, used to resolve
	// relative certificate and key paths
	path string
}

// ServerConfig holds the HTTP server configuration for the client API.
type ServerConfig struct {
	Hostname     string        `mapstructure:"hostname"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// MessagingConfig holds the delivery transport credentials.
type MessagingConfig struct {
	URL      string        `mapstructure:"url"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SgeConfig holds the DSO web services credentials.
type SgeConfig struct {
	Login       string `mapstructure:"login"`
	ContractID  string `mapstructure:"contract_id"`
	Certificate string `mapstructure:"certificate"`
	PrivateKey  string `mapstructure:"private_key"`
	Environment string `mapstructure:"environment"`
}

// IsHomologation reports whether calls target the DSO test bus.
func (c *SgeConfig) IsHomologation() bool {
	return c.Environment != "production"
}

// DatabaseConfig holds the ledger database configuration.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AesKey is one (iv, key) decryption pair, hex encoded. Keys are tried
// in declaration order to support rotation.
type AesKey struct {
	IV  string `mapstructure:"iv"`
	Key string `mapstructure:"key"`
}

// StreamsConfig holds the ingestion directory triple and the key ring.
type StreamsConfig struct {
	InboxDir   string   `mapstructure:"inbox_dir"`
	ArchiveDir string   `mapstructure:"archive_dir"`
	ErrorsDir  string   `mapstructure:"errors_dir"`
	AesKeys    []AesKey `mapstructure:"aes_keys"`
}

// PublisherConfig holds delivery fan-out tuning.
type PublisherConfig struct {
	ChunkSize     int     `mapstructure:"chunk_size"`
	RecordsPerSec float64 `mapstructure:"records_per_sec"`
	WatchInbox    bool    `mapstructure:"watch_inbox"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// Load reads the JSON configuration document from the given path.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetDefault("server.hostname", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("messaging.timeout", 10*time.Second)
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", time.Hour)
	v.SetDefault("publisher.chunk_size", 50)
	v.SetDefault("publisher.records_per_sec", 100.0)
	v.SetDefault("logging.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.path = configPath

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("db.url is required")
	}
	if c.Sge.Login == "" {
		return fmt.Errorf("sge.login is required")
	}
	if c.Publisher.ChunkSize <= 0 {
		return fmt.Errorf("publisher.chunk_size must be positive")
	}
	if c.Publisher.RecordsPerSec <= 0 {
		return fmt.Errorf("publisher.records_per_sec must be positive")
	}
	for i, k := range c.Streams.AesKeys {
		if k.IV == "" || k.Key == "" {
			return fmt.Errorf("streams.aes_keys[%d] must provide both iv and key", i)
		}
	}
	return nil
}

// Abspath resolves a path relative to the configuration file location,
// so that certificate and key references can stay next to the config.
func (c *Config) Abspath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(c.path), path)
}
