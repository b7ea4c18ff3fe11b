package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrConfigInvalid         = errors.New("config file failed validation")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v0.1.0"

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentBotVersion    = 1
	CurrentWorkerVersion = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	Bot    BotConfig
	Worker WorkerConfig
}

// CommonConfig contains configuration shared between bot and worker.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Encryption Encryption `koanf:"encryption"`
	Telemetry  Telemetry  `koanf:"telemetry"`
	Metrics    Metrics    `koanf:"metrics"`
}

// BotConfig contains Discord bot specific configuration.
type BotConfig struct {
	// Version of the bot config.
	Version int `koanf:"version"`
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout" validate:"gte=0"`
	// Discord configuration.
	Discord Discord `koanf:"discord"`
	// Message cache configuration.
	Cache Cache `koanf:"cache"`
}

// WorkerConfig contains worker specific configuration.
type WorkerConfig struct {
	// Version of the worker config.
	Version int `koanf:"version"`
	// Startup delay in milliseconds.
	StartupDelay int `koanf:"startup_delay" validate:"gte=0"`
	// Retention purge configuration.
	Purge Purge `koanf:"purge"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn error"`
	// Maximum log files to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep" validate:"gte=0"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines" validate:"gte=0"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host" validate:"required"`
	// Database port.
	Port int `koanf:"port" validate:"required,gt=0,lte=65535"`
	// Database username.
	User string `koanf:"user" validate:"required"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name" validate:"required"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns" validate:"gte=0"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns" validate:"gte=0"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime" validate:"gte=0"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time" validate:"gte=0"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host" validate:"required"`
	// Redis port.
	Port int `koanf:"port" validate:"required,gt=0,lte=65535"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Encryption contains the message encryption configuration.
type Encryption struct {
	// Master key used to derive per-message AES keys.
	MasterKey string `koanf:"master_key" validate:"required,min=16"`
}

// Telemetry contains OpenTelemetry export configuration.
type Telemetry struct {
	// Uptrace DSN. Tracing is disabled when empty.
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Deployment environment reported with traces.
	Environment string `koanf:"environment"`
}

// Metrics contains the Prometheus endpoint configuration.
type Metrics struct {
	// Enable the metrics and health server.
	Enabled bool `koanf:"enabled"`
	// Listen address, e.g. ":9090".
	Address string `koanf:"address" validate:"required_if=Enabled true"`
}

// Discord contains Discord bot configuration.
type Discord struct {
	// Discord bot token for authentication.
	Token string `koanf:"token" validate:"required"`
}

// Cache contains the message retention buffer configuration.
type Cache struct {
	// Number of buffered messages that triggers a flush.
	BatchSize int `koanf:"batch_size" validate:"gte=0"`
	// Maximum age in minutes of the oldest buffered message before a flush.
	BatchExpiration int `koanf:"batch_expiration" validate:"gte=0"`
	// Maximum size in bytes of a single retained attachment.
	MaxFileSize int `koanf:"max_file_size" validate:"gte=0"`
	// Maximum cumulative size in bytes of retained attachments per message.
	MaxAttachmentsSize int `koanf:"max_attachments_size" validate:"gte=0"`
	// Attachment download timeout in milliseconds.
	FetchTimeout int `koanf:"fetch_timeout" validate:"gte=0"`
}

// Purge contains the retention purge configuration.
type Purge struct {
	// Retention window in hours. Older stored messages are deleted.
	Retention int `koanf:"retention" validate:"gte=0"`
	// Minutes between purge runs.
	Interval int `koanf:"interval" validate:"gte=0"`
}

// RequestTimeoutDuration returns the bot request timeout as a duration.
func (c *BotConfig) RequestTimeoutDuration() time.Duration {
	if c.RequestTimeout <= 0 {
		return 5 * time.Second
	}

	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// FetchTimeoutDuration returns the attachment download timeout, defaulting to ten seconds.
func (c *Cache) FetchTimeoutDuration() time.Duration {
	if c.FetchTimeout <= 0 {
		return 10 * time.Second
	}

	return time.Duration(c.FetchTimeout) * time.Millisecond
}

// RetentionDuration returns the purge retention window, defaulting to seven days.
func (p *Purge) RetentionDuration() time.Duration {
	if p.Retention <= 0 {
		return 7 * 24 * time.Hour
	}

	return time.Duration(p.Retention) * time.Hour
}

// IntervalDuration returns the purge interval, defaulting to one hour.
func (p *Purge) IntervalDuration() time.Duration {
	if p.Interval <= 0 {
		return time.Hour
	}

	return time.Duration(p.Interval) * time.Minute
}

// LoadConfig loads the configuration from the first config path that has each file.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return LoadConfigFrom([]string{
		".chronicle",
		homeDir + "/.chronicle/config",
		"/etc/chronicle/config",
		"/app/config",
		"config",
		".",
	})
}

// LoadConfigFrom loads common, bot and worker config files from the given search paths.
// Each file is read into its own section of the returned config.
func LoadConfigFrom(configPaths []string) (*Config, string, error) {
	var (
		config         Config
		usedConfigPath string
	)

	configFiles := []struct {
		name   string
		target any
	}{
		{"common", &config.Common},
		{"bot", &config.Bot},
		{"worker", &config.Worker},
	}

	for _, configFile := range configFiles {
		k := koanf.New(".")
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configFile.name)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configFile.name)
		}

		if err := k.Unmarshal("", configFile.target); err != nil {
			return nil, "", fmt.Errorf("error unmarshaling %s config: %w", configFile.name, err)
		}
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("bot", config.Bot.Version, CurrentBotVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("worker", config.Worker.Version, CurrentWorkerVersion); err != nil {
		return nil, "", err
	}

	if err := Validate(&config); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// Validate checks the struct tags of the loaded configuration.
func Validate(config *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	return nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/robalyx/chronicle/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}
