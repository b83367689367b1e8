package bluetooth

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v2"
)

// Config holds the bounds of the fixed-capacity structures of the host and
// its runtime knobs.
type Config struct {
	// MaxAdvertisingSets is the number of advertising sets that can be
	// created, not counting the legacy set.
	MaxAdvertisingSets int `yaml:"max_advertising_sets"`

	// MaxOutstandingAdvertisingStartCommands bounds the start requests that
	// wait for a controller confirmation.
	MaxOutstandingAdvertisingStartCommands int `yaml:"max_outstanding_advertising_start_commands"`

	// SecurityDatabaseMaxEntries bounds the resolving list.
	SecurityDatabaseMaxEntries int `yaml:"security_database_max_entries"`

	// PrivacyResolvedCacheSize is the number of peer addresses remembered by
	// host address resolution.
	PrivacyResolvedCacheSize int `yaml:"privacy_resolved_cache_size"`

	EventQueueSize       int `yaml:"event_queue_size"`
	PendingEventListSize int `yaml:"pending_event_list_size"`

	// PrivateAddressTimeout is the rotation period of private addresses.
	PrivateAddressTimeout time.Duration `yaml:"private_address_timeout"`

	LogLevel string `yaml:"log_level"`

	// LogFile sends the output of the default logger to a file instead of
	// stderr. The file is rotated once it reaches LogMaxSizeMB megabytes and
	// LogMaxBackups rotated files are kept.
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
}

// MinPrivateAddressTimeout is the shortest accepted rotation period.
const MinPrivateAddressTimeout = time.Second

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAdvertisingSets:                     8,
		MaxOutstandingAdvertisingStartCommands: 3,
		SecurityDatabaseMaxEntries:             5,
		PrivacyResolvedCacheSize:               16,
		EventQueueSize:                         32,
		PendingEventListSize:                   4,
		PrivateAddressTimeout:                  15 * time.Minute,
		LogLevel:                               "info",
		LogMaxSizeMB:                           10,
		LogMaxBackups:                          3,
	}
}

// LoadConfig merges the defaults, BLE_* environment overrides and the YAML
// file at path, if path is not empty, then validates the result.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if err := applyEnvOverrides(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if path != "" {
		if err := loadFromFile(config, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// loadFromFile overlays the fields present in the YAML file on config.
func loadFromFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, config)
}

func applyEnvOverrides(config *Config) error {
	ints := []struct {
		name string
		dst  *int
	}{
		{"BLE_GAP_MAX_ADVERTISING_SETS", &config.MaxAdvertisingSets},
		{"BLE_GAP_HOST_MAX_OUTSTANDING_ADVERTISING_START_COMMANDS", &config.MaxOutstandingAdvertisingStartCommands},
		{"BLE_SECURITY_DATABASE_MAX_ENTRIES", &config.SecurityDatabaseMaxEntries},
		{"BLE_GAP_HOST_PRIVACY_RESOLVED_CACHE_SIZE", &config.PrivacyResolvedCacheSize},
		{"BLE_EVENT_QUEUE_SIZE", &config.EventQueueSize},
		{"BLE_GAP_PENDING_EVENT_LIST_SIZE", &config.PendingEventListSize},
		{"BLE_LOG_MAX_SIZE_MB", &config.LogMaxSizeMB},
		{"BLE_LOG_MAX_BACKUPS", &config.LogMaxBackups},
	}
	for _, v := range ints {
		val := os.Getenv(v.name)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s: %w", v.name, err)
		}
		*v.dst = n
	}

	if val := os.Getenv("BLE_PRIVATE_ADDRESS_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("BLE_PRIVATE_ADDRESS_TIMEOUT: %w", err)
		}
		config.PrivateAddressTimeout = d
	}

	if val := os.Getenv("BLE_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}
	if val := os.Getenv("BLE_LOG_FILE"); val != "" {
		config.LogFile = val
	}
	return nil
}

// Validate checks every bound of the configuration.
func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"max_advertising_sets", c.MaxAdvertisingSets},
		{"max_outstanding_advertising_start_commands", c.MaxOutstandingAdvertisingStartCommands},
		{"security_database_max_entries", c.SecurityDatabaseMaxEntries},
		{"privacy_resolved_cache_size", c.PrivacyResolvedCacheSize},
		{"event_queue_size", c.EventQueueSize},
		{"pending_event_list_size", c.PendingEventListSize},
		{"log_max_size_mb", c.LogMaxSizeMB},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d: %w", p.name, p.value, ErrInvalidParam)
		}
	}
	// Handles are 8 bit wide and 0xFF is reserved.
	if c.MaxAdvertisingSets > int(InvalidAdvertisingHandle)-1 {
		return fmt.Errorf("max_advertising_sets %d above %d: %w", c.MaxAdvertisingSets, int(InvalidAdvertisingHandle)-1, ErrInvalidParam)
	}
	if c.PrivateAddressTimeout < MinPrivateAddressTimeout {
		return fmt.Errorf("private_address_timeout %v below %v: %w", c.PrivateAddressTimeout, MinPrivateAddressTimeout, ErrInvalidParam)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %v: %w", err, ErrInvalidParam)
	}
	if c.LogMaxBackups < 0 {
		return fmt.Errorf("log_max_backups must not be negative, got %d: %w", c.LogMaxBackups, ErrInvalidParam)
	}
	return nil
}

// logLevel returns the parsed log level. It must only be called on a
// validated configuration.
func (c *Config) logLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// rotatingLogFile returns the writer of LogFile.
func (c *Config) rotatingLogFile() *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
	}
}
