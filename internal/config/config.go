// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName                string   `mapstructure:"appname"`
	AppPort                string   `mapstructure:"appport"`
	Environment            string   `mapstructure:"environment"`
	LogLevel               LogLevel `mapstructure:"loglevel"`
	PrivateKey             string   `mapstructure:"privatekey"`
	AdminPassword          string   `mapstructure:"adminpassword"`
	AdminTokenTTLSeconds   int      `mapstructure:"admintokenttlseconds"`
	ReportTimezone         string   `mapstructure:"reporttimezone"`
	ReportDefaultRangeDays int      `mapstructure:"reportdefaultrangedays"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	GeoDBPath             string `mapstructure:"geodbpath"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// GeoLite download credentials (optional)
	GeoLiteAccountID  string `mapstructure:"geoliteaccountid"`
	GeoLiteLicenseKey string `mapstructure:"geolitelicensekey"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "folio")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("adminpassword", "")
		v.SetDefault("admintokenttlseconds", 86400) // 1 day
		v.SetDefault("reporttimezone", "Local")
		v.SetDefault("reportdefaultrangedays", 30)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("jobintervalseconds", 3600)

		v.BindEnv("appname", "FOLIO_APP_NAME")
		v.BindEnv("appport", "FOLIO_APP_PORT")
		v.BindEnv("environment", "FOLIO_ENV")
		v.BindEnv("loglevel", "FOLIO_LOG_LEVEL")
		v.BindEnv("privatekey", "FOLIO_PRIVATE_KEY")
		v.BindEnv("adminpassword", "FOLIO_ADMIN_PASSWORD")
		v.BindEnv("admintokenttlseconds", "FOLIO_ADMIN_TOKEN_TTL_SECONDS")
		v.BindEnv("reporttimezone", "FOLIO_REPORT_TIMEZONE")
		v.BindEnv("reportdefaultrangedays", "FOLIO_REPORT_DEFAULT_RANGE_DAYS")
		v.BindEnv("storagepath", "FOLIO_STORAGE_PATH")
		v.BindEnv("geodbpath", "FOLIO_GEO_DB_PATH")
		v.BindEnv("publicdir", "FOLIO_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "FOLIO_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "FOLIO_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "FOLIO_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "FOLIO_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "FOLIO_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "FOLIO_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "FOLIO_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "FOLIO_DB_MAX_IDLE_CONNS")
		v.BindEnv("geoliteaccountid", "FOLIO_GEOLITE_ACCOUNT_ID")
		v.BindEnv("geolitelicensekey", "FOLIO_GEOLITE_LICENSE_KEY")
		v.BindEnv("jobintervalseconds", "FOLIO_JOB_INTERVAL_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		// In production the signing key must be explicitly set
		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique FOLIO_PRIVATE_KEY (cannot use default)")
		}
		if cfg.IsProduction() && cfg.AdminPassword == "" {
			log.Fatal("Production requires FOLIO_ADMIN_PASSWORD")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if _, err := time.LoadLocation(c.ReportTimezone); err != nil {
		return fmt.Errorf("invalid report timezone %q: %w", c.ReportTimezone, err)
	}

	if c.ReportDefaultRangeDays <= 0 {
		return fmt.Errorf("invalid report default range: %d days", c.ReportDefaultRangeDays)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// ReportLocation returns the timezone used for local-day report buckets.
func (c *Config) ReportLocation() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// AdminTokenTTL returns how long issued admin bearer tokens stay valid.
func (c *Config) AdminTokenTTL() time.Duration {
	return time.Duration(c.AdminTokenTTLSeconds) * time.Second
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the signing key (implements cartridge.FactoryConfig interface).
// The same key signs admin bearer tokens.
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetSessionTimeout returns the admin token lifetime in seconds.
func (c *Config) GetSessionTimeout() int {
	return c.AdminTokenTTLSeconds
}

// GetLoginSessionTimeout returns the admin token lifetime in seconds.
func (c *Config) GetLoginSessionTimeout() int {
	return c.AdminTokenTTLSeconds
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (the report loads its four collections in parallel)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
