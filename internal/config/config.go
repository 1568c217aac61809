// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
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
	PostgresDatabase = "postgres"
	SQLiteDatabase   = "sqlite"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseHost         string `mapstructure:"dbhost"`
	DatabasePort         string `mapstructure:"dbport"`
	DatabaseUser         string `mapstructure:"dbuser"`
	DatabasePassword     string `mapstructure:"dbpassword"`
	DatabaseName         string `mapstructure:"dbname"`
	DatabaseSSLMode      string `mapstructure:"dbsslmode"`
	DatabasePath         string `mapstructure:"storagepath"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Attribution settings
	SiteOrigin              string `mapstructure:"siteorigin"`
	YouTubeFetchDate        string `mapstructure:"youtubefetchdate"`
	ConversionWindowSeconds int    `mapstructure:"conversionwindowseconds"`

	// Report cache settings; an empty URL disables caching
	CacheRedisURL   string `mapstructure:"cacheredisurl"`
	CacheTTLSeconds int    `mapstructure:"cachettlseconds"`

	// HTTP settings
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`
	CORSAllowOrigins      string `mapstructure:"corsalloworigins"`
	BasicAuthUser         string `mapstructure:"basicauthuser"`
	BasicAuthPasswordHash string `mapstructure:"basicauthpasswordhash"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		loaded, err := Load()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	})
	return cfg
}

// Load reads the configuration from defaults and the environment without caching it.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("appname", "attribly")
	v.SetDefault("appport", "4000")
	v.SetDefault("environment", Development)
	v.SetDefault("loglevel", string(LogLevelDebug))
	v.SetDefault("logsdir", "logs")
	v.SetDefault("logsmaxsizeinmb", 20)
	v.SetDefault("logsmaxbackups", 10)
	v.SetDefault("logsmaxageindays", 30)
	v.SetDefault("dbtype", PostgresDatabase)
	v.SetDefault("dbhost", "localhost")
	v.SetDefault("dbport", "5432")
	v.SetDefault("dbuser", "postgres")
	v.SetDefault("dbpassword", "")
	v.SetDefault("dbname", "directus")
	v.SetDefault("dbsslmode", "disable")
	v.SetDefault("storagepath", "storage")
	v.SetDefault("dbmaxopenconns", 0)
	v.SetDefault("dbmaxidleconns", 0)
	v.SetDefault("siteorigin", "https://medblocks.com")
	v.SetDefault("youtubefetchdate", "2025-09-08")
	v.SetDefault("conversionwindowseconds", 120)
	v.SetDefault("cacheredisurl", "")
	v.SetDefault("cachettlseconds", 300)
	v.SetDefault("publicdir", "web/dist")
	v.SetDefault("publicassetsurlprefix", "/")
	v.SetDefault("corsalloworigins", "*")
	v.SetDefault("basicauthuser", "")
	v.SetDefault("basicauthpasswordhash", "")

	// The un-prefixed names are the ones the dashboard's original .env files use.
	v.BindEnv("appname", "ATTRIBLY_APP_NAME")
	v.BindEnv("appport", "ATTRIBLY_APP_PORT", "PORT")
	v.BindEnv("environment", "ATTRIBLY_ENV")
	v.BindEnv("loglevel", "ATTRIBLY_LOG_LEVEL")
	v.BindEnv("logsdir", "ATTRIBLY_LOGS_DIR")
	v.BindEnv("logsmaxsizeinmb", "ATTRIBLY_LOGS_MAX_SIZE_IN_MB")
	v.BindEnv("logsmaxbackups", "ATTRIBLY_LOGS_MAX_BACKUPS")
	v.BindEnv("logsmaxageindays", "ATTRIBLY_LOGS_MAX_AGE_IN_DAYS")
	v.BindEnv("dbtype", "ATTRIBLY_DB_TYPE")
	v.BindEnv("dbhost", "ATTRIBLY_DB_HOST", "DB_HOST")
	v.BindEnv("dbport", "ATTRIBLY_DB_PORT", "DB_PORT")
	v.BindEnv("dbuser", "ATTRIBLY_DB_USER", "DB_USER")
	v.BindEnv("dbpassword", "ATTRIBLY_DB_PASSWORD", "DB_PASSWORD")
	v.BindEnv("dbname", "ATTRIBLY_DB_NAME", "DB_NAME")
	v.BindEnv("dbsslmode", "ATTRIBLY_DB_SSL_MODE")
	v.BindEnv("storagepath", "ATTRIBLY_STORAGE_PATH")
	v.BindEnv("dbmaxopenconns", "ATTRIBLY_DB_MAX_OPEN_CONNS")
	v.BindEnv("dbmaxidleconns", "ATTRIBLY_DB_MAX_IDLE_CONNS")
	v.BindEnv("siteorigin", "ATTRIBLY_SITE_ORIGIN")
	v.BindEnv("youtubefetchdate", "ATTRIBLY_YOUTUBE_FETCH_DATE")
	v.BindEnv("conversionwindowseconds", "ATTRIBLY_CONVERSION_WINDOW_SECONDS")
	v.BindEnv("cacheredisurl", "ATTRIBLY_CACHE_REDIS_URL")
	v.BindEnv("cachettlseconds", "ATTRIBLY_CACHE_TTL_SECONDS")
	v.BindEnv("publicdir", "ATTRIBLY_PUBLIC_DIR")
	v.BindEnv("publicassetsurlprefix", "ATTRIBLY_PUBLIC_ASSETS_URL_PREFIX")
	v.BindEnv("corsalloworigins", "ATTRIBLY_CORS_ALLOW_ORIGINS")
	v.BindEnv("basicauthuser", "ATTRIBLY_BASIC_AUTH_USER")
	v.BindEnv("basicauthpasswordhash", "ATTRIBLY_BASIC_AUTH_PASSWORD_HASH")

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return c, nil
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
		PostgresDatabase: true,
		SQLiteDatabase:   true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.ConversionWindowSeconds < 0 {
		return fmt.Errorf("conversion window must not be negative: %d", c.ConversionWindowSeconds)
	}

	if c.YouTubeFetchDate != "" {
		if _, err := time.Parse("2006-01-02", c.YouTubeFetchDate); err != nil {
			return fmt.Errorf("invalid youtube fetch date %q: %w", c.YouTubeFetchDate, err)
		}
	}

	if (c.BasicAuthUser == "") != (c.BasicAuthPasswordHash == "") {
		return fmt.Errorf("basic auth requires both a user and a password hash")
	}

	return nil
}

// GetDatabasePath returns the SQLite file used when dbtype is sqlite
func (c *Config) GetDatabasePath() string {
	return filepath.Join(c.DatabasePath, fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
}

// DatabaseDSN returns the connection string for the configured database type.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseType == SQLiteDatabase {
		return c.GetDatabasePath()
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DatabaseHost,
		c.DatabaseUser,
		c.DatabasePassword,
		c.DatabaseName,
		c.DatabasePort,
		c.DatabaseSSLMode,
	)
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

// GetPort returns the HTTP server port
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to the built dashboard assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name
func (c *Config) GetAppName() string {
	return c.AppName
}

// ConversionWindow is the tolerance between a user_id attribute and the
// matching account creation for a session to count as converted.
func (c *Config) ConversionWindow() time.Duration {
	return time.Duration(c.ConversionWindowSeconds) * time.Second
}

// CacheTTL returns how long report results stay cached.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// CacheEnabled reports whether a Redis URL was configured.
func (c *Config) CacheEnabled() bool {
	return strings.TrimSpace(c.CacheRedisURL) != "" && c.CacheTTLSeconds > 0
}

// BasicAuthEnabled reports whether the dashboard API is protected.
func (c *Config) BasicAuthEnabled() bool {
	return c.BasicAuthUser != "" && c.BasicAuthPasswordHash != ""
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (the overview fans out one query per channel)
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
