package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/timmy/lazyimg/internal/logger"
	"github.com/timmy/lazyimg/internal/storage"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Page     PageConfig     `mapstructure:"page"`
	Render   RenderConfig   `mapstructure:"render"`
	Prefetch PrefetchConfig `mapstructure:"prefetch"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Environment string `mapstructure:"environment"`
	File        string `mapstructure:"file"`
	FileOnly    bool   `mapstructure:"file_only"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

// PageConfig describes the hosted document and its layout.
type PageConfig struct {
	File           string `mapstructure:"file"`
	Origin         string `mapstructure:"origin"`
	ViewportWidth  int    `mapstructure:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height"`
	ElementHeight  int    `mapstructure:"element_height"`
}

// RenderConfig holds the process-wide element defaults. Each can be
// overridden per element through attributes.
type RenderConfig struct {
	RenderOnPreCached   bool `mapstructure:"render_on_pre_cached"`
	RenderWithShadowDOM bool `mapstructure:"render_with_shadow_dom"`
	RenderAll           bool `mapstructure:"render_all"`
}

type PrefetchConfig struct {
	DebounceWindow time.Duration `mapstructure:"debounce_window"`
	Workers        int           `mapstructure:"workers"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // memory, s3, r2, s3compatible
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`
	URL             string        `mapstructure:"url"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return d.URL
	}
	return d.Path
}

// GetStorageConfig converts the storage section for storage.NewStore.
func (c *Config) GetStorageConfig() *storage.S3Config {
	return &storage.S3Config{
		Type:      storage.StorageType(c.Storage.Type),
		Endpoint:  c.Storage.Endpoint,
		AccessKey: c.Storage.AccessKey,
		SecretKey: c.Storage.SecretKey,
		UseSSL:    c.Storage.UseSSL,
		Bucket:    c.Storage.Bucket,
		Region:    c.Storage.Region,
		Prefix:    c.Storage.Prefix,
	}
}

// GetLoggerConfig converts the log section for logger.New.
func (c *Config) GetLoggerConfig(serviceName string) *logger.Config {
	return &logger.Config{
		Level:       c.Log.Level,
		Format:      c.Log.Format,
		ServiceName: serviceName,
		Environment: c.Log.Environment,
		File:        c.Log.File,
		FileOnly:    c.Log.FileOnly,
		MaxSize:     c.Log.MaxSize,
		MaxBackups:  c.Log.MaxBackups,
		MaxAge:      c.Log.MaxAge,
		Compress:    c.Log.Compress,
	}
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("page.origin", "PAGE_ORIGIN")
	v.BindEnv("render.render_all", "RENDER_ALL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "local")
	v.SetDefault("log.file", "/var/log/lazyimg/app.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("page.file", "./page.html")
	v.SetDefault("page.origin", "http://localhost:8080")
	v.SetDefault("page.viewport_width", 1280)
	v.SetDefault("page.viewport_height", 800)
	v.SetDefault("page.element_height", 150)

	v.SetDefault("render.render_on_pre_cached", false)
	v.SetDefault("render.render_with_shadow_dom", false)
	v.SetDefault("render.render_all", false)

	v.SetDefault("prefetch.debounce_window", "500ms")
	v.SetDefault("prefetch.workers", 4)
	v.SetDefault("prefetch.timeout", "30s")
	v.SetDefault("prefetch.user_agent", "lazyimg/1.0")

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "lazyimg")

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/lazyimg.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.auto_migrate", true)
}
