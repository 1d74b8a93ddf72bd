package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SUBGATE"

type Config struct {
	Env          string             `mapstructure:"env"`
	Bot          BotConfig          `mapstructure:"bot"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Templates    TemplatesConfig    `mapstructure:"templates"`
	Broadcast    BroadcastConfig    `mapstructure:"broadcast"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Server       ServerConfig       `mapstructure:"server"`
}

type BotConfig struct {
	Token    string  `mapstructure:"token"`
	AdminIDs []int64 `mapstructure:"admin_ids"`
	Debug    bool    `mapstructure:"debug"`
}

// ChannelConfig is a channel users must join before /start is served.
// Chat is either "@username" or a numeric chat id; numeric chats need an InviteURL.
type ChannelConfig struct {
	Chat      string `mapstructure:"chat"`
	InviteURL string `mapstructure:"invite_url"`
}

type SubscriptionConfig struct {
	Channels []ChannelConfig `mapstructure:"channels"`
}

type TemplatesConfig struct {
	Start    string `mapstructure:"start"`
	ForceSub string `mapstructure:"force_sub"`
	About    string `mapstructure:"about"`
}

type BroadcastConfig struct {
	RatePerSecond      float64 `mapstructure:"rate_per_second"`
	DegradeFailedRetry bool    `mapstructure:"degrade_failed_retry"`
}

type StorageConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type DatabaseConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Name              string        `mapstructure:"name"`
	SSLMode           string        `mapstructure:"sslmode"`
	MaxOpenConns      int           `mapstructure:"max_open_conns"`
	MaxIdleConns      int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime   time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime   time.Duration `mapstructure:"conn_max_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

type LoggerConfig struct {
	Level        string `mapstructure:"level"`
	Format       string `mapstructure:"format"`
	Output       string `mapstructure:"output"`
	EnableColors bool   `mapstructure:"enable_colors"`
	FilePath     string `mapstructure:"file_path"`
	MaxSize      int    `mapstructure:"max_size"`
	MaxBackups   int    `mapstructure:"max_backups"`
	MaxAge       int    `mapstructure:"max_age"`
	Compress     bool   `mapstructure:"compress"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type Loader interface {
	Load(ctx context.Context) (*Config, error)
}

type viperLoader struct {
	configPath string
	validator  Validator
}

func NewViperLoader(configPath string, validator Validator) Loader {
	if configPath == "" {
		configPath = "."
	}
	return &viperLoader{
		configPath: configPath,
		validator:  validator,
	}
}

func (l *viperLoader) Load(ctx context.Context) (*Config, error) {
	cfg := SetDefaultConfig()

	if err := loadDotEnv(l.configPath); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(l.configPath)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l.BindEnvVariables(v)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config failed validation: %w", err)
	}

	return cfg, nil
}

func (l *viperLoader) BindEnvVariables(v *viper.Viper) {
	// Bot
	_ = v.BindEnv("bot.token")
	_ = v.BindEnv("bot.admin_ids")
	_ = v.BindEnv("bot.debug")
	// Templates
	_ = v.BindEnv("templates.start")
	_ = v.BindEnv("templates.force_sub")
	_ = v.BindEnv("templates.about")
	// Broadcast
	_ = v.BindEnv("broadcast.rate_per_second")
	_ = v.BindEnv("broadcast.degrade_failed_retry")
	// Storage
	_ = v.BindEnv("storage.driver")
	_ = v.BindEnv("storage.sqlite_path")
	// Database
	_ = v.BindEnv("database.host")
	_ = v.BindEnv("database.port")
	_ = v.BindEnv("database.user")
	_ = v.BindEnv("database.password")
	_ = v.BindEnv("database.name")
	_ = v.BindEnv("database.sslmode")
	_ = v.BindEnv("database.max_open_conns")
	_ = v.BindEnv("database.max_idle_conns")
	_ = v.BindEnv("database.conn_max_lifetime")
	_ = v.BindEnv("database.conn_max_idle_time")
	_ = v.BindEnv("database.health_check_period")
	// Logger
	_ = v.BindEnv("logger.level")
	_ = v.BindEnv("logger.format")
	_ = v.BindEnv("logger.output")
	_ = v.BindEnv("logger.enable_colors")
	_ = v.BindEnv("logger.file_path")
	_ = v.BindEnv("logger.max_size")
	_ = v.BindEnv("logger.max_backups")
	_ = v.BindEnv("logger.max_age")
	_ = v.BindEnv("logger.compress")
	// Server
	_ = v.BindEnv("server.enabled")
	_ = v.BindEnv("server.addr")
}

// loadDotEnv exports variables from <configPath>/.env into the process
// environment. Variables that are already set win.
func loadDotEnv(configPath string) error {
	err := godotenv.Load(filepath.Join(configPath, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func Load(configPath string, ctx context.Context) (*Config, error) {
	loader := NewViperLoader(configPath, NewValidator())
	return loader.Load(ctx)
}

func (c *DatabaseConfig) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

// IsAdmin reports whether userID is in the admin allow-list.
func (c *BotConfig) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
