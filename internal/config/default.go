package config

import "time"

const (
	DefaultStartTemplate    = "Hello {first}\n\nThanks for joining our channels. You can use the bot now."
	DefaultForceSubTemplate = "Hello {first}\n\n<b>You need to join my channels to use me.\n\nKindly please join the channels below.</b>"
	DefaultAboutTemplate    = "<b>About me</b>\n\nA force-subscribe bot."
)

func SetDefaultConfig() *Config {
	return &Config{
		Env: "production",
		Templates: TemplatesConfig{
			Start:    DefaultStartTemplate,
			ForceSub: DefaultForceSubTemplate,
			About:    DefaultAboutTemplate,
		},
		Broadcast: BroadcastConfig{
			RatePerSecond:      25,
			DegradeFailedRetry: false,
		},
		Storage: StorageConfig{
			Driver:     StorageDriverPostgres,
			SQLitePath: "data/users.db",
		},
		Database: DatabaseConfig{
			Host:              "localhost",
			Port:              5432,
			User:              "postgres",
			Password:          "",
			Name:              "subgate",
			SSLMode:           "require",
			MaxOpenConns:      10,
			MaxIdleConns:      5,
			ConnMaxLifetime:   1 * time.Hour,
			ConnMaxIdleTime:   15 * time.Minute,
			HealthCheckPeriod: 1 * time.Minute,
		},
		Logger: LoggerConfig{
			Level:        "info",
			Format:       "json",
			Output:       "stdout",
			EnableColors: false,
			FilePath:     "",
			MaxSize:      0,
			MaxBackups:   0,
			MaxAge:       0,
			Compress:     false,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":8080",
		},
	}
}
