package main

import (
	"errors"
	"fmt"
	"strings"

	"referral_gate_bot/internal/api"
	"referral_gate_bot/internal/repository"
	"referral_gate_bot/internal/service"
	"referral_gate_bot/internal/telegram"

	"github.com/spf13/viper"
)

const (
	configPath   = "./"
	configName   = "config"
	configFormat = "yaml"
)

type Config struct {
	Telegram telegram.BotConfig `mapstructure:"telegram"`
	Referral service.Config     `mapstructure:"referral"`
	Storage  repository.Config  `mapstructure:"storage"`
	Server   api.ServerConfig   `mapstructure:"server"`

	LogLevel string `mapstructure:"logLevel"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")

	v.SetDefault("telegram.botToken", "")
	v.SetDefault("telegram.botUsername", "")
	v.SetDefault("telegram.debug", false)
	v.SetDefault("telegram.updateTimeout", 60)

	v.SetDefault("referral.pointsPerReferral", 3)
	v.SetDefault("referral.requiredReferrals", 3)
	v.SetDefault("referral.channelId", 0)
	v.SetDefault("referral.channelLink", "")
	v.SetDefault("referral.adminUserId", 0)

	v.SetDefault("storage.driver", repository.DriverFile)
	v.SetDefault("storage.filePath", repository.DefaultFilePath)
	v.SetDefault("storage.database.driver", "pgx")
	v.SetDefault("storage.database.host", "localhost")
	v.SetDefault("storage.database.port", "5432")
	v.SetDefault("storage.database.user", "")
	v.SetDefault("storage.database.password", "")
	v.SetDefault("storage.database.name", "")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.authDebug", false)
}

// LoadConfig reads ./config.yaml when present and lets APP_* environment
// variables override any key, e.g. APP_TELEGRAM_BOTTOKEN.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.AddConfigPath(configPath)
	v.SetConfigType(configFormat)

	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Referral.BotUsername = cfg.Telegram.BotUsername

	if cfg.Telegram.BotToken == "" {
		return nil, errors.New("telegram.botToken is required")
	}
	if err := cfg.Referral.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
