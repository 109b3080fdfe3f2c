package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	cron_config "github.com/customeros/mailsync/internal/cron/config"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

type Config struct {
	AppConfig              *AppConfig
	Logger                 *logger.Config
	Tracing                *tracing.JaegerConfig
	SyncConfig             *SyncConfig
	CampaignConfig         *CampaignConfig
	CronConfig             *cron_config.Config
	MailsyncDatabaseConfig *MailsyncDatabaseConfig
	CrmDatabaseConfig      *CrmDatabaseConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:              &AppConfig{},
		Logger:                 &logger.Config{},
		Tracing:                &tracing.JaegerConfig{},
		SyncConfig:             &SyncConfig{},
		CampaignConfig:         &CampaignConfig{},
		CronConfig:             &cron_config.Config{},
		MailsyncDatabaseConfig: &MailsyncDatabaseConfig{},
		CrmDatabaseConfig:      &CrmDatabaseConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, err
	}

	return config, nil
}
