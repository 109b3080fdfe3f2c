package config

import "time"

type AppConfig struct {
	APIPort           string `env:"PORT,required" envDefault:"12222"`
	APIKey            string `env:"API_KEY,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL"`
	TrackingPublicUrl string `env:"TRACKING_PUBLIC_URL" envDefault:"https://custosmetrics.com"`
	TrackingSecret    string `env:"TRACKING_SECRET,required"`
}

type SyncConfig struct {
	Mailbox           string        `env:"SYNC_MAILBOX" envDefault:"INBOX"`
	ReconnectBackoff  time.Duration `env:"SYNC_RECONNECT_BACKOFF" envDefault:"30s"`
	AuthRetryBackoff  time.Duration `env:"SYNC_AUTH_RETRY_BACKOFF" envDefault:"5m"`
	DialTimeout       time.Duration `env:"SYNC_DIAL_TIMEOUT" envDefault:"30s"`
	CommandTimeout    time.Duration `env:"SYNC_COMMAND_TIMEOUT" envDefault:"2m"`
	StaleSyncingReset bool          `env:"SYNC_RESET_STALE_ON_START" envDefault:"true"`
}

type CampaignConfig struct {
	BatchSize   int           `env:"CAMPAIGN_BATCH_SIZE" envDefault:"20"`
	SmtpTimeout time.Duration `env:"CAMPAIGN_SMTP_TIMEOUT" envDefault:"1m"`
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	DBName          string
	Password        string
	MaxConn         int
	MaxIdleConn     int
	ConnMaxLifetime int
	LogLevel        string
	SSLMode         string
}

type MailsyncDatabaseConfig struct {
	Host            string `env:"MAILSYNC_POSTGRES_HOST,required"`
	Port            string `env:"MAILSYNC_POSTGRES_PORT,required"`
	User            string `env:"MAILSYNC_POSTGRES_USER,required"`
	DBName          string `env:"MAILSYNC_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILSYNC_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILSYNC_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"MAILSYNC_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"MAILSYNC_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"MAILSYNC_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILSYNC_POSTGRES_SSL_MODE" envDefault:"require"`
}

func (c *MailsyncDatabaseConfig) Database() *DatabaseConfig {
	return &DatabaseConfig{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		DBName:          c.DBName,
		Password:        c.Password,
		MaxConn:         c.MaxConn,
		MaxIdleConn:     c.MaxIdleConn,
		ConnMaxLifetime: c.ConnMaxLifetime,
		LogLevel:        c.LogLevel,
		SSLMode:         c.SSLMode,
	}
}

// CrmDatabaseConfig points at the CRM schema that owns accounts, leads and clients.
type CrmDatabaseConfig struct {
	Host            string `env:"CRM_POSTGRES_HOST,required"`
	Port            string `env:"CRM_POSTGRES_PORT,required"`
	User            string `env:"CRM_POSTGRES_USER,required"`
	DBName          string `env:"CRM_POSTGRES_DB_NAME,required"`
	Password        string `env:"CRM_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"CRM_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"CRM_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"CRM_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"CRM_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"CRM_POSTGRES_SSL_MODE" envDefault:"require"`
}

func (c *CrmDatabaseConfig) Database() *DatabaseConfig {
	return &DatabaseConfig{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		DBName:          c.DBName,
		Password:        c.Password,
		MaxConn:         c.MaxConn,
		MaxIdleConn:     c.MaxIdleConn,
		ConnMaxLifetime: c.ConnMaxLifetime,
		LogLevel:        c.LogLevel,
		SSLMode:         c.SSLMode,
	}
}
