package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
)

type Repositories struct {
	// CRM
	SettingsRepository interfaces.SettingsProvider
	ContactRepository  interfaces.ContactDirectory
	// Mailsync
	SyncStateRepository   interfaces.SyncStateRepository
	MailMessageRepository interfaces.MailMessageRepository
	CampaignRepository    interfaces.CampaignRepository
}

func InitRepositories(mailsyncDB *gorm.DB, crmDB *gorm.DB) *Repositories {
	return &Repositories{
		SettingsRepository:    NewSettingsRepository(crmDB),
		ContactRepository:     NewContactRepository(crmDB),
		SyncStateRepository:   NewSyncStateRepository(mailsyncDB),
		MailMessageRepository: NewMailMessageRepository(mailsyncDB),
		CampaignRepository:    NewCampaignRepository(mailsyncDB),
	}
}

func MigrateMailsyncDB(dbConfig *config.MailsyncDatabaseConfig, mailsyncDB *gorm.DB) error {
	db, err := mailsyncDB.DB()
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(5)

	err = mailsyncDB.AutoMigrate(
		&models.SyncState{},
		&models.MailMessage{},
		&models.Campaign{},
	)

	if dbConfig.MaxIdleConn > 0 {
		db.SetMaxIdleConns(dbConfig.MaxIdleConn)
	}
	if dbConfig.MaxConn > 0 {
		db.SetMaxOpenConns(dbConfig.MaxConn)
	}
	if dbConfig.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)
	}

	return err
}
