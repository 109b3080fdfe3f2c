package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/config"
)

func InitMailsyncDatabase(dbConfig *config.MailsyncDatabaseConfig) (*gorm.DB, error) {
	db, err := NewConnection(dbConfig.Database())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the mailsync database: %w", err)
	}
	return db, nil
}

func InitCrmDatabase(dbConfig *config.CrmDatabaseConfig) (*gorm.DB, error) {
	db, err := NewConnection(dbConfig.Database())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the crm database: %w", err)
	}
	return db, nil
}
