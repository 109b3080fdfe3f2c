package models

import (
	"time"

	"github.com/customeros/mailsync/internal/enum"
)

type Lead struct {
	ID        string          `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name      string          `gorm:"column:name;type:varchar(255)" json:"name"`
	Email     string          `gorm:"column:email;type:varchar(255);index" json:"email"`
	Company   string          `gorm:"column:company;type:varchar(255)" json:"company"`
	Status    enum.LeadStatus `gorm:"column:status;type:varchar(50)" json:"status"`
	ClientID  *string         `gorm:"column:client_id;type:varchar(50)" json:"clientId"`
	CreatedAt time.Time       `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (Lead) TableName() string {
	return "leads"
}

type Client struct {
	ID        string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(255)" json:"name"`
	Email     string    `gorm:"column:email;type:varchar(255);index" json:"email"`
	Company   string    `gorm:"column:company;type:varchar(255)" json:"company"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (Client) TableName() string {
	return "clients"
}

type ClientService struct {
	ID        string             `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	ClientID  string             `gorm:"column:client_id;type:varchar(50);index;not null" json:"clientId"`
	Name      string             `gorm:"column:name;type:varchar(255)" json:"name"`
	Status    enum.ServiceStatus `gorm:"column:status;type:varchar(50)" json:"status"`
	CreatedAt time.Time          `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (ClientService) TableName() string {
	return "client_services"
}
