package models

import (
	"time"

	"github.com/customeros/mailsync/internal/enum"
)

// MailAccount is owned by the CRM settings store. Only SentCount is written from here.
type MailAccount struct {
	ID    string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Email string `gorm:"column:email;type:varchar(255);index;not null" json:"email"`
	Label string `gorm:"column:label;type:varchar(255)" json:"label"`

	ImapHost     string             `gorm:"column:imap_host;type:varchar(255)" json:"imapHost"`
	ImapPort     int                `gorm:"column:imap_port" json:"imapPort"`
	ImapSecurity enum.EmailSecurity `gorm:"column:imap_security;type:varchar(20)" json:"imapSecurity"`
	ImapUsername string             `gorm:"column:imap_username;type:varchar(255)" json:"imapUsername"`
	ImapPassword string             `gorm:"column:imap_password;type:varchar(255)" json:"-"`

	SmtpHost     string             `gorm:"column:smtp_host;type:varchar(255)" json:"smtpHost"`
	SmtpPort     int                `gorm:"column:smtp_port" json:"smtpPort"`
	SmtpSecurity enum.EmailSecurity `gorm:"column:smtp_security;type:varchar(20)" json:"smtpSecurity"`
	SmtpUsername string             `gorm:"column:smtp_username;type:varchar(255)" json:"smtpUsername"`
	SmtpPassword string             `gorm:"column:smtp_password;type:varchar(255)" json:"-"`

	FromName        string `gorm:"column:from_name;type:varchar(255)" json:"fromName"`
	UseForCampaigns bool   `gorm:"column:use_for_campaigns;not null;default:false" json:"useForCampaigns"`
	UseForClients   bool   `gorm:"column:use_for_clients;not null;default:false" json:"useForClients"`
	Verified        bool   `gorm:"column:verified;not null;default:false" json:"verified"`
	SentCount       int64  `gorm:"column:sent_count;not null;default:0" json:"sentCount"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (MailAccount) TableName() string {
	return "mail_accounts"
}

func (a *MailAccount) ImapLogin() string {
	if a.ImapUsername != "" {
		return a.ImapUsername
	}
	return a.Email
}

func (a *MailAccount) SmtpLogin() string {
	if a.SmtpUsername != "" {
		return a.SmtpUsername
	}
	return a.Email
}

func (a *MailAccount) SmtpPasswordOrImap() string {
	if a.SmtpPassword != "" {
		return a.SmtpPassword
	}
	return a.ImapPassword
}

// CanReceive reports whether IMAP settings are complete enough to dial.
func (a *MailAccount) CanReceive() bool {
	return a.ImapHost != "" && a.ImapPort > 0 && a.ImapPassword != ""
}

// CanSend reports whether SMTP settings are complete enough to deliver.
func (a *MailAccount) CanSend() bool {
	return a.Email != "" && a.SmtpHost != "" && a.SmtpPort > 0 && a.SmtpPasswordOrImap() != ""
}

// CompanySettings holds the branding fields exposed to campaign templates.
type CompanySettings struct {
	ID             string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	CompanyName    string    `gorm:"column:company_name;type:varchar(255)" json:"companyName"`
	CompanyWebsite string    `gorm:"column:company_website;type:varchar(255)" json:"companyWebsite"`
	CompanyPhone   string    `gorm:"column:company_phone;type:varchar(100)" json:"companyPhone"`
	CompanyAddress string    `gorm:"column:company_address;type:text" json:"companyAddress"`
	LogoURL        string    `gorm:"column:logo_url;type:varchar(1000)" json:"logoUrl"`
	PublicBaseURL  string    `gorm:"column:public_base_url;type:varchar(1000)" json:"publicBaseUrl"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (CompanySettings) TableName() string {
	return "company_settings"
}
