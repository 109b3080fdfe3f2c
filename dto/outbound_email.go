package dto

import "github.com/customeros/mailsync/internal/models"

type OutboundEmail struct {
	To          string
	Subject     string
	HTML        string
	Attachments []models.CampaignAttachment
	Account     *models.MailAccount
	FromName    string
	MessageID   string
	Headers     map[string]string
}
