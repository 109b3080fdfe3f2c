package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/utils"
)

// MailMessage is the local mirror of one server message. (account_id, imap_uid)
// is the ingestion idempotency key; imap_uid is null for locally composed mail
// until the synced copy arrives.
type MailMessage struct {
	ID              string      `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID       string      `gorm:"column:account_id;type:varchar(50);not null;uniqueIndex:idx_mail_messages_account_uid,priority:1;index:idx_mail_messages_account_folder,priority:1" json:"accountId"`
	ImapUID         *uint32     `gorm:"column:imap_uid;uniqueIndex:idx_mail_messages_account_uid,priority:2" json:"imapUid,omitempty"`
	ClientRequestID *string     `gorm:"column:client_request_id;type:varchar(100);uniqueIndex" json:"clientRequestId,omitempty"`
	Folder          enum.Folder `gorm:"column:folder;type:varchar(50);not null;index:idx_mail_messages_account_folder,priority:2" json:"folder"`

	MessageID  string         `gorm:"column:message_id;type:varchar(500);index" json:"messageId"`
	InReplyTo  string         `gorm:"column:in_reply_to;type:varchar(500)" json:"inReplyTo,omitempty"`
	References pq.StringArray `gorm:"column:references;type:text[]" json:"references,omitempty"`
	ThreadID   string         `gorm:"column:thread_id;type:varchar(1000);index" json:"threadId"`

	Subject     string         `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	FromAddress string         `gorm:"column:from_address;type:varchar(255);index" json:"fromAddress"`
	FromName    string         `gorm:"column:from_name;type:varchar(255)" json:"fromName"`
	ToAddresses pq.StringArray `gorm:"column:to_addresses;type:text[]" json:"toAddresses"`
	CcAddresses pq.StringArray `gorm:"column:cc_addresses;type:text[]" json:"ccAddresses,omitempty"`
	SentAt      *time.Time     `gorm:"column:sent_at;type:timestamp;index" json:"sentAt,omitempty"`
	ReceivedAt  *time.Time     `gorm:"column:received_at;type:timestamp" json:"receivedAt,omitempty"`

	BodyText    string             `gorm:"column:body_text;type:text" json:"bodyText"`
	BodyHTML    string             `gorm:"column:body_html;type:text" json:"bodyHtml"`
	Attachments AttachmentMetadata `gorm:"column:attachments;type:jsonb" json:"attachments"`

	Classification       enum.EmailClassification `gorm:"column:classification;type:varchar(30)" json:"classification,omitempty"`
	ClassificationReason string                   `gorm:"column:classification_reason;type:varchar(255)" json:"classificationReason,omitempty"`

	IsRead     bool   `gorm:"column:is_read;not null;default:false" json:"isRead"`
	IsStarred  bool   `gorm:"column:is_starred;not null;default:false" json:"isStarred"`
	TrackingID string `gorm:"column:tracking_id;type:varchar(100);index" json:"trackingId,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (MailMessage) TableName() string {
	return "mail_messages"
}

func (m *MailMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIdWithPrefix("msg", 24)
	}
	if m.Folder == "" {
		m.Folder = enum.FolderGeneral
	}
	return nil
}

func (m *MailMessage) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// Attachment records name and size only; content stays on the server.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Size        int    `json:"size"`
}

type AttachmentMetadata []Attachment

func (a AttachmentMetadata) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

func (a *AttachmentMetadata) Scan(value interface{}) error {
	if value == nil {
		*a = AttachmentMetadata{}
		return nil
	}
	return scanJSON(value, a)
}
