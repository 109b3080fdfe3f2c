package dto

import "time"

const EventEmailNew = "email:new"

type RealtimeEvent struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"traceId,omitempty"`
}

// EmailNewPayload is pushed to connected clients after a message is mirrored.
type EmailNewPayload struct {
	AccountID   string     `json:"accountId"`
	ID          string     `json:"id"`
	MessageID   string     `json:"messageId"`
	ImapUID     uint32     `json:"imapUid"`
	Folder      string     `json:"folder"`
	ThreadID    string     `json:"threadId"`
	Subject     string     `json:"subject"`
	FromAddress string     `json:"fromAddress"`
	FromName    string     `json:"fromName"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	IsRead      bool       `json:"isRead"`
}
