package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/utils"
)

// SyncState is the per-account UID cursor and health record.
type SyncState struct {
	ID         string          `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID  string          `gorm:"column:account_id;type:varchar(50);uniqueIndex;not null" json:"accountId"`
	LastUID    uint32          `gorm:"column:last_uid;not null;default:0" json:"lastUid"`
	// RetryAfterUID is set when uids below LastUID failed and the next search
	// must start lower than the cursor.
	RetryAfterUID *uint32 `gorm:"column:retry_after_uid" json:"retryAfterUid,omitempty"`
	Status     enum.SyncStatus `gorm:"column:status;type:varchar(20);not null;default:idle" json:"status"`
	LastError  string          `gorm:"column:last_error;type:text" json:"lastError,omitempty"`
	LastSyncAt *time.Time      `gorm:"column:last_sync_at;type:timestamp" json:"lastSyncAt,omitempty"`
	CreatedAt  time.Time       `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (SyncState) TableName() string {
	return "sync_states"
}

func NewSyncState(accountID string) *SyncState {
	return &SyncState{
		AccountID: accountID,
		Status:    enum.SyncStatusIdle,
	}
}

// SearchFrom is the uid the next search starts after.
func (s *SyncState) SearchFrom() uint32 {
	if s.RetryAfterUID != nil && *s.RetryAfterUID < s.LastUID {
		return *s.RetryAfterUID
	}
	return s.LastUID
}

func (s *SyncState) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = utils.GenerateNanoIdWithPrefix("sync", 16)
	}
	if s.Status == "" {
		s.Status = enum.SyncStatusIdle
	}
	return s.Status.Validate()
}
