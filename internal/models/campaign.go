package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/utils"
)

type Campaign struct {
	ID            string              `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Name          string              `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Subject       string              `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	Body          string              `gorm:"column:body;type:text" json:"body"`
	FromName      string              `gorm:"column:from_name;type:varchar(255)" json:"fromName"`
	Status        enum.CampaignStatus `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	TargetFilters JSONMap             `gorm:"column:target_filters;type:jsonb" json:"targetFilters"`
	Attachments   CampaignAttachments `gorm:"column:attachments;type:jsonb" json:"attachments"`

	TotalRecipients int `gorm:"column:total_recipients;not null;default:0" json:"totalRecipients"`
	SentCount       int `gorm:"column:sent_count;not null;default:0" json:"sentCount"`
	FailedCount     int `gorm:"column:failed_count;not null;default:0" json:"failedCount"`
	OpenCount       int `gorm:"column:open_count;not null;default:0" json:"openCount"`
	ClickCount      int `gorm:"column:click_count;not null;default:0" json:"clickCount"`
	ReplyCount      int `gorm:"column:reply_count;not null;default:0" json:"replyCount"`

	Queue QueueItems `gorm:"column:queue;type:jsonb" json:"queue"`

	ScheduledAt *time.Time `gorm:"column:scheduled_at;type:timestamp;index" json:"scheduledAt,omitempty"`
	StartedAt   *time.Time `gorm:"column:started_at;type:timestamp" json:"startedAt,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at;type:timestamp" json:"completedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = utils.GenerateNanoIdWithPrefix("camp", 16)
	}
	return c.Prepare()
}

// Prepare must run before any full-record write.
func (c *Campaign) Prepare() error {
	c.EnsureTrackingIDs()
	c.TotalRecipients = len(c.Queue)
	return c.Validate()
}

// EmailQueueItem is one recipient's delivery record.
type EmailQueueItem struct {
	LeadID     string               `json:"leadId"`
	LeadEmail  string               `json:"leadEmail"`
	LeadName   string               `json:"leadName,omitempty"`
	Status     enum.QueueItemStatus `json:"status"`
	TrackingID string               `json:"trackingId"`
	MessageID  string               `json:"messageId,omitempty"`
	SentAt     *time.Time           `json:"sentAt,omitempty"`
	Error      string               `json:"error,omitempty"`
	OpenedAt   *time.Time           `json:"openedAt,omitempty"`
	ClickedAt  *time.Time           `json:"clickedAt,omitempty"`
	RepliedAt  *time.Time           `json:"repliedAt,omitempty"`
}

type QueueItems []EmailQueueItem

func (q QueueItems) Value() (driver.Value, error) {
	if q == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(q)
}

func (q *QueueItems) Scan(value interface{}) error {
	if value == nil {
		*q = QueueItems{}
		return nil
	}
	return scanJSON(value, q)
}

type CampaignAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"content"`
}

type CampaignAttachments []CampaignAttachment

func (a CampaignAttachments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

func (a *CampaignAttachments) Scan(value interface{}) error {
	if value == nil {
		*a = CampaignAttachments{}
		return nil
	}
	return scanJSON(value, a)
}

// EnsureTrackingIDs assigns a campaign-unique tracking id to every item
// missing one, and replaces duplicates on later items.
func (c *Campaign) EnsureTrackingIDs() {
	seen := make(map[string]struct{}, len(c.Queue))
	for i := range c.Queue {
		item := &c.Queue[i]
		if item.Status == "" {
			item.Status = enum.QueueItemPending
		}
		if _, dup := seen[item.TrackingID]; item.TrackingID == "" || dup {
			item.TrackingID = newTrackingID(seen)
		}
		seen[item.TrackingID] = struct{}{}
	}
}

func newTrackingID(taken map[string]struct{}) string {
	for {
		id := uuid.NewString()
		if _, ok := taken[id]; !ok {
			return id
		}
	}
}

func (c *Campaign) Validate() error {
	if err := c.Status.Validate(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Queue))
	for i, item := range c.Queue {
		if err := item.Status.Validate(); err != nil {
			return fmt.Errorf("queue item %d: %w", i, err)
		}
		if item.TrackingID == "" {
			return fmt.Errorf("queue item %d: missing tracking id", i)
		}
		if _, ok := seen[item.TrackingID]; ok {
			return fmt.Errorf("queue item %d: duplicate tracking id %s", i, item.TrackingID)
		}
		seen[item.TrackingID] = struct{}{}
	}
	return nil
}

// PendingIndexes returns up to limit positions of Pending items in queue order.
func (c *Campaign) PendingIndexes(limit int) []int {
	indexes := make([]int, 0, limit)
	for i, item := range c.Queue {
		if len(indexes) >= limit {
			break
		}
		if item.Status == enum.QueueItemPending {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

func (c *Campaign) UnresolvedCount() int {
	count := 0
	for _, item := range c.Queue {
		if !item.Status.Resolved() {
			count++
		}
	}
	return count
}

// RecomputeStatus moves the campaign to Completed when nothing is left to
// send, otherwise to Sending.
func (c *Campaign) RecomputeStatus(now time.Time) {
	if c.UnresolvedCount() == 0 {
		c.Status = enum.CampaignStatusCompleted
		if c.CompletedAt == nil {
			c.CompletedAt = &now
		}
		return
	}
	c.Status = enum.CampaignStatusSending
	c.CompletedAt = nil
	if c.StartedAt == nil {
		c.StartedAt = &now
	}
}

func (c *Campaign) MarkSent(index int, messageID string, at time.Time) {
	item := &c.Queue[index]
	item.Status = enum.QueueItemSent
	item.MessageID = messageID
	item.SentAt = &at
	item.Error = ""
	c.SentCount++
}

func (c *Campaign) MarkFailed(index int, err error, at time.Time) {
	item := &c.Queue[index]
	item.Status = enum.QueueItemFailed
	item.SentAt = &at
	item.Error = err.Error()
	c.FailedCount++
}

// ResetFailed moves Failed items back to Pending and returns how many moved.
// An empty selection means every Failed item.
func (c *Campaign) ResetFailed(trackingIDs []string) int {
	return c.reset(trackingIDs, func(item *EmailQueueItem) bool {
		return item.Status == enum.QueueItemFailed
	}, func() { c.FailedCount-- })
}

// ResetUnopened moves Sent items with no recorded open back to Pending.
func (c *Campaign) ResetUnopened(trackingIDs []string) int {
	return c.reset(trackingIDs, func(item *EmailQueueItem) bool {
		return item.Status == enum.QueueItemSent && item.OpenedAt == nil
	}, func() { c.SentCount-- })
}

func (c *Campaign) reset(trackingIDs []string, eligible func(*EmailQueueItem) bool, decrement func()) int {
	selected := make(map[string]struct{}, len(trackingIDs))
	for _, id := range trackingIDs {
		selected[id] = struct{}{}
	}
	moved := 0
	for i := range c.Queue {
		item := &c.Queue[i]
		if len(selected) > 0 {
			if _, ok := selected[item.TrackingID]; !ok {
				continue
			}
		}
		if !eligible(item) {
			continue
		}
		item.Status = enum.QueueItemPending
		item.Error = ""
		item.SentAt = nil
		item.MessageID = ""
		decrement()
		moved++
	}
	if moved > 0 && c.Status == enum.CampaignStatusCompleted {
		c.Status = enum.CampaignStatusSending
		c.CompletedAt = nil
	}
	return moved
}

func (c *Campaign) ItemByTrackingID(trackingID string) (int, bool) {
	for i, item := range c.Queue {
		if item.TrackingID == trackingID {
			return i, true
		}
	}
	return -1, false
}

// RecordOpen stamps the first open of an item; repeated opens are ignored.
func (c *Campaign) RecordOpen(trackingID string, at time.Time) bool {
	i, ok := c.ItemByTrackingID(trackingID)
	if !ok || c.Queue[i].OpenedAt != nil {
		return false
	}
	c.Queue[i].OpenedAt = &at
	c.OpenCount++
	return true
}

// RecordClick stamps the first click of an item. A click implies an open.
func (c *Campaign) RecordClick(trackingID string, at time.Time) bool {
	i, ok := c.ItemByTrackingID(trackingID)
	if !ok || c.Queue[i].ClickedAt != nil {
		return false
	}
	c.RecordOpen(trackingID, at)
	c.Queue[i].ClickedAt = &at
	c.ClickCount++
	return true
}

func (c *Campaign) RecordReply(messageID string, at time.Time) bool {
	for i := range c.Queue {
		item := &c.Queue[i]
		if item.MessageID == "" || utils.NormalizeMessageID(item.MessageID) != utils.NormalizeMessageID(messageID) {
			continue
		}
		if item.RepliedAt != nil {
			return false
		}
		item.RepliedAt = &at
		c.ReplyCount++
		return true
	}
	return false
}

// MergeDelivery copies delivery fields of the attempted items from the
// scheduler's in-memory queue onto the stored queue. An item that is no longer
// Pending in storage was moved by someone else meanwhile and keeps its state.
// Engagement stamps always come from storage.
func (q QueueItems) MergeDelivery(delivered QueueItems, attempted []string) QueueItems {
	byTracking := make(map[string]EmailQueueItem, len(attempted))
	for _, item := range delivered {
		byTracking[item.TrackingID] = item
	}
	wanted := make(map[string]struct{}, len(attempted))
	for _, id := range attempted {
		wanted[id] = struct{}{}
	}
	merged := make(QueueItems, len(q))
	for i, stored := range q {
		merged[i] = stored
		if _, ok := wanted[stored.TrackingID]; !ok || stored.Status != enum.QueueItemPending {
			continue
		}
		d, ok := byTracking[stored.TrackingID]
		if !ok {
			continue
		}
		merged[i].Status = d.Status
		merged[i].SentAt = d.SentAt
		merged[i].Error = d.Error
		merged[i].MessageID = d.MessageID
	}
	return merged
}

// ApplyDelivery merges one batch into the stored campaign and recomputes
// counters and status from the merged queue. The status only moves while the
// campaign is still deliverable.
func (c *Campaign) ApplyDelivery(delivered QueueItems, attempted []string, now time.Time) {
	c.Queue = c.Queue.MergeDelivery(delivered, attempted)
	c.SentCount, c.FailedCount = c.Queue.DeliveryCounts()
	if c.Status.Deliverable() {
		c.RecomputeStatus(now)
	}
}

func (q QueueItems) DeliveryCounts() (sent, failed int) {
	for _, item := range q {
		switch item.Status {
		case enum.QueueItemSent:
			sent++
		case enum.QueueItemFailed:
			failed++
		}
	}
	return sent, failed
}
