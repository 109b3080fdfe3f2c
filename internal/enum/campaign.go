package enum

import "fmt"

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "Draft"
	CampaignStatusQueued    CampaignStatus = "Queued"
	CampaignStatusScheduled CampaignStatus = "Scheduled"
	CampaignStatusSending   CampaignStatus = "Sending"
	CampaignStatusPaused    CampaignStatus = "Paused"
	CampaignStatusCompleted CampaignStatus = "Completed"
)

func (s CampaignStatus) String() string {
	return string(s)
}

func (s CampaignStatus) Validate() error {
	if _, ok := campaignTransitions[s]; ok {
		return nil
	}
	return fmt.Errorf("invalid campaign status %q", string(s))
}

var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:     {CampaignStatusQueued, CampaignStatusScheduled},
	CampaignStatusScheduled: {CampaignStatusQueued, CampaignStatusSending, CampaignStatusDraft},
	CampaignStatusQueued:    {CampaignStatusSending, CampaignStatusPaused, CampaignStatusCompleted},
	CampaignStatusSending:   {CampaignStatusPaused, CampaignStatusCompleted},
	CampaignStatusPaused:    {CampaignStatusSending, CampaignStatusQueued},
	CampaignStatusCompleted: {CampaignStatusSending},
}

func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	for _, allowed := range campaignTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Deliverable reports whether the scheduler acts on campaigns in this status.
func (s CampaignStatus) Deliverable() bool {
	return s == CampaignStatusQueued || s == CampaignStatusSending
}

type QueueItemStatus string

const (
	QueueItemPending    QueueItemStatus = "Pending"
	QueueItemProcessing QueueItemStatus = "Processing"
	QueueItemSent       QueueItemStatus = "Sent"
	QueueItemFailed     QueueItemStatus = "Failed"
)

func (s QueueItemStatus) String() string {
	return string(s)
}

func (s QueueItemStatus) Validate() error {
	switch s {
	case QueueItemPending, QueueItemProcessing, QueueItemSent, QueueItemFailed:
		return nil
	}
	return fmt.Errorf("invalid queue item status %q", string(s))
}

// Resolved reports whether delivery was attempted.
func (s QueueItemStatus) Resolved() bool {
	return s == QueueItemSent || s == QueueItemFailed
}
