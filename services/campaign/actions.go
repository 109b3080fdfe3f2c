package campaign

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

// Retry moves Failed items back to Pending. An empty trackingIDs selects every
// Failed item. The scheduler itself never retries.
func (s *Scheduler) Retry(ctx context.Context, campaignID string, trackingIDs []string) (*models.Campaign, int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Scheduler.Retry")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, campaignID)

	moved := 0
	campaign, err := s.campaigns.Mutate(ctx, campaignID, func(c *models.Campaign) error {
		moved = c.ResetFailed(trackingIDs)
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	return campaign, moved, nil
}

// Retarget moves Sent items that were never opened back to Pending.
func (s *Scheduler) Retarget(ctx context.Context, campaignID string, trackingIDs []string) (*models.Campaign, int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Scheduler.Retarget")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, campaignID)

	moved := 0
	campaign, err := s.campaigns.Mutate(ctx, campaignID, func(c *models.Campaign) error {
		moved = c.ResetUnopened(trackingIDs)
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	return campaign, moved, nil
}

func (s *Scheduler) Pause(ctx context.Context, campaignID string) (*models.Campaign, error) {
	return s.transition(ctx, "Scheduler.Pause", campaignID, enum.CampaignStatusPaused, nil)
}

func (s *Scheduler) Resume(ctx context.Context, campaignID string) (*models.Campaign, error) {
	return s.transition(ctx, "Scheduler.Resume", campaignID, enum.CampaignStatusSending, func(c *models.Campaign) error {
		if c.Status != enum.CampaignStatusPaused {
			return mserrors.Wrapf(mserrors.ErrInvalidTransition, "campaign %s is %s, not paused", c.ID, c.Status)
		}
		return nil
	})
}

// StartNow sends a scheduled campaign without waiting for its time.
func (s *Scheduler) StartNow(ctx context.Context, campaignID string) (*models.Campaign, error) {
	return s.transition(ctx, "Scheduler.StartNow", campaignID, enum.CampaignStatusSending, func(c *models.Campaign) error {
		if c.Status != enum.CampaignStatusScheduled {
			return mserrors.Wrapf(mserrors.ErrInvalidTransition, "campaign %s is %s, not scheduled", c.ID, c.Status)
		}
		return nil
	})
}

// Queue releases a draft for delivery, at scheduledAt when it is in the future.
func (s *Scheduler) Queue(ctx context.Context, campaignID string, scheduledAt *time.Time) (*models.Campaign, error) {
	next := enum.CampaignStatusQueued
	if scheduledAt != nil && scheduledAt.After(s.now()) {
		next = enum.CampaignStatusScheduled
	}
	return s.transition(ctx, "Scheduler.Queue", campaignID, next, func(c *models.Campaign) error {
		if next == enum.CampaignStatusScheduled {
			at := scheduledAt.UTC()
			c.ScheduledAt = &at
		}
		return nil
	})
}

func (s *Scheduler) transition(ctx context.Context, operation, campaignID string, next enum.CampaignStatus, check func(*models.Campaign) error) (*models.Campaign, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, operation)
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, campaignID)

	campaign, err := s.campaigns.Mutate(ctx, campaignID, func(c *models.Campaign) error {
		if check != nil {
			if err := check(c); err != nil {
				return err
			}
		}
		if !c.Status.CanTransitionTo(next) {
			return mserrors.Wrapf(mserrors.ErrInvalidTransition, "campaign %s cannot move from %s to %s", c.ID, c.Status, next)
		}
		c.Status = next
		if next == enum.CampaignStatusSending && c.StartedAt == nil {
			now := s.now()
			c.StartedAt = &now
		}
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return campaign, nil
}
