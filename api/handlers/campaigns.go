package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	custom_err "github.com/customeros/mailsync/api/errors"
	"github.com/customeros/mailsync/interfaces"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

type CampaignsHandler struct {
	campaigns CampaignController
	store     interfaces.CampaignRepository
}

func NewCampaignsHandler(campaigns CampaignController, store interfaces.CampaignRepository) *CampaignsHandler {
	return &CampaignsHandler{
		campaigns: campaigns,
		store:     store,
	}
}

// RecipientsRequest narrows retry/retarget to specific queue items. Empty means all eligible.
type RecipientsRequest struct {
	TrackingIDs []string `json:"trackingIds"`
}

type QueueRequest struct {
	ScheduledAt *time.Time `json:"scheduledAt"`
}

func (h *CampaignsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "CampaignsHandler.Get")
		defer span.Finish()
		id := c.Param("id")
		tracing.TagEntity(span, id)

		campaign, err := h.store.GetByID(ctx, id)
		if err != nil {
			respondWithError(c, span, err)
			return
		}
		if campaign == nil {
			respondWithError(c, span, mserrors.ErrCampaignNotFound)
			return
		}
		c.JSON(http.StatusOK, campaign)
	}
}

// SendNextBatch delivers one batch now. It answers 409 while a tick is running.
func (h *CampaignsHandler) SendNextBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "CampaignsHandler.SendNextBatch")
		defer span.Finish()
		id := c.Param("id")
		tracing.TagEntity(span, id)

		result, err := h.campaigns.SendNextBatch(ctx, id)
		if err != nil {
			respondWithError(c, span, err)
			return
		}
		tracing.LogObjectAsJson(span, "result", result)
		c.JSON(http.StatusOK, result)
	}
}

func (h *CampaignsHandler) Retry() gin.HandlerFunc {
	return h.recipientsAction("CampaignsHandler.Retry", h.campaigns.Retry)
}

func (h *CampaignsHandler) Retarget() gin.HandlerFunc {
	return h.recipientsAction("CampaignsHandler.Retarget", h.campaigns.Retarget)
}

func (h *CampaignsHandler) recipientsAction(operation string, action func(context.Context, string, []string) (*models.Campaign, int, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), operation)
		defer span.Finish()
		id := c.Param("id")
		tracing.TagEntity(span, id)

		var request RecipientsRequest
		if err := bindOptionalJSON(c, &request); err != nil {
			errs := custom_err.NewMultiErrors()
			errs.Add("body", "invalid request format", err)
			respondWithError(c, span, errs)
			return
		}

		campaign, reset, err := action(ctx, id, request.TrackingIDs)
		if err != nil {
			respondWithError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"campaign": campaign, "reset": reset})
	}
}

func (h *CampaignsHandler) Pause() gin.HandlerFunc {
	return h.statusAction("CampaignsHandler.Pause", h.campaigns.Pause)
}

func (h *CampaignsHandler) Resume() gin.HandlerFunc {
	return h.statusAction("CampaignsHandler.Resume", h.campaigns.Resume)
}

func (h *CampaignsHandler) StartNow() gin.HandlerFunc {
	return h.statusAction("CampaignsHandler.StartNow", h.campaigns.StartNow)
}

func (h *CampaignsHandler) statusAction(operation string, action func(context.Context, string) (*models.Campaign, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), operation)
		defer span.Finish()
		id := c.Param("id")
		tracing.TagEntity(span, id)

		campaign, err := action(ctx, id)
		if err != nil {
			respondWithError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, campaign)
	}
}

// Queue moves a draft to Queued, or to Scheduled when scheduledAt is in the future.
func (h *CampaignsHandler) Queue() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "CampaignsHandler.Queue")
		defer span.Finish()
		id := c.Param("id")
		tracing.TagEntity(span, id)

		var request QueueRequest
		if err := bindOptionalJSON(c, &request); err != nil {
			errs := custom_err.NewMultiErrors()
			errs.Add("scheduledAt", "must be an RFC 3339 timestamp", err)
			respondWithError(c, span, errs)
			return
		}

		campaign, err := h.campaigns.Queue(ctx, id, request.ScheduledAt)
		if err != nil {
			respondWithError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, campaign)
	}
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, dest any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dest); err != nil && err != io.EOF {
		return err
	}
	return nil
}
