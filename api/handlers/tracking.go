package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailsync/interfaces"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services/tracking"
)

// 1x1 transparent gif
var pixelGIF, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAIAAAP///wAAACH5BAEAAAAALAAAAAABAAEAAAICRAEAOw==")

type TrackingHandler struct {
	codec     *tracking.Codec
	campaigns interfaces.CampaignRepository
	log       logger.Logger
	now       func() time.Time
}

func NewTrackingHandler(codec *tracking.Codec, campaigns interfaces.CampaignRepository, log logger.Logger, now func() time.Time) *TrackingHandler {
	return &TrackingHandler{
		codec:     codec,
		campaigns: campaigns,
		log:       log,
		now:       now,
	}
}

// Open always answers with the pixel. Only the first open per recipient is counted.
func (h *TrackingHandler) Open() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "TrackingHandler.Open", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		campaignID := c.Query(tracking.ParamCampaign)
		trackingID := c.Query(tracking.ParamTracking)
		if campaignID != "" && trackingID != "" {
			tracing.TagEntity(span, campaignID)
			if _, err := h.campaigns.RecordOpen(ctx, campaignID, trackingID, h.now()); err != nil {
				tracing.TraceErr(span, err)
				if errors.Is(err, mserrors.ErrCampaignNotFound) {
					h.log.Debugf("open for unknown campaign %s", campaignID)
				} else {
					h.log.Errorf("failed to record open for campaign %s: %v", campaignID, err)
				}
			}
		}

		c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		c.Header("Pragma", "no-cache")
		c.Data(http.StatusOK, "image/gif", pixelGIF)
	}
}

// Click verifies the signature before redirecting, so the endpoint is not an open redirect.
func (h *TrackingHandler) Click() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "TrackingHandler.Click", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		params, err := tracking.ParseClickQuery(c.Request.URL.Query())
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tracing.TagEntity(span, params.CampaignID)

		if !h.codec.VerifyClick(params.CampaignID, params.TrackingID, params.URL, params.Signature) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
		target, err := url.Parse(params.URL)
		if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target url"})
			return
		}

		if _, err := h.campaigns.RecordClick(ctx, params.CampaignID, params.TrackingID, h.now()); err != nil {
			tracing.TraceErr(span, err)
			h.log.Warnf("failed to record click for campaign %s: %v", params.CampaignID, err)
		}
		c.Redirect(http.StatusFound, params.URL)
	}
}
