package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailsync/interfaces"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type SyncHandler struct {
	connections SyncController
	states      interfaces.SyncStateRepository
}

func NewSyncHandler(connections SyncController, states interfaces.SyncStateRepository) *SyncHandler {
	return &SyncHandler{
		connections: connections,
		states:      states,
	}
}

// TriggerAll requests a pass on every configured account.
func (h *SyncHandler) TriggerAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "SyncHandler.TriggerAll")
		defer span.Finish()

		if err := h.connections.SyncAll(ctx); err != nil {
			respondWithError(c, span, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}
}

func (h *SyncHandler) TriggerAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "SyncHandler.TriggerAccount")
		defer span.Finish()
		accountID := utils.GetAccountIdFromContext(ctx)
		tracing.TagAccount(span, accountID)

		if err := h.connections.TriggerSync(ctx, accountID); err != nil {
			respondWithError(c, span, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "accountId": accountID})
	}
}

func (h *SyncHandler) ListStates() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "SyncHandler.ListStates")
		defer span.Finish()

		states, err := h.states.List(ctx)
		if err != nil {
			respondWithError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"states": states})
	}
}

func (h *SyncHandler) GetState() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "SyncHandler.GetState")
		defer span.Finish()
		accountID := utils.GetAccountIdFromContext(ctx)
		tracing.TagAccount(span, accountID)

		state, err := h.states.Get(ctx, accountID)
		if err != nil {
			respondWithError(c, span, err)
			return
		}
		if state == nil {
			respondWithError(c, span, mserrors.Wrapf(mserrors.ErrAccountNotFound, "no sync state for account %s", accountID))
			return
		}
		c.JSON(http.StatusOK, state)
	}
}
