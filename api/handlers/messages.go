package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	custom_err "github.com/customeros/mailsync/api/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

const maxPageSize = 200

type MessagesHandler struct {
	messages interfaces.MailMessageRepository
}

func NewMessagesHandler(messages interfaces.MailMessageRepository) *MessagesHandler {
	return &MessagesHandler{messages: messages}
}

// ListByAccount pages through mirrored messages, newest first.
func (h *MessagesHandler) ListByAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "MessagesHandler.ListByAccount")
		defer span.Finish()
		accountID := utils.GetAccountIdFromContext(ctx)
		tracing.TagAccount(span, accountID)

		errs := custom_err.NewMultiErrors()
		var folder enum.Folder
		if value := c.Query("folder"); value != "" {
			parsed, err := enum.ParseFolder(value)
			if err != nil {
				errs.Add("folder", err.Error(), err)
			}
			folder = parsed
		}
		limit := queryInt(c, "limit", 50, errs)
		offset := queryInt(c, "offset", 0, errs)
		if limit > maxPageSize {
			limit = maxPageSize
		}
		if errs.HasErrors() {
			respondWithError(c, span, errs)
			return
		}

		messages, err := h.messages.ListByAccount(ctx, accountID, folder, limit, offset)
		if err != nil {
			respondWithError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"messages": messages,
			"limit":    limit,
			"offset":   offset,
		})
	}
}

func (h *MessagesHandler) ListByThread() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "MessagesHandler.ListByThread")
		defer span.Finish()

		threadID := c.Param("threadId")
		accountID := c.Query("accountId")
		if accountID == "" {
			errs := custom_err.NewMultiErrors()
			errs.Add("accountId", "accountId query parameter is required", nil)
			respondWithError(c, span, errs)
			return
		}
		tracing.TagAccount(span, accountID)
		tracing.TagEntity(span, threadID)

		messages, err := h.messages.ListByThread(ctx, accountID, threadID)
		if err != nil {
			respondWithError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"threadId": threadID, "messages": messages})
	}
}

func queryInt(c *gin.Context, key string, fallback int, errs *custom_err.MultiErrors) int {
	value := c.Query(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		errs.Add(key, "must be a non-negative integer", err)
		return fallback
	}
	return parsed
}
