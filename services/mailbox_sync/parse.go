package mailbox_sync

import (
	"bytes"
	"net/mail"
	"strings"

	go_imap "github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"
	"github.com/lib/pq"

	"github.com/customeros/mailsync/dto"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/utils"
	"github.com/customeros/mailsync/services/email_filter"
)

// parseFetched turns raw RFC 5322 bytes into a MailMessage without a folder.
func parseFetched(accountID string, fetched *dto.FetchedMessage, filter *email_filter.EmailFilter) (*models.MailMessage, error) {
	if fetched == nil || len(fetched.Raw) == 0 {
		return nil, mserrors.Wrapf(mserrors.ErrFetchOrParse, "empty message body")
	}

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(fetched.Raw))
	if err != nil {
		return nil, mserrors.Wrap(mserrors.ErrFetchOrParse, err)
	}

	uid := fetched.UID
	message := &models.MailMessage{
		AccountID:   accountID,
		ImapUID:     &uid,
		Subject:     strings.TrimSpace(envelope.GetHeader("Subject")),
		MessageID:   utils.NormalizeMessageID(envelope.GetHeader("Message-Id")),
		References:  pq.StringArray(utils.ParseReferences(envelope.GetHeaderValues("References")...)),
		BodyText:    envelope.Text,
		BodyHTML:    envelope.HTML,
		ToAddresses: addressList(envelope, "To"),
		CcAddresses: addressList(envelope, "Cc"),
	}

	// In-Reply-To can carry several ids; the first one is the parent
	if parents := utils.ParseReferences(envelope.GetHeaderValues("In-Reply-To")...); len(parents) > 0 {
		message.InReplyTo = parents[0]
	}

	if from, err := envelope.AddressList("From"); err == nil && len(from) > 0 {
		message.FromAddress = utils.NormalizeEmailAddress(from[0].Address)
		message.FromName = strings.TrimSpace(from[0].Name)
	}

	if sentAt, err := mail.ParseDate(envelope.GetHeader("Date")); err == nil {
		sentAt = sentAt.UTC()
		message.SentAt = &sentAt
	}
	if !fetched.InternalDate.IsZero() {
		receivedAt := fetched.InternalDate.UTC()
		message.ReceivedAt = &receivedAt
		if message.SentAt == nil {
			message.SentAt = &receivedAt
		}
	}

	message.Classification, message.ClassificationReason = filter.Scan(envelope, message.Subject, message.FromAddress)
	message.Attachments = attachmentMetadata(envelope)
	message.IsRead, message.IsStarred = flagState(fetched.Flags)

	return message, nil
}

func addressList(envelope *enmime.Envelope, header string) pq.StringArray {
	addresses, err := envelope.AddressList(header)
	if err != nil || len(addresses) == 0 {
		return pq.StringArray{}
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if addr.Address == "" {
			continue
		}
		result = append(result, utils.NormalizeEmailAddress(addr.Address))
	}
	return pq.StringArray(result)
}

func attachmentMetadata(envelope *enmime.Envelope) models.AttachmentMetadata {
	parts := make([]*enmime.Part, 0, len(envelope.Attachments)+len(envelope.Inlines))
	parts = append(parts, envelope.Attachments...)
	parts = append(parts, envelope.Inlines...)

	attachments := make(models.AttachmentMetadata, 0, len(parts))
	for _, part := range parts {
		if part.FileName == "" {
			continue
		}
		attachments = append(attachments, models.Attachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        len(part.Content),
		})
	}
	return attachments
}

func flagState(flags []string) (isRead, isStarred bool) {
	for _, flag := range flags {
		switch {
		case strings.EqualFold(flag, go_imap.SeenFlag):
			isRead = true
		case strings.EqualFold(flag, go_imap.FlaggedFlag):
			isStarred = true
		}
	}
	return
}
