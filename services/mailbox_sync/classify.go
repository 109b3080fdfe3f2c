package mailbox_sync

import (
	"context"
	"strings"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/utils"
)

const subjectThreadPrefix = "subject:"

// ResolveThreadID picks the first non-empty of: first reference, in-reply-to,
// own message id, normalized subject.
func ResolveThreadID(references []string, inReplyTo, messageID, subject string) string {
	for _, ref := range references {
		if id := utils.NormalizeMessageID(ref); id != "" {
			return id
		}
	}
	if id := utils.NormalizeMessageID(inReplyTo); id != "" {
		return id
	}
	if id := utils.NormalizeMessageID(messageID); id != "" {
		return id
	}
	return subjectThreadPrefix + strings.ToLower(utils.NormalizeEmailSubject(subject))
}

type FolderClassifier struct {
	contacts interfaces.ContactDirectory
}

func NewFolderClassifier(contacts interfaces.ContactDirectory) *FolderClassifier {
	return &FolderClassifier{contacts: contacts}
}

// Classify files mail from clients under Clients, mail from leads by lead status,
// and everything else under General.
func (c *FolderClassifier) Classify(ctx context.Context, fromAddress string) (enum.Folder, error) {
	if c.contacts == nil || strings.TrimSpace(fromAddress) == "" {
		return enum.FolderGeneral, nil
	}

	client, err := c.contacts.FindClientByEmail(ctx, fromAddress)
	if err != nil {
		return "", err
	}
	if client != nil {
		return enum.FolderClients, nil
	}

	lead, err := c.contacts.FindLeadByEmail(ctx, fromAddress)
	if err != nil {
		return "", err
	}
	if lead != nil {
		return lead.Status.Folder(), nil
	}

	return enum.FolderGeneral, nil
}
