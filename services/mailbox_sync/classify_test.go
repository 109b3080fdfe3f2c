package mailbox_sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
)

func TestResolveThreadID_Priority(t *testing.T) {
	assert.Equal(t, "root@x", ResolveThreadID([]string{"<root@x>", "mid@x"}, "<parent@x>", "<self@x>", "Re: hi"))
	assert.Equal(t, "parent@x", ResolveThreadID(nil, " <parent@x> ", "<self@x>", "Re: hi"))
	assert.Equal(t, "self@x", ResolveThreadID([]string{""}, "", "<self@x>", "Re: hi"))
	assert.Equal(t, "subject:quarterly update", ResolveThreadID(nil, "", "", "Re: Re: Quarterly Update"))
	assert.Equal(t, "subject:budget", ResolveThreadID(nil, "", "", "FWD: re: Budget"))
}

func TestFolderClassifier_Classify(t *testing.T) {
	contacts := &fakeContacts{
		clients: map[string]*models.Client{"both@example.com": {ID: "c1"}},
		leads: map[string]*models.Lead{
			"both@example.com":      {ID: "l0", Status: enum.LeadStatusNew},
			"new@example.com":       {ID: "l1", Status: enum.LeadStatusNew},
			"lost@example.com":      {ID: "l2", Status: enum.LeadStatusLost},
			"contacted@example.com": {ID: "l3", Status: "contacted"},
		},
	}
	classifier := NewFolderClassifier(contacts)
	ctx := context.Background()

	cases := map[string]enum.Folder{
		"both@example.com":      enum.FolderClients,
		"new@example.com":       enum.FolderNew,
		"lost@example.com":      enum.FolderGeneral,
		"contacted@example.com": enum.FolderContacted,
		"nobody@example.com":    enum.FolderGeneral,
		"":                      enum.FolderGeneral,
	}
	for from, expected := range cases {
		folder, err := classifier.Classify(ctx, from)
		require.NoError(t, err)
		assert.Equal(t, expected, folder, from)
	}
}
