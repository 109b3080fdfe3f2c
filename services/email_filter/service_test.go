package email_filter

import (
	"strings"
	"testing"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/internal/enum"
)

func envelope(t *testing.T, headers ...string) *enmime.Envelope {
	t.Helper()
	raw := strings.Join(append(headers, "Content-Type: text/plain", "", "body"), "\r\n")
	env, err := enmime.ReadEnvelope(strings.NewReader(raw))
	require.NoError(t, err)
	return env
}

func TestScan(t *testing.T) {
	filter := NewEmailFilter()

	tests := []struct {
		name    string
		headers []string
		subject string
		from    string
		want    enum.EmailClassification
	}{
		{
			name:    "plain reply",
			headers: []string{"From: Ana <ana@acme.io>", "Subject: Re: pricing"},
			subject: "Re: pricing",
			from:    "ana@acme.io",
			want:    enum.EmailOK,
		},
		{
			name:    "failed recipients header",
			headers: []string{"From: ops@acme.io", "X-Failed-Recipients: bob@acme.io"},
			subject: "hello",
			from:    "ops@acme.io",
			want:    enum.EmailBounce,
		},
		{
			name:    "mailer daemon sender",
			headers: []string{"From: MAILER-DAEMON@mx.acme.io"},
			subject: "notice",
			from:    "mailer-daemon@mx.acme.io",
			want:    enum.EmailBounce,
		},
		{
			name:    "bounce subject",
			headers: []string{"From: ops@acme.io"},
			subject: "Undelivered Mail Returned to Sender",
			from:    "ops@acme.io",
			want:    enum.EmailBounce,
		},
		{
			name:    "auto submitted",
			headers: []string{"From: ana@acme.io", "Auto-Submitted: auto-replied"},
			subject: "Out of office",
			from:    "ana@acme.io",
			want:    enum.EmailAutoResponder,
		},
		{
			name:    "auto submitted no",
			headers: []string{"From: ana@acme.io", "Auto-Submitted: no"},
			subject: "Re: pricing",
			from:    "ana@acme.io",
			want:    enum.EmailOK,
		},
		{
			name:    "precedence auto reply",
			headers: []string{"From: ana@acme.io", "Precedence: auto_reply"},
			subject: "Away",
			from:    "ana@acme.io",
			want:    enum.EmailAutoResponder,
		},
		{
			name:    "list unsubscribe",
			headers: []string{"From: news@acme.io", "List-Unsubscribe: <mailto:unsub@acme.io>"},
			subject: "Weekly digest",
			from:    "news@acme.io",
			want:    enum.EmailBulk,
		},
		{
			name:    "sender differs from from",
			headers: []string{"From: ana@acme.io", "Sender: bulk@sendgrid.net"},
			subject: "Hello",
			from:    "ana@acme.io",
			want:    enum.EmailBulk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := filter.Scan(envelope(t, tt.headers...), tt.subject, tt.from)
			assert.Equal(t, tt.want, got)
			if tt.want == enum.EmailOK {
				assert.Empty(t, reason)
			} else {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestCountsAsReply(t *testing.T) {
	assert.True(t, enum.EmailOK.CountsAsReply())
	assert.True(t, enum.EmailBulk.CountsAsReply())
	assert.False(t, enum.EmailBounce.CountsAsReply())
	assert.False(t, enum.EmailAutoResponder.CountsAsReply())
}
