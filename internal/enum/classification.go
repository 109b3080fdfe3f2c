package enum

// EmailClassification marks inbound mail that is not a human reply.
type EmailClassification string

const (
	EmailOK            EmailClassification = "ok"
	EmailBounce        EmailClassification = "bounce"
	EmailAutoResponder EmailClassification = "auto_responder"
	EmailBulk          EmailClassification = "bulk"
)

func (c EmailClassification) String() string {
	return string(c)
}

// CountsAsReply reports whether a message of this class may mark a campaign recipient as replied.
func (c EmailClassification) CountsAsReply() bool {
	return c != EmailBounce && c != EmailAutoResponder
}
