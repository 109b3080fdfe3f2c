package email_filter

import (
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"

	"github.com/customeros/mailsync/internal/enum"
)

// Header is satisfied by *enmime.Envelope.
type Header interface {
	GetHeader(name string) string
	GetHeaderValues(name string) []string
}

type EmailFilter struct{}

func NewEmailFilter() *EmailFilter {
	return &EmailFilter{}
}

// Scan classifies an inbound message from its headers. The reason names the
// first check that matched.
func (f *EmailFilter) Scan(header Header, subject, from string) (enum.EmailClassification, string) {
	if isBounce, reason := f.isBounceNotification(header, subject, from); isBounce {
		return enum.EmailBounce, reason
	}
	if isAutoresponder, reason := f.isAutoresponder(header); isAutoresponder {
		return enum.EmailAutoResponder, reason
	}
	if isBulk, reason := f.isBulkEmail(header, from); isBulk {
		return enum.EmailBulk, reason
	}
	return enum.EmailOK, ""
}

func (f *EmailFilter) isBulkEmail(header Header, from string) (bool, string) {
	sender := strings.ToLower(strings.Trim(header.GetHeader("Sender"), "<> "))

	switch {
	case header.GetHeader("List-Unsubscribe") != "":
		return true, "UNSUBSCRIBE header present"
	case strings.EqualFold(header.GetHeader("Precedence"), "bulk"), strings.EqualFold(header.GetHeader("Precedence"), "list"):
		return true, "PRECEDENCE: BULK header present"
	case sender != "" && from != "" && !strings.Contains(sender, strings.ToLower(from)):
		return true, "SENDER != FROM"
	}

	if from == "" {
		return false, ""
	}
	validation := mailvalidate.ValidateEmailSyntax(from)
	if validation.IsSystemGenerated {
		return true, "FROM is system generated"
	}
	return false, ""
}

func (f *EmailFilter) isAutoresponder(header Header) (bool, string) {
	autoSubmitted := strings.ToLower(strings.TrimSpace(header.GetHeader("Auto-Submitted")))

	switch {
	case autoSubmitted != "" && autoSubmitted != "no":
		return true, "AUTO-SUBMITTED header present"
	case header.GetHeader("X-Autoreply") != "":
		return true, "X-AUTOREPLY header present"
	case header.GetHeader("X-Autorespond") != "", header.GetHeader("X-Autoresponse") != "":
		return true, "X-AUTORESPONSE header present"
	case len(header.GetHeaderValues("X-Loop")) > 0:
		return true, "X-LOOP header present"
	case strings.EqualFold(header.GetHeader("Precedence"), "auto_reply"):
		return true, "PRECEDENCE: AUTO_REPLY header present"
	default:
		return false, ""
	}
}

func (f *EmailFilter) isBounceNotification(header Header, subject, from string) (bool, string) {
	contentType := strings.ToLower(header.GetHeader("Content-Type"))

	switch {
	case len(header.GetHeaderValues("X-Failed-Recipients")) > 0:
		return true, "X-FAILED-RECIPIENTS header present"
	case strings.Contains(contentType, "multipart/report") && strings.Contains(contentType, "delivery-status"):
		return true, "CONTENT-TYPE: DELIVERY STATUS REPORT"
	case strings.EqualFold(header.GetHeader("Content-Description"), "delivery report"):
		return true, "CONTENT-DESCRIPTION: DELIVERY REPORT header present"
	case hasBounceKeywords(header.GetHeader("Return-Path")):
		return true, "RETURN-PATH contains bounce keywords"
	case hasBounceKeywords(from):
		return true, "FROM contains bounce keywords"
	case isBounceSubject(subject):
		return true, "SUBJECT contains bounce keywords"
	default:
		return false, ""
	}
}

func hasBounceKeywords(str string) bool {
	lower := strings.ToLower(str)
	return strings.Contains(lower, "mailer-daemon") || strings.Contains(lower, "postmaster@")
}

var bounceSubjects = []string{
	"mail delivery failure",
	"mail delivery failed",
	"undelivered mail returned to sender",
	"delivery status notification",
	"undeliverable",
	"undelivered",
	"delivery failure",
	"failure notice",
	"returned mail",
	"returned to sender",
}

func isBounceSubject(subject string) bool {
	subject = strings.ToLower(subject)
	for _, phrase := range bounceSubjects {
		if strings.Contains(subject, phrase) {
			return true
		}
	}
	return false
}
