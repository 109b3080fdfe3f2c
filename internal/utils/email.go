package utils

import (
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
)

// NormalizeEmailAddress lowercases and cleans an address, falling back to a
// trimmed lowercase form when the syntax check rejects it.
func NormalizeEmailAddress(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	validation := mailvalidate.ValidateEmailSyntax(email)
	if validation.IsValid && validation.CleanEmail != "" {
		return strings.ToLower(validation.CleanEmail)
	}
	return strings.ToLower(email)
}

func IsValidEmailAddress(email string) bool {
	return mailvalidate.ValidateEmailSyntax(strings.TrimSpace(email)).IsValid
}

func ExtractDomainFromEmail(email string) string {
	if email == "" {
		return ""
	}

	email = strings.TrimSpace(email)

	if strings.Contains(email, "<") && strings.Contains(email, ">") {
		startIdx := strings.LastIndex(email, "<") + 1
		endIdx := strings.LastIndex(email, ">")
		if startIdx > 0 && endIdx > startIdx {
			email = email[startIdx:endIdx]
		}
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}

	return strings.ToLower(strings.TrimSpace(parts[1]))
}
