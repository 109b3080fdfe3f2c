package enum

import "strings"

type EmailSecurity string

const (
	EmailSecurityNone     EmailSecurity = "none"
	EmailSecuritySSL      EmailSecurity = "ssl"
	EmailSecurityTLS      EmailSecurity = "tls"
	EmailSecurityStartTLS EmailSecurity = "startTLS"
)

func (t EmailSecurity) String() string {
	return string(t)
}

// ImplicitTLS reports whether the connection is wrapped in TLS from the first byte.
func (t EmailSecurity) ImplicitTLS() bool {
	return t == EmailSecuritySSL || t == EmailSecurityTLS
}

func ParseEmailSecurity(s string) EmailSecurity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ssl":
		return EmailSecuritySSL
	case "tls":
		return EmailSecurityTLS
	case "starttls":
		return EmailSecurityStartTLS
	default:
		return EmailSecurityNone
	}
}
