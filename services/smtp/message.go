package smtp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/models"
)

const base64LineLength = 76

var (
	headerSanitizer = strings.NewReplacer("\r", "", "\n", "")
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// buildMessage renders an outbound email as RFC 5322 bytes: a
// multipart/alternative body, wrapped in multipart/mixed when attachments exist.
func buildMessage(email dto.OutboundEmail, date time.Time) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)

	from := mail.Address{Name: headerSanitizer.Replace(email.FromName), Address: email.Account.Email}
	to := mail.Address{Address: email.To}

	headers := [][2]string{
		{"From", from.String()},
		{"To", to.String()},
		{"Subject", mime.QEncoding.Encode("utf-8", headerSanitizer.Replace(email.Subject))},
		{"Date", date.Format(time.RFC1123Z)},
		{"Message-ID", email.MessageID},
		{"MIME-Version", "1.0"},
	}
	extra := make([]string, 0, len(email.Headers))
	for name := range email.Headers {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		headers = append(headers, [2]string{textproto.CanonicalMIMEHeaderKey(name), email.Headers[name]})
	}

	alternative, boundary, err := buildAlternative(email.HTML)
	if err != nil {
		return nil, err
	}

	if len(email.Attachments) == 0 {
		headers = append(headers, [2]string{"Content-Type", "multipart/alternative; boundary=" + boundary})
		writeHeaders(buffer, headers)
		buffer.Write(alternative)
		return buffer.Bytes(), nil
	}

	mixed := multipart.NewWriter(buffer)
	headers = append(headers, [2]string{"Content-Type", "multipart/mixed; boundary=" + mixed.Boundary()})
	writeHeaders(buffer, headers)

	part, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"multipart/alternative; boundary=" + boundary},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	if _, err := part.Write(alternative); err != nil {
		return nil, fmt.Errorf("failed to write body part: %w", err)
	}

	for _, attachment := range email.Attachments {
		if err := addAttachment(mixed, attachment); err != nil {
			return nil, err
		}
	}
	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func buildAlternative(body string) ([]byte, string, error) {
	buffer := bytes.NewBuffer(nil)
	writer := multipart.NewWriter(buffer)

	if err := addQuotedPart(writer, "text/plain; charset=UTF-8", htmlToText(body)); err != nil {
		return nil, "", fmt.Errorf("failed to write text part: %w", err)
	}
	if err := addQuotedPart(writer, "text/html; charset=UTF-8", body); err != nil {
		return nil, "", fmt.Errorf("failed to write HTML part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buffer.Bytes(), writer.Boundary(), nil
}

func addQuotedPart(writer *multipart.Writer, contentType, content string) error {
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(content)); err != nil {
		return err
	}
	return qp.Close()
}

func addAttachment(writer *multipart.Writer, attachment models.CampaignAttachment) error {
	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filename := headerSanitizer.Replace(attachment.Filename)

	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(contentType, map[string]string{"name": filename})},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": filename})},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return fmt.Errorf("failed to create attachment part: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(attachment.Content)
	for len(encoded) > base64LineLength {
		if _, err := part.Write([]byte(encoded[:base64LineLength] + "\r\n")); err != nil {
			return fmt.Errorf("failed to write attachment content: %w", err)
		}
		encoded = encoded[base64LineLength:]
	}
	if _, err := part.Write([]byte(encoded + "\r\n")); err != nil {
		return fmt.Errorf("failed to write attachment content: %w", err)
	}
	return nil
}

func writeHeaders(buffer *bytes.Buffer, headers [][2]string) {
	for _, h := range headers {
		buffer.WriteString(fmt.Sprintf("%s: %s\r\n", h[0], headerSanitizer.Replace(h[1])))
	}
	buffer.WriteString("\r\n")
}

// htmlToText keeps the visible text of an HTML body, one line per block.
func htmlToText(body string) string {
	var sb strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return collapseBlankLines(sb.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "head":
				skip++
			case "br", "p", "div", "tr", "li", "h1", "h2", "h3", "h4":
				sb.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "head":
				if skip > 0 {
					skip--
				}
			case "p", "div", "tr", "li", "h1", "h2", "h3", "h4":
				sb.WriteString("\n")
			}
		case html.TextToken:
			if skip == 0 {
				sb.WriteString(whitespaceRegex.ReplaceAllString(string(tokenizer.Text()), " "))
			}
		}
	}
}

func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
