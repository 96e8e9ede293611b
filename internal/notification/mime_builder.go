package notification

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const userAgent = "motionwatch"

// Email is a fully rendered message ready for MIME encoding.
type Email struct {
	From     string
	FromName string
	To       string
	Subject  string
	TextBody string
	HTMLBody string

	MessageID  string
	AlertID    string
	SystemName string
	Date       time.Time

	Attachments []Attachment
}

// Attachment is a file carried in the message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// BuildMIMEMessage encodes email as multipart/mixed with a text/html
// alternative part followed by one part per attachment.
func BuildMIMEMessage(email *Email) ([]byte, error) {
	var buf bytes.Buffer

	mixed := multipart.NewWriter(&buf)

	date := email.Date
	if date.IsZero() {
		date = time.Now()
	}

	headers := map[string]string{
		"From":                     CreateDisplayName(email.FromName, email.From),
		"To":                       email.To,
		"Subject":                  mime.QEncoding.Encode("utf-8", email.Subject),
		"Date":                     date.Format(time.RFC1123Z),
		"MIME-Version":             "1.0",
		"Content-Type":             fmt.Sprintf("multipart/mixed; boundary=%s", mixed.Boundary()),
		"Auto-Submitted":           "auto-generated",
		"X-Auto-Response-Suppress": "All",
		"X-Mailer":                 userAgent,
		"X-Priority":               "2",
	}
	if email.MessageID != "" {
		headers["Message-ID"] = fmt.Sprintf("<%s>", email.MessageID)
	}
	if email.AlertID != "" {
		headers["X-Alert-ID"] = email.AlertID
	}
	if email.SystemName != "" {
		headers["X-Motionwatch-System"] = email.SystemName
	}
	writeHeaders(&buf, headers)

	if err := writeAlternative(mixed, email.TextBody, email.HTMLBody); err != nil {
		return nil, fmt.Errorf("failed to write body: %w", err)
	}

	for _, att := range email.Attachments {
		if err := writeAttachment(mixed, att); err != nil {
			return nil, fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeaders(buf *bytes.Buffer, headers map[string]string) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s: %s\r\n", k, headers[k])
	}
	buf.WriteString("\r\n")
}

func writeAlternative(mixed *multipart.Writer, textBody, htmlBody string) error {
	var altBuf bytes.Buffer
	alt := multipart.NewWriter(&altBuf)

	if err := writeQuotedPart(alt, "text/plain; charset=utf-8", textBody); err != nil {
		return err
	}
	if htmlBody != "" {
		if err := writeQuotedPart(alt, "text/html; charset=utf-8", htmlBody); err != nil {
			return err
		}
	}
	if err := alt.Close(); err != nil {
		return err
	}

	part, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {fmt.Sprintf("multipart/alternative; boundary=%s", alt.Boundary())},
	})
	if err != nil {
		return err
	}
	_, err = part.Write(altBuf.Bytes())
	return err
}

func writeQuotedPart(w *multipart.Writer, contentType, body string) error {
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

func writeAttachment(w *multipart.Writer, att Attachment) error {
	contentType := att.ContentType
	if contentType == "" {
		contentType = contentTypeFor(att.Filename)
	}

	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(contentType, map[string]string{"name": att.Filename})},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename})},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return err
	}

	// RFC 2045 caps encoded lines at 76 characters.
	encoded := base64.StdEncoding.EncodeToString(att.Data)
	for len(encoded) > 76 {
		if _, err := fmt.Fprintf(part, "%s\r\n", encoded[:76]); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	if encoded != "" {
		_, err = fmt.Fprintf(part, "%s\r\n", encoded)
	}
	return err
}

// CreateDisplayName formats "Name <address>" with the name Q-encoded.
func CreateDisplayName(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), address)
}

func contentTypeFor(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}

// generateMessageID derives a Message-ID from the alert ID.
func generateMessageID(alertID string) string {
	return fmt.Sprintf("%s@motionwatch.local", alertID)
}
