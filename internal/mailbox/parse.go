package mailbox

import (
	"bytes"
	"io"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/relaydesk/relaydesk/internal/conversation"
)

// parseFetched turns a fetched IMAP message into a ParsedEmail. Envelope
// fields fill anything the MIME walk could not recover, so a malformed
// body still yields a usable message.
func parseFetched(buf *imapclient.FetchMessageBuffer) ParsedEmail {
	parsed := ParsedEmail{UID: uint32(buf.UID)}
	if env := buf.Envelope; env != nil {
		parsed.MessageID = env.MessageID
		parsed.Subject = env.Subject
		parsed.Date = env.Date
		if len(env.From) > 0 {
			parsed.FromAddr = env.From[0].Addr()
			parsed.FromName = env.From[0].Name
		}
	}
	if len(buf.BodySection) > 0 {
		parseMIME(buf.BodySection[0].Bytes, &parsed)
	}
	return parsed
}

// parseMIME extracts the first text/plain and text/html parts plus the
// headers we care about. Attachments are skipped.
func parseMIME(raw []byte, parsed *ParsedEmail) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		parsed.Text = strings.TrimSpace(rawBodyFallback(raw))
		return
	}

	if parsed.FromAddr == "" {
		if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
			parsed.FromAddr = from[0].Address
			parsed.FromName = from[0].Name
		}
	}
	if parsed.Subject == "" {
		parsed.Subject, _ = mr.Header.Subject()
	}
	if parsed.Date.IsZero() {
		if date, err := mr.Header.Date(); err == nil {
			parsed.Date = date
		}
	}
	parsed.XForwardedFor = mr.Header.Get("X-Forwarded-For")

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := header.ContentType()
		if err != nil {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch contentType {
		case "text/plain":
			if parsed.Text == "" {
				parsed.Text = strings.TrimSpace(string(body))
			}
		case "text/html":
			if parsed.HTML == "" {
				// Rune-bounded so a truncated body is still valid UTF-8.
				parsed.HTML = conversation.Truncate(string(body), HTMLMaxLen)
			}
		}
	}
}

// BodyText is the best plain-text rendering of the message: the text/plain
// part when present, otherwise the HTML part converted to markdown.
func (p ParsedEmail) BodyText() string {
	if p.Text != "" {
		return p.Text
	}
	if p.HTML != "" {
		if md, err := htmltomarkdown.ConvertString(p.HTML); err == nil {
			return strings.TrimSpace(md)
		}
	}
	return ""
}

// ReceivedAt is the envelope date, falling back to now for servers that
// omit it.
func (p ParsedEmail) ReceivedAt() time.Time {
	if !p.Date.IsZero() {
		return p.Date
	}
	return time.Now()
}

// rawBodyFallback returns everything after the header block of a message
// that go-message refused to parse.
func rawBodyFallback(raw []byte) string {
	s := string(raw)
	if i := strings.Index(s, "\r\n\r\n"); i >= 0 {
		return s[i+4:]
	}
	if i := strings.Index(s, "\n\n"); i >= 0 {
		return s[i+2:]
	}
	return ""
}
