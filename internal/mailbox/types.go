package mailbox

import "time"

// HTMLMaxLen bounds stored HTML bodies.
const HTMLMaxLen = 100_000

// ParsedEmail is one inbound message after MIME parsing.
type ParsedEmail struct {
	UID           uint32
	MessageID     string
	FromAddr      string
	FromName      string
	Subject       string
	Text          string
	HTML          string
	XForwardedFor string
	Date          time.Time
}

// OutboundEmail is a single plain-text message to send over SMTP.
type OutboundEmail struct {
	To      string
	Subject string
	Body    string
}

// ProbeResult is the structured outcome of an admin-facing connectivity
// probe. Probes never panic or leak transport errors past this shape.
type ProbeResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func probeFailure(err error) ProbeResult {
	return ProbeResult{Success: false, Error: err.Error()}
}
