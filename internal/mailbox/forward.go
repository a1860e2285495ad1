package mailbox

import (
	"regexp"
	"strings"
)

// ForwardInfo is the original sender recovered from a forwarded email.
type ForwardInfo struct {
	Email string
	Name  string
}

var (
	forwardSubjectRe = regexp.MustCompile(`(?i)^\s*fwd?\s*:`)
	emailTokenRe     = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	forwardMarkerRe  = regexp.MustCompile(`(?i)-{2,}\s*Forwarded message\s*-{2,}|Begin forwarded message:`)
	fromLineRe       = regexp.MustCompile(`(?mi)^\s*>*\s*\*?From:\*?\s*(.+)$`)
	addrWithNameRe   = regexp.MustCompile(`^\s*"?([^"<]*?)"?\s*<([^>\s]+@[^>\s]+)>`)
)

// DetectForward tries a fixed sequence of heuristics to recover the
// original sender of a forwarded message: the subject line, known body
// markers, then the X-Forwarded-For header. The first hit wins.
func DetectForward(p ParsedEmail) (ForwardInfo, bool) {
	if info, ok := detectFromSubject(p); ok {
		return info, true
	}
	if info, ok := detectFromBody(p.BodyText()); ok {
		return info, true
	}
	if info, ok := detectFromHeader(p.XForwardedFor); ok {
		return info, true
	}
	return ForwardInfo{}, false
}

// detectFromSubject matches "Fwd:"/"Fw:" subjects that also carry the
// original address in the subject itself.
func detectFromSubject(p ParsedEmail) (ForwardInfo, bool) {
	if !forwardSubjectRe.MatchString(p.Subject) {
		return ForwardInfo{}, false
	}
	if addr := emailTokenRe.FindString(p.Subject); addr != "" {
		return ForwardInfo{Email: strings.ToLower(addr)}, true
	}
	// A forwarded subject without an address still marks the message;
	// fall through to the body heuristics for the sender.
	return ForwardInfo{}, false
}

// detectFromBody looks for a forwarding marker and reads the From line of
// the quoted original; a body whose first line is already a From line
// counts as well.
func detectFromBody(body string) (ForwardInfo, bool) {
	if body == "" {
		return ForwardInfo{}, false
	}
	search := body
	if loc := forwardMarkerRe.FindStringIndex(body); loc != nil {
		search = body[loc[1]:]
	} else if !leadingFromLine(body) {
		return ForwardInfo{}, false
	}
	match := fromLineRe.FindStringSubmatch(search)
	if match == nil {
		return ForwardInfo{}, false
	}
	return parseAddressLine(match[1])
}

// detectFromHeader reads relay-added X-Forwarded-For style headers.
func detectFromHeader(header string) (ForwardInfo, bool) {
	if addr := emailTokenRe.FindString(header); addr != "" {
		return ForwardInfo{Email: strings.ToLower(addr)}, true
	}
	return ForwardInfo{}, false
}

// leadingFromLine reports whether the first non-empty body line is a
// quoted From line carrying an email address.
func leadingFromLine(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return fromLineRe.MatchString(line) && emailTokenRe.MatchString(line)
	}
	return false
}

// parseAddressLine handles both `Name <addr>` and bare-address forms.
func parseAddressLine(line string) (ForwardInfo, bool) {
	line = strings.TrimSpace(line)
	if match := addrWithNameRe.FindStringSubmatch(line); match != nil {
		return ForwardInfo{
			Email: strings.ToLower(match[2]),
			Name:  strings.TrimSpace(match[1]),
		}, true
	}
	if addr := emailTokenRe.FindString(line); addr != "" {
		return ForwardInfo{Email: strings.ToLower(addr)}, true
	}
	return ForwardInfo{}, false
}
