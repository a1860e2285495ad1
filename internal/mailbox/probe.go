package mailbox

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk/internal/channel"
)

const (
	testEmailAttempts = 5
	testEmailBackoff  = 3 * time.Second
)

// TestConnection verifies that both legs of an email channel are reachable:
// an IMAP login plus INBOX select, and an SMTP dial.
func TestConnection(ctx context.Context, ch channel.WithCredentials) ProbeResult {
	creds := ch.Credentials.Email
	if creds == nil {
		return probeFailure(fmt.Errorf("channel has no email credentials"))
	}

	client, err := dialIMAP(ch.Channel, *creds)
	if err != nil {
		return probeFailure(fmt.Errorf("imap: %w", err))
	}
	closeIMAP(client)

	if ch.SMTPHost != "" {
		if err := dialSMTP(ctx, ch.Channel, *creds); err != nil {
			return probeFailure(fmt.Errorf("smtp: %w", err))
		}
	}
	return ProbeResult{Success: true, Detail: "imap and smtp reachable"}
}

// SendTestEmail performs a full round trip: it sends a uniquely tagged
// message to the channel's own address, then polls the INBOX until the tag
// shows up or the attempts run out.
func SendTestEmail(ctx context.Context, ch channel.WithCredentials) ProbeResult {
	creds := ch.Credentials.Email
	if creds == nil {
		return probeFailure(fmt.Errorf("channel has no email credentials"))
	}

	tag := uuid.NewString()
	subject := "Connectivity check " + tag
	_, err := SendMail(ctx, ch.Channel, *creds, OutboundEmail{
		To:      creds.IMAPUser,
		Subject: subject,
		Body:    "This message verifies the send/receive loop of this channel. It is safe to delete.",
	})
	if err != nil {
		return probeFailure(fmt.Errorf("send: %w", err))
	}

	for attempt := 1; attempt <= testEmailAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return probeFailure(ctx.Err())
		case <-time.After(testEmailBackoff):
		}
		found, err := inboxHasSubject(ch, *creds, tag)
		if err != nil {
			if attempt == testEmailAttempts {
				return probeFailure(fmt.Errorf("verify receipt: %w", err))
			}
			continue
		}
		if found {
			return ProbeResult{Success: true, Detail: fmt.Sprintf("round trip completed after %d attempt(s)", attempt)}
		}
	}
	return probeFailure(fmt.Errorf("test email sent but not received within %s", time.Duration(testEmailAttempts)*testEmailBackoff))
}

func inboxHasSubject(ch channel.WithCredentials, creds channel.EmailCredentials, tag string) (bool, error) {
	client, err := dialIMAP(ch.Channel, creds)
	if err != nil {
		return false, err
	}
	defer closeIMAP(client)

	data, err := client.UIDSearch(&imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: "Subject", Value: tag}},
	}, nil).Wait()
	if err != nil {
		return false, err
	}
	return len(data.AllUIDs()) > 0, nil
}

func dialSMTP(ctx context.Context, ch channel.Channel, creds channel.EmailCredentials) error {
	// Reuse the send path client setup without sending anything.
	client, err := smtpClient(ch, creds)
	if err != nil {
		return err
	}
	if err := client.DialWithContext(ctx); err != nil {
		return err
	}
	return client.Close()
}
