package mailbox

import (
	"context"
	"fmt"

	mail "github.com/wneessen/go-mail"

	"github.com/relaydesk/relaydesk/internal/channel"
)

// SendMail delivers one plain-text email over the channel's SMTP endpoint.
func SendMail(ctx context.Context, ch channel.Channel, creds channel.EmailCredentials, msg OutboundEmail) (string, error) {
	if ch.SMTPHost == "" {
		return "", fmt.Errorf("channel %s has no smtp host configured", ch.ID)
	}
	user := creds.EffectiveSMTPUser()
	if user == "" {
		return "", fmt.Errorf("channel %s has no smtp username", ch.ID)
	}

	m := mail.NewMsg()
	if err := m.From(user); err != nil {
		return "", fmt.Errorf("set from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return "", fmt.Errorf("set to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	m.SetMessageID()

	client, err := smtpClient(ch, creds)
	if err != nil {
		return "", fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	return m.GetMessageID(), nil
}

func smtpClient(ch channel.Channel, creds channel.EmailCredentials) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(ch.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(creds.EffectiveSMTPUser()),
		mail.WithPassword(creds.EffectiveSMTPPassword()),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if ch.SMTPPort == 465 {
		opts = append(opts, mail.WithSSLPort(false))
	}
	return mail.NewClient(ch.SMTPHost, opts...)
}
