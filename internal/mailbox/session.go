package mailbox

import (
	"crypto/tls"
	"fmt"

	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"

	"github.com/relaydesk/relaydesk/internal/channel"
)

// dialIMAP opens a logged-in IMAP session with INBOX selected. The caller
// owns the returned client and must Close it.
func dialIMAP(ch channel.Channel, creds channel.EmailCredentials) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", ch.IMAPHost, ch.IMAPPort)
	opts := &imapclient.Options{TLSConfig: &tls.Config{ServerName: ch.IMAPHost}}

	var client *imapclient.Client
	var err error
	if ch.IMAPPort == 143 {
		client, err = imapclient.DialStartTLS(addr, opts)
	} else {
		client, err = imapclient.DialTLS(addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", addr, err)
	}

	if err := client.Login(creds.IMAPUser, creds.IMAPPassword).Wait(); err != nil {
		// Some servers disable LOGIN but accept AUTHENTICATE PLAIN.
		if authErr := client.Authenticate(sasl.NewPlainClient("", creds.IMAPUser, creds.IMAPPassword)); authErr != nil {
			client.Close()
			return nil, fmt.Errorf("imap login: %w", err)
		}
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("select inbox: %w", err)
	}
	return client, nil
}

func closeIMAP(client *imapclient.Client) {
	_ = client.Logout().Wait()
	_ = client.Close()
}
