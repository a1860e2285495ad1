package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the WhatsApp relay HTTP API. BaseURL is configurable so
// tests can point it at a local server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// SendResult is the relay send response.
type SendResult struct {
	Sent    string `json:"sent"`
	Message string `json:"message"`
	ID      any    `json:"id"`
}

// NewClient creates a relay client.
func NewClient(log *slog.Logger, baseURL string) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     log.With(slog.String("component", "whatsapp.client")),
	}
}

// SendText sends a text message through a relay instance. to must be a
// normalized international number.
func (c *Client) SendText(ctx context.Context, instanceID, token, to, body string) (SendResult, error) {
	form := url.Values{
		"token": {token},
		"to":    {to},
		"body":  {body},
	}
	return c.post(ctx, instanceID, "messages/chat", form)
}

// SendMedia sends an image by URL with an optional caption.
func (c *Client) SendMedia(ctx context.Context, instanceID, token, to, mediaURL, caption string) (SendResult, error) {
	form := url.Values{
		"token":   {token},
		"to":      {to},
		"image":   {mediaURL},
		"caption": {caption},
	}
	return c.post(ctx, instanceID, "messages/image", form)
}

func (c *Client) post(ctx context.Context, instanceID, path string, form url.Values) (SendResult, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(instanceID), path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("relay send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{}, fmt.Errorf("read relay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return SendResult{}, fmt.Errorf("relay send failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result SendResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return SendResult{}, fmt.Errorf("decode relay response: %w", err)
	}
	if result.Sent != "" && !strings.EqualFold(result.Sent, "true") {
		return result, fmt.Errorf("relay rejected message: %s", result.Message)
	}
	return result, nil
}
