package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// UnknownProfileName is used when the Graph profile lookup fails; ingestion
// must not depend on profile availability.
const UnknownProfileName = "Unknown"

// Profile is the public profile of a Messenger/Instagram user.
type Profile struct {
	Name       string `json:"name"`
	ProfilePic string `json:"profile_pic"`
}

// SendResult is the Graph send API response.
type SendResult struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Client talks to the Meta Graph API. BaseURL is configurable so tests can
// point it at a local server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Graph client. baseURL should include the API version
// segment, e.g. https://graph.facebook.com/v19.0.
func NewClient(log *slog.Logger, baseURL string) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     log.With(slog.String("component", "meta.graph")),
	}
}

// FetchProfile looks up the display name and avatar of a platform-scoped
// user id. Lookup failures degrade to UnknownProfileName rather than
// blocking message ingestion.
func (c *Client) FetchProfile(ctx context.Context, accessToken, psid string) Profile {
	endpoint := fmt.Sprintf("%s/%s?fields=name,profile_pic&access_token=%s",
		c.baseURL, url.PathEscape(psid), url.QueryEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Profile{Name: UnknownProfileName}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("profile fetch failed", slog.String("psid", psid), slog.Any("error", err))
		return Profile{Name: UnknownProfileName}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("profile fetch non-200", slog.String("psid", psid), slog.Int("status", resp.StatusCode))
		return Profile{Name: UnknownProfileName}
	}
	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil || profile.Name == "" {
		return Profile{Name: UnknownProfileName}
	}
	return profile
}

// SendText sends a plain text message to a platform-scoped user id.
func (c *Client) SendText(ctx context.Context, accessToken, psid, text string) (SendResult, error) {
	payload := map[string]any{
		"recipient": map[string]any{"id": psid},
		"message":   map[string]any{"text": text},
	}
	return c.send(ctx, accessToken, payload)
}

// SendAttachment sends a media message by URL. attachmentType is one of
// image, video, audio or file.
func (c *Client) SendAttachment(ctx context.Context, accessToken, psid, attachmentType, mediaURL string) (SendResult, error) {
	payload := map[string]any{
		"recipient": map[string]any{"id": psid},
		"message": map[string]any{
			"attachment": map[string]any{
				"type": attachmentType,
				"payload": map[string]any{
					"url":         mediaURL,
					"is_reusable": true,
				},
			},
		},
	}
	return c.send(ctx, accessToken, payload)
}

func (c *Client) send(ctx context.Context, accessToken string, payload map[string]any) (SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal send payload: %w", err)
	}
	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", c.baseURL, url.QueryEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("graph send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{}, fmt.Errorf("read graph response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var gerr graphError
		if json.Unmarshal(raw, &gerr) == nil && gerr.Error.Message != "" {
			return SendResult{}, fmt.Errorf("graph send failed (%d, code %d): %s",
				resp.StatusCode, gerr.Error.Code, gerr.Error.Message)
		}
		return SendResult{}, fmt.Errorf("graph send failed with status %d", resp.StatusCode)
	}
	var result SendResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return SendResult{}, fmt.Errorf("decode graph response: %w", err)
	}
	return result, nil
}
