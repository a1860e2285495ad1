package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/meta"
)

// MetaWebhookHandler receives Graph webhook deliveries for Messenger and
// Instagram channels.
type MetaWebhookHandler struct {
	channels ChannelSource
	ingestor *meta.Ingestor
	logger   *slog.Logger
}

func NewMetaWebhookHandler(log *slog.Logger, channels ChannelSource, ingestor *meta.Ingestor) *MetaWebhookHandler {
	return &MetaWebhookHandler{
		channels: channels,
		ingestor: ingestor,
		logger:   log.With(slog.String("handler", "meta_webhook")),
	}
}

func (h *MetaWebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhooks/meta", h.Verify)
	e.POST("/webhooks/meta", h.Receive)
}

// Verify godoc
// @Summary Meta webhook verification handshake
// @Description Echoes hub.challenge when hub.verify_token matches a configured channel
// @Tags webhooks
// @Success 200 {string} string
// @Failure 403 {object} ErrorResponse
// @Router /webhooks/meta [get]
func (h *MetaWebhookHandler) Verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode != "subscribe" || token == "" {
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}

	channels, err := h.channels.ListActiveWithCredentials(c.Request().Context(),
		channel.TypeMessenger, channel.TypeInstagram)
	if err != nil {
		h.logger.Error("list meta channels", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "channel lookup failed")
	}
	for _, ch := range channels {
		if ch.Credentials.Meta != nil && ch.Credentials.Meta.WebhookVerifyToken == token {
			return c.String(http.StatusOK, challenge)
		}
	}
	return echo.NewHTTPError(http.StatusForbidden, "verification failed")
}

// Receive godoc
// @Summary Meta webhook event delivery
// @Description Ingests Messenger and Instagram messaging events
// @Tags webhooks
// @Accept json
// @Success 200 {object} map[string]bool
// @Failure 403 {object} ErrorResponse
// @Router /webhooks/meta [post]
func (h *MetaWebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	channels, err := h.channels.ListActiveWithCredentials(c.Request().Context(),
		channel.TypeMessenger, channel.TypeInstagram)
	if err != nil {
		h.logger.Error("list meta channels", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "channel lookup failed")
	}

	// Authenticate before touching the payload; an unsigned delivery gets
	// no parsing at all.
	signature := c.Request().Header.Get("X-Hub-Signature-256")
	if !verifyAgainstAny(signature, body, channels) {
		return echo.NewHTTPError(http.StatusForbidden, "invalid signature")
	}

	var payload meta.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	ctx := c.Request().Context()
	for _, entry := range payload.Entry {
		ch, ok := meta.MatchChannel(payload.Object, entry.ID, channels)
		if !ok {
			h.logger.Warn("webhook entry for unknown page",
				slog.String("object", payload.Object),
				slog.String("entry_id", entry.ID))
			continue
		}
		for _, ev := range entry.Messaging {
			if err := h.ingestor.ProcessEvent(ctx, ch, ev); err != nil && !errors.Is(err, meta.ErrUnknownChannel) {
				h.logger.Error("process meta event",
					slog.String("channel_id", ch.ID),
					slog.Any("error", err))
			}
		}
	}

	// Always acknowledge after the signature check passed; Meta retries
	// non-200 responses aggressively.
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}

// verifyAgainstAny accepts the delivery when its signature matches the app
// secret of any configured Meta channel. Deliveries for different pages of
// the same app share one secret.
func verifyAgainstAny(signature string, body []byte, channels []channel.WithCredentials) bool {
	for _, ch := range channels {
		if ch.Credentials.Meta == nil {
			continue
		}
		if meta.VerifySignature(ch.Credentials.Meta.AppSecret, body, signature) {
			return true
		}
	}
	return false
}
