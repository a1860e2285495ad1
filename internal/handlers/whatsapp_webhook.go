package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/whatsapp"
)

// WhatsAppWebhookHandler receives inbound message events from the WhatsApp
// relay service.
type WhatsAppWebhookHandler struct {
	channels ChannelSource
	ingestor *whatsapp.Ingestor
	logger   *slog.Logger
}

func NewWhatsAppWebhookHandler(log *slog.Logger, channels ChannelSource, ingestor *whatsapp.Ingestor) *WhatsAppWebhookHandler {
	return &WhatsAppWebhookHandler{
		channels: channels,
		ingestor: ingestor,
		logger:   log.With(slog.String("handler", "whatsapp_webhook")),
	}
}

func (h *WhatsAppWebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/whatsapp", h.Receive)
}

// Receive godoc
// @Summary WhatsApp relay webhook
// @Description Ingests message_received events from the relay
// @Tags webhooks
// @Accept json
// @Success 200 {object} map[string]bool
// @Failure 400 {object} ErrorResponse
// @Router /webhooks/whatsapp [post]
func (h *WhatsAppWebhookHandler) Receive(c echo.Context) error {
	var ev whatsapp.WebhookEvent
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if ev.InstanceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "instanceId is required")
	}

	ctx := c.Request().Context()
	channels, err := h.channels.ListActiveWithCredentials(ctx, channel.TypeWhatsApp)
	if err != nil {
		h.logger.Error("list whatsapp channels", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "channel lookup failed")
	}

	var matched *channel.WithCredentials
	for idx := range channels {
		if channels[idx].RelayInstanceID == ev.InstanceID {
			matched = &channels[idx]
			break
		}
	}
	if matched == nil {
		// Acknowledge so the relay does not retry; the instance just is
		// not configured here.
		h.logger.Warn("webhook for unknown relay instance", slog.String("instance_id", ev.InstanceID))
		return c.JSON(http.StatusOK, map[string]bool{"received": true})
	}

	if err := h.ingestor.ProcessEvent(ctx, matched.ID, ev); err != nil {
		h.logger.Error("process whatsapp event",
			slog.String("channel_id", matched.ID),
			slog.Any("error", err))
	}
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}
