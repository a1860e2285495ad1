package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/mailbox"
)

// ChannelsHandler manages channel configuration and connectivity probes.
type ChannelsHandler struct {
	store  *channel.Store
	logger *slog.Logger
}

func NewChannelsHandler(log *slog.Logger, store *channel.Store) *ChannelsHandler {
	return &ChannelsHandler{
		store:  store,
		logger: log.With(slog.String("handler", "channels")),
	}
}

func (h *ChannelsHandler) Register(e *echo.Echo) {
	group := e.Group("/channels")
	group.GET("", h.List)
	group.POST("", h.Create)
	group.PUT("/:id", h.Update)
	group.DELETE("/:id", h.Deactivate)
	group.POST("/:id/test", h.TestConnection)
	group.POST("/:id/test-email", h.TestEmail)
}

// List godoc
// @Summary List configured channels
// @Tags channels
// @Produce json
// @Success 200 {array} channel.Channel
// @Router /channels [get]
func (h *ChannelsHandler) List(c echo.Context) error {
	channels, err := h.store.ListAll(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if channels == nil {
		channels = []channel.Channel{}
	}
	return c.JSON(http.StatusOK, channels)
}

// Create godoc
// @Summary Create a channel
// @Tags channels
// @Accept json
// @Produce json
// @Success 201 {object} channel.Channel
// @Router /channels [post]
func (h *ChannelsHandler) Create(c echo.Context) error {
	var req channel.CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.store.Create(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *ChannelsHandler) Update(c echo.Context) error {
	var req channel.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.store.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		if errors.Is(err, channel.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "channel not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

// Deactivate soft-deletes a channel; its conversations stay readable.
func (h *ChannelsHandler) Deactivate(c echo.Context) error {
	if err := h.store.Deactivate(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, channel.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "channel not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// TestConnection godoc
// @Summary Probe channel connectivity
// @Tags channels
// @Produce json
// @Success 200 {object} mailbox.ProbeResult
// @Router /channels/{id}/test [post]
func (h *ChannelsHandler) TestConnection(c echo.Context) error {
	ch, err := h.store.GetWithCredentials(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, channel.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "channel not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if ch.Type != channel.TypeEmail {
		return echo.NewHTTPError(http.StatusBadRequest, "connection test is only available for email channels")
	}
	return c.JSON(http.StatusOK, mailbox.TestConnection(c.Request().Context(), ch))
}

// TestEmail sends a tagged message to the channel's own address and waits
// for it to arrive back.
func (h *ChannelsHandler) TestEmail(c echo.Context) error {
	ch, err := h.store.GetWithCredentials(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, channel.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "channel not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if ch.Type != channel.TypeEmail {
		return echo.NewHTTPError(http.StatusBadRequest, "test email is only available for email channels")
	}
	return c.JSON(http.StatusOK, mailbox.SendTestEmail(c.Request().Context(), ch))
}
