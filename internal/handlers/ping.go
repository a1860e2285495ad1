package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandler answers liveness checks from load balancers and uptime
// monitors. It carries no dependencies so it stays responsive even when
// the database is down.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.Health)
}

// Ping godoc
// @Summary Liveness check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /ping [get]
func (h *HealthHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "relaydesk"})
}

// Health serves header-only checks from monitors that discard bodies.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
