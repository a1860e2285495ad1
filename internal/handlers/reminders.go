package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/reminder"
)

// RemindersHandler serves follow-up reminders.
type RemindersHandler struct {
	store  *reminder.Store
	logger *slog.Logger
}

func NewRemindersHandler(log *slog.Logger, store *reminder.Store) *RemindersHandler {
	return &RemindersHandler{
		store:  store,
		logger: log.With(slog.String("handler", "reminders")),
	}
}

func (h *RemindersHandler) Register(e *echo.Echo) {
	group := e.Group("/reminders")
	group.GET("/overdue", h.Overdue)
	group.POST("/:id/complete", h.Complete)
}

// Overdue godoc
// @Summary List overdue reminders, earliest first
// @Tags reminders
// @Produce json
// @Success 200 {array} reminder.OverdueReminder
// @Router /reminders/overdue [get]
func (h *RemindersHandler) Overdue(c echo.Context) error {
	overdue, err := h.store.ListOverdue(c.Request().Context(), time.Now())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if overdue == nil {
		overdue = []reminder.OverdueReminder{}
	}
	return c.JSON(http.StatusOK, overdue)
}

func (h *RemindersHandler) Complete(c echo.Context) error {
	if err := h.store.Complete(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
