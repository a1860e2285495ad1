package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/users"
)

// UsersHandler serves the team directory used for assignment pickers.
type UsersHandler struct {
	directory *users.Directory
	logger    *slog.Logger
}

func NewUsersHandler(log *slog.Logger, directory *users.Directory) *UsersHandler {
	return &UsersHandler{
		directory: directory,
		logger:    log.With(slog.String("handler", "users")),
	}
}

func (h *UsersHandler) Register(e *echo.Echo) {
	e.GET("/users", h.List)
	e.GET("/users/:id", h.Get)
}

func (h *UsersHandler) List(c echo.Context) error {
	list, err := h.directory.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if list == nil {
		list = []users.User{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *UsersHandler) Get(c echo.Context) error {
	user, err := h.directory.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, user)
}
