package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/dispatch"
	"github.com/relaydesk/relaydesk/internal/lead"
)

// ConversationsHandler serves the unified inbox.
type ConversationsHandler struct {
	store      *conversation.Store
	dispatcher *dispatch.Dispatcher
	linker     *lead.Linker
	leads      *lead.Store
	logger     *slog.Logger
}

func NewConversationsHandler(log *slog.Logger, store *conversation.Store, dispatcher *dispatch.Dispatcher, linker *lead.Linker, leads *lead.Store) *ConversationsHandler {
	return &ConversationsHandler{
		store:      store,
		dispatcher: dispatcher,
		linker:     linker,
		leads:      leads,
		logger:     log.With(slog.String("handler", "conversations")),
	}
}

func (h *ConversationsHandler) Register(e *echo.Echo) {
	group := e.Group("/conversations")
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.GET("/:id/messages", h.Messages)
	group.POST("/:id/reply", h.Reply)
	group.POST("/:id/read", h.MarkRead)
	group.POST("/:id/assign", h.Assign)
	group.POST("/:id/status", h.SetStatus)
	group.POST("/:id/link-lead", h.LinkLead)
	group.POST("/:id/lead", h.CreateLead)
	group.GET("/:id/lead", h.GetLead)
	group.POST("/:id/notes", h.AddNote)
}

// List godoc
// @Summary List conversations
// @Tags conversations
// @Produce json
// @Success 200 {array} conversation.Conversation
// @Router /conversations [get]
func (h *ConversationsHandler) List(c echo.Context) error {
	conversations, err := h.store.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if conversations == nil {
		conversations = []conversation.Conversation{}
	}
	return c.JSON(http.StatusOK, conversations)
}

func (h *ConversationsHandler) Get(c echo.Context) error {
	conv, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return conversationError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *ConversationsHandler) Messages(c echo.Context) error {
	messages, err := h.store.ListMessages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return conversationError(err)
	}
	if messages == nil {
		messages = []conversation.Message{}
	}
	return c.JSON(http.StatusOK, messages)
}

type replyRequest struct {
	SenderUserID string `json:"sender_user_id"`
	Body         string `json:"body"`
	MediaURL     string `json:"media_url"`
}

// Reply godoc
// @Summary Send a reply over the conversation's channel
// @Tags conversations
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Router /conversations/{id}/reply [post]
func (h *ConversationsHandler) Reply(c echo.Context) error {
	var req replyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := h.dispatcher.Reply(c.Request().Context(), c.Param("id"), req.SenderUserID, req.Body, req.MediaURL)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, conversation.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, dispatch.ErrEmptyReply), errors.Is(err, dispatch.ErrNoRecipient):
			status = http.StatusBadRequest
		}
		h.logger.Error("reply failed", slog.String("conversation_id", c.Param("id")), slog.Any("error", err))
		return c.JSON(status, map[string]any{"success": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": msg})
}

func (h *ConversationsHandler) MarkRead(c echo.Context) error {
	if err := h.store.MarkRead(c.Request().Context(), c.Param("id")); err != nil {
		return conversationError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

type assignRequest struct {
	UserID string `json:"user_id"`
}

func (h *ConversationsHandler) Assign(c echo.Context) error {
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.store.Assign(c.Request().Context(), c.Param("id"), req.UserID); err != nil {
		return conversationError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

type statusRequest struct {
	Status       string     `json:"status" validate:"required"`
	SnoozedUntil *time.Time `json:"snoozed_until"`
}

func (h *ConversationsHandler) SetStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	status, ok := conversation.ParseStatus(req.Status)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	var snoozedUntil time.Time
	if req.SnoozedUntil != nil {
		snoozedUntil = *req.SnoozedUntil
	}
	if err := h.store.SetStatus(c.Request().Context(), c.Param("id"), status, snoozedUntil); err != nil {
		if errors.Is(err, conversation.ErrSnoozeInPast) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return conversationError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

type linkLeadRequest struct {
	LeadID string `json:"lead_id" validate:"required"`
}

func (h *ConversationsHandler) LinkLead(c echo.Context) error {
	var req linkLeadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.LeadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "lead_id is required")
	}
	if err := h.linker.Link(c.Request().Context(), c.Param("id"), req.LeadID); err != nil {
		if errors.Is(err, conversation.ErrLeadNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return conversationError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// CreateLead godoc
// @Summary Create a lead from the conversation and link it
// @Tags conversations
// @Accept json
// @Produce json
// @Success 201 {object} lead.Lead
// @Router /conversations/{id}/lead [post]
func (h *ConversationsHandler) CreateLead(c echo.Context) error {
	var req lead.CreateInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.linker.CreateFromConversation(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return conversationError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

// GetLead returns the lead linked to the conversation, if any.
func (h *ConversationsHandler) GetLead(c echo.Context) error {
	conv, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return conversationError(err)
	}
	if conv.LeadID == "" {
		return echo.NewHTTPError(http.StatusNotFound, "conversation has no linked lead")
	}
	linked, err := h.leads.Get(c.Request().Context(), conv.LeadID)
	if err != nil {
		if errors.Is(err, lead.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "lead not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, linked)
}

type noteRequest struct {
	SenderUserID string `json:"sender_user_id"`
	Text         string `json:"text" validate:"required"`
}

// AddNote records an internal note. Notes never leave the system and never
// affect unread counts.
func (h *ConversationsHandler) AddNote(c echo.Context) error {
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	msg, err := h.store.AppendMessage(c.Request().Context(), c.Param("id"), conversation.AppendInput{
		Direction:    conversation.DirectionOutbound,
		IsInternal:   true,
		SenderUserID: req.SenderUserID,
		Text:         req.Text,
	})
	if err != nil {
		return conversationError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func conversationError(err error) error {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	case errors.Is(err, conversation.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	case errors.Is(err, conversation.ErrLeadNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "lead not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
