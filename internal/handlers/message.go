package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/teamlinkhq/teamlink/internal/auth"
	"github.com/teamlinkhq/teamlink/internal/message"
	"github.com/teamlinkhq/teamlink/internal/timeline"
)

// MessageHandler serves the timeline read and write endpoints.
type MessageHandler struct {
	coordinator *timeline.Coordinator
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewMessageHandler(log *slog.Logger, coordinator *timeline.Coordinator) *MessageHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MessageHandler{
		coordinator: coordinator,
		validate:    validator.New(),
		logger:      log.With(slog.String("handler", "message")),
	}
}

func (h *MessageHandler) Register(e *echo.Echo) {
	e.POST("/areas/:area_id/messages", h.post)
	e.GET("/areas/:area_id/messages", h.list)
	e.PATCH("/areas/:area_id/messages/:message_id", h.edit)
	e.DELETE("/areas/:area_id/messages/:message_id", h.remove)
}

type postMessageRequest struct {
	Body         string `json:"body" validate:"omitempty,max=4096"`
	AttachmentID string `json:"attachment_id" validate:"omitempty,uuid"`
	ReplyToID    string `json:"reply_to_id" validate:"omitempty,uuid"`
	AuthorName   string `json:"author_name" validate:"omitempty,max=128"`
}

func (h *MessageHandler) post(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := h.coordinator.PostDirect(c.Request().Context(), timeline.DirectInput{
		AreaID:       c.Param("area_id"),
		AuthorID:     userID,
		AuthorName:   req.AuthorName,
		Body:         req.Body,
		AttachmentID: req.AttachmentID,
		ReplyToID:    req.ReplyToID,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

type listMessagesResponse struct {
	Messages []message.Message `json:"messages"`
}

func (h *MessageHandler) list(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	before, err := parseBeforeParam(c.QueryParam("before"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid before parameter")
	}
	limit, err := parseLimitParam(c.QueryParam("limit"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid limit parameter")
	}

	msgs, err := h.coordinator.History(c.Request().Context(), c.Param("area_id"), userID, before, limit)
	if err != nil {
		return httpError(err)
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return c.JSON(http.StatusOK, listMessagesResponse{Messages: msgs})
}

type editMessageRequest struct {
	Body string `json:"body" validate:"required,max=4096"`
}

func (h *MessageHandler) edit(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	var req editMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := h.coordinator.Edit(c.Request().Context(),
		c.Param("area_id"), c.Param("message_id"), userID, req.Body)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, msg)
}

func (h *MessageHandler) remove(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	msg, err := h.coordinator.Delete(c.Request().Context(),
		c.Param("area_id"), c.Param("message_id"), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, msg)
}

func parseBeforeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseLimitParam(raw string) (int32, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return int32(n), nil
}
