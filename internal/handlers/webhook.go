package handlers

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/teamlinkhq/teamlink/internal/bridge"
	"github.com/teamlinkhq/teamlink/internal/linking"
	"github.com/teamlinkhq/teamlink/internal/message"
	"github.com/teamlinkhq/teamlink/internal/timeline"
)

// WebhookHandler receives platform updates. The route is authenticated by
// the opaque secret path segment, not by JWT; the platform cannot send
// bearer tokens.
type WebhookHandler struct {
	coordinator   *timeline.Coordinator
	client        bridge.Client
	webhookSecret string
	linkSecret    string
	linkCodeTTL   time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

func NewWebhookHandler(log *slog.Logger, coordinator *timeline.Coordinator, client bridge.Client, webhookSecret, linkSecret string, linkCodeTTL time.Duration) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		coordinator:   coordinator,
		client:        client,
		webhookSecret: webhookSecret,
		linkSecret:    linkSecret,
		linkCodeTTL:   linkCodeTTL,
		logger:        log.With(slog.String("handler", "webhook")),
		now:           time.Now,
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/bridge/webhook/:secret", h.receive)
}

func (h *WebhookHandler) receive(c echo.Context) error {
	if subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(h.webhookSecret)) != 1 {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	var update tgbotapi.Update
	if err := c.Bind(&update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid update payload")
	}

	inbound, ok := bridge.ParseUpdate(update)
	if !ok {
		// Not a group text message. Acknowledge so the platform stops
		// retrying.
		return c.NoContent(http.StatusOK)
	}

	if _, isLink := bridge.IsLinkCommand(inbound); isLink {
		h.issueLinkCode(c, inbound)
		return c.NoContent(http.StatusOK)
	}

	_, err := h.coordinator.PostRelayed(c.Request().Context(), timeline.RelayedInput{
		GroupID: inbound.GroupID,
		ExternalAuthor: message.ExternalAuthor{
			ID:          inbound.AuthorID,
			DisplayName: inbound.AuthorName,
		},
		Body: inbound.Body,
	})
	if err != nil {
		if errors.Is(err, linking.ErrNotLinked) ||
			errors.Is(err, timeline.ErrEmptyBody) ||
			errors.Is(err, timeline.ErrBodyTooLong) {
			// Unlinked groups and unacceptable bodies are dropped with a
			// 200: the platform redelivers non-2xx responses in order, so
			// rejecting an update that can never be accepted would wedge
			// everything behind it.
			if errors.Is(err, timeline.ErrBodyTooLong) {
				h.logger.Warn("dropping oversized relayed message",
					"group_id", inbound.GroupID)
			}
			return c.NoContent(http.StatusOK)
		}
		h.logger.Error("relayed ingestion failed",
			"group_id", inbound.GroupID, "error", err)
		return httpError(err)
	}
	return c.NoContent(http.StatusOK)
}

// issueLinkCode answers the in-group /link command with a fresh code the
// moderator can redeem in the hub.
func (h *WebhookHandler) issueLinkCode(c echo.Context, inbound bridge.InboundMessage) {
	code := bridge.IssueLinkCode(h.linkSecret, inbound.GroupID, h.now().Add(h.linkCodeTTL))
	reply := fmt.Sprintf(
		"Use this code to link the group to an area (valid %s): %s",
		h.linkCodeTTL, code)
	if err := h.client.SendMessage(c.Request().Context(), inbound.GroupID, reply); err != nil {
		h.logger.Error("failed to reply with link code",
			"group_id", inbound.GroupID, "error", err)
	}
}
