package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/teamlinkhq/teamlink/internal/area"
	"github.com/teamlinkhq/teamlink/internal/auth"
	"github.com/teamlinkhq/teamlink/internal/hub"
)

// LiveHandler upgrades subscribers onto the area's live event stream.
type LiveHandler struct {
	hub      *hub.Hub
	areas    *area.Service
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewLiveHandler(log *slog.Logger, h *hub.Hub, areas *area.Service) *LiveHandler {
	if log == nil {
		log = slog.Default()
	}
	return &LiveHandler{
		hub:   h,
		areas: areas,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: log.With(slog.String("handler", "live")),
	}
}

func (h *LiveHandler) Register(e *echo.Echo) {
	e.GET("/areas/:area_id/live", h.live)
}

func (h *LiveHandler) live(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	areaID := c.Param("area_id")
	ctx := c.Request().Context()

	if _, err := h.areas.Get(ctx, areaID); err != nil {
		return httpError(err)
	}
	member, err := h.areas.IsMember(ctx, areaID, userID)
	if err != nil {
		return httpError(err)
	}
	if !member {
		return echo.NewHTTPError(http.StatusForbidden, area.ErrNotAMember.Error())
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		return nil
	}

	session := h.hub.Join(areaID, uuid.NewString(), userID)
	h.logger.Debug("live subscriber connected",
		"area_id", areaID, "user_id", userID, "session_id", session.ID)
	hub.NewClient(h.hub, session, conn, h.logger).Run()
	return nil
}
