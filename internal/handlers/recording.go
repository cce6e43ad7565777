package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/teamlinkhq/teamlink/internal/area"
	"github.com/teamlinkhq/teamlink/internal/auth"
	"github.com/teamlinkhq/teamlink/internal/recording"
)

// RecordingHandler exposes the per-area recording controls.
type RecordingHandler struct {
	manager *recording.Manager
	areas   *area.Service
	logger  *slog.Logger
}

func NewRecordingHandler(log *slog.Logger, manager *recording.Manager, areas *area.Service) *RecordingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RecordingHandler{
		manager: manager,
		areas:   areas,
		logger:  log.With(slog.String("handler", "recording")),
	}
}

func (h *RecordingHandler) Register(e *echo.Echo) {
	e.POST("/areas/:area_id/recording/start", h.start)
	e.POST("/areas/:area_id/recording/stop", h.stop)
	e.GET("/areas/:area_id/recording", h.status)
}

type startRecordingResponse struct {
	Session       recording.Session `json:"session"`
	AlreadyActive bool              `json:"already_active"`
}

func (h *RecordingHandler) start(c echo.Context) error {
	userID, err := h.requireMember(c)
	if err != nil {
		return err
	}
	result, err := h.manager.Start(c.Request().Context(), c.Param("area_id"), userID)
	if err != nil {
		return httpError(err)
	}
	status := http.StatusCreated
	if result.AlreadyActive {
		status = http.StatusOK
	}
	return c.JSON(status, startRecordingResponse{
		Session:       result.Session,
		AlreadyActive: result.AlreadyActive,
	})
}

func (h *RecordingHandler) stop(c echo.Context) error {
	if _, err := h.requireMember(c); err != nil {
		return err
	}
	result, err := h.manager.Stop(c.Request().Context(), c.Param("area_id"))
	if err != nil {
		if errors.Is(err, recording.ErrNotRecording) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type recordingStatusResponse struct {
	Active  bool               `json:"active"`
	Session *recording.Session `json:"session,omitempty"`
}

func (h *RecordingHandler) status(c echo.Context) error {
	if _, err := h.requireMember(c); err != nil {
		return err
	}
	sess, err := h.manager.Status(c.Request().Context(), c.Param("area_id"))
	if err != nil {
		if errors.Is(err, recording.ErrNotRecording) {
			return c.JSON(http.StatusOK, recordingStatusResponse{Active: false})
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, recordingStatusResponse{Active: true, Session: &sess})
}

func (h *RecordingHandler) requireMember(c echo.Context) (string, error) {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return "", err
	}
	if _, err := h.areas.RoleOf(c.Request().Context(), c.Param("area_id"), userID); err != nil {
		return "", httpError(err)
	}
	return userID, nil
}
