package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/teamlinkhq/teamlink/internal/area"
	"github.com/teamlinkhq/teamlink/internal/auth"
	"github.com/teamlinkhq/teamlink/internal/bridge"
	"github.com/teamlinkhq/teamlink/internal/linking"
)

// LinkHandler binds areas to external groups via redeemed linking codes.
type LinkHandler struct {
	linking    *linking.DBService
	areas      *area.Service
	linkSecret string
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

func NewLinkHandler(log *slog.Logger, l *linking.DBService, areas *area.Service, linkSecret string) *LinkHandler {
	if log == nil {
		log = slog.Default()
	}
	return &LinkHandler{
		linking:    l,
		areas:      areas,
		linkSecret: linkSecret,
		validate:   validator.New(),
		logger:     log.With(slog.String("handler", "link")),
		now:        time.Now,
	}
}

func (h *LinkHandler) Register(e *echo.Echo) {
	e.POST("/areas/:area_id/link", h.link)
	e.DELETE("/areas/:area_id/link", h.unlink)
	e.GET("/areas/:area_id/link", h.status)
}

type linkRequest struct {
	Code string `json:"code" validate:"required,max=512"`
}

type linkResponse struct {
	Binding       linking.Binding `json:"binding"`
	AlreadyLinked bool            `json:"already_linked"`
}

func (h *LinkHandler) link(c echo.Context) error {
	userID, err := h.requireModerator(c)
	if err != nil {
		return err
	}
	var req linkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	groupID, err := bridge.ParseLinkCode(h.linkSecret, req.Code, h.now())
	if err != nil {
		return httpError(err)
	}
	result, err := h.linking.Bind(c.Request().Context(),
		c.Param("area_id"), groupID, req.Code, userID)
	if err != nil {
		return httpError(err)
	}
	status := http.StatusCreated
	if result.AlreadyLinked {
		status = http.StatusOK
	}
	return c.JSON(status, linkResponse{
		Binding:       result.Binding,
		AlreadyLinked: result.AlreadyLinked,
	})
}

func (h *LinkHandler) unlink(c echo.Context) error {
	if _, err := h.requireModerator(c); err != nil {
		return err
	}
	if err := h.linking.Unbind(c.Request().Context(), c.Param("area_id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *LinkHandler) status(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	areaID := c.Param("area_id")
	ctx := c.Request().Context()
	if _, err := h.areas.RoleOf(ctx, areaID, userID); err != nil {
		return httpError(err)
	}
	binding, err := h.linking.ByArea(ctx, areaID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, binding)
}

// requireModerator resolves the caller and checks they moderate the area.
func (h *LinkHandler) requireModerator(c echo.Context) (string, error) {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return "", err
	}
	role, err := h.areas.RoleOf(c.Request().Context(), c.Param("area_id"), userID)
	if err != nil {
		return "", httpError(err)
	}
	if role != area.RoleModerator {
		return "", echo.NewHTTPError(http.StatusForbidden, "moderator role required")
	}
	return userID, nil
}
