// Package handlers exposes the hub's HTTP and websocket surface.
package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/teamlinkhq/teamlink/internal/area"
	"github.com/teamlinkhq/teamlink/internal/attachment"
	"github.com/teamlinkhq/teamlink/internal/bridge"
	"github.com/teamlinkhq/teamlink/internal/linking"
	"github.com/teamlinkhq/teamlink/internal/message"
	"github.com/teamlinkhq/teamlink/internal/timeline"
)

// httpError maps service sentinels onto HTTP status codes. Anything
// unmapped surfaces as a 500 through echo's default handling.
func httpError(err error) error {
	switch {
	case errors.Is(err, area.ErrNotFound),
		errors.Is(err, message.ErrNotFound),
		errors.Is(err, attachment.ErrNotFound),
		errors.Is(err, attachment.ErrUploadNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, area.ErrNotAMember),
		errors.Is(err, message.ErrNotAuthor),
		errors.Is(err, attachment.ErrNotUploader):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, linking.ErrAreaAlreadyLinked),
		errors.Is(err, linking.ErrGroupAlreadyLinked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, linking.ErrNotLinked):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, attachment.ErrTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, timeline.ErrEmptyBody),
		errors.Is(err, timeline.ErrBodyTooLong),
		errors.Is(err, message.ErrDeleted),
		errors.Is(err, bridge.ErrCodeInvalid),
		errors.Is(err, bridge.ErrCodeExpired),
		errors.Is(err, attachment.ErrSizeExceeded),
		errors.Is(err, attachment.ErrSizeMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}
