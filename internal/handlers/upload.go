package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/teamlinkhq/teamlink/internal/area"
	"github.com/teamlinkhq/teamlink/internal/attachment"
	"github.com/teamlinkhq/teamlink/internal/auth"
)

// UploadHandler drives the attachment upload lifecycle and serves
// committed payloads back.
type UploadHandler struct {
	uploader *attachment.Uploader
	recorder attachment.Recorder
	storage  attachment.Storage
	areas    *area.Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewUploadHandler(log *slog.Logger, uploader *attachment.Uploader, recorder attachment.Recorder, storage attachment.Storage, areas *area.Service) *UploadHandler {
	if log == nil {
		log = slog.Default()
	}
	return &UploadHandler{
		uploader: uploader,
		recorder: recorder,
		storage:  storage,
		areas:    areas,
		validate: validator.New(),
		logger:   log.With(slog.String("handler", "upload")),
	}
}

func (h *UploadHandler) Register(e *echo.Echo) {
	e.POST("/areas/:area_id/uploads", h.begin)
	e.PUT("/uploads/:upload_id", h.write)
	e.GET("/uploads/:upload_id/progress", h.progress)
	e.POST("/uploads/:upload_id/commit", h.commit)
	e.DELETE("/uploads/:upload_id", h.abort)
	e.GET("/areas/:area_id/attachments/:attachment_id", h.download)
}

type beginUploadRequest struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required,max=255"`
	SizeBytes   int64  `json:"size_bytes" validate:"required,gt=0"`
}

type beginUploadResponse struct {
	UploadID string `json:"upload_id"`
}

func (h *UploadHandler) begin(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	areaID := c.Param("area_id")
	if _, err := h.areas.RoleOf(c.Request().Context(), areaID, userID); err != nil {
		return httpError(err)
	}
	var req beginUploadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	uploadID, err := h.uploader.Begin(areaID, userID, req.Filename, req.ContentType, req.SizeBytes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, beginUploadResponse{UploadID: uploadID})
}

func (h *UploadHandler) write(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	progress, err := h.uploader.Write(c.Param("upload_id"), userID, c.Request().Body)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, progress)
}

func (h *UploadHandler) progress(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	progress, err := h.uploader.Progress(c.Param("upload_id"), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, progress)
}

func (h *UploadHandler) commit(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	att, err := h.uploader.Commit(c.Request().Context(), c.Param("upload_id"), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, att)
}

func (h *UploadHandler) abort(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	if err := h.uploader.Abort(c.Param("upload_id"), userID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *UploadHandler) download(c echo.Context) error {
	userID, err := auth.UserIDFromContext(c)
	if err != nil {
		return err
	}
	areaID := c.Param("area_id")
	ctx := c.Request().Context()
	if _, err := h.areas.RoleOf(ctx, areaID, userID); err != nil {
		return httpError(err)
	}
	att, err := h.recorder.Get(ctx, areaID, c.Param("attachment_id"))
	if err != nil {
		return httpError(err)
	}
	rc, err := h.storage.Open(att.StorageKey)
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()
	return c.Stream(http.StatusOK, att.ContentType, rc)
}
