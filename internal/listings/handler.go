package listings

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/greenway-eco/backend/internal/middleware"
	"github.com/greenway-eco/backend/pkg/response"
	"github.com/greenway-eco/backend/pkg/storage"
)

// ImageUploader stores listing images and returns their public URL.
type ImageUploader interface {
	UploadImage(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// Handler handles listing HTTP endpoints.
type Handler struct {
	manager  *Manager
	uploader ImageUploader
	logger   *zap.Logger
}

// NewHandler creates a listing handler. uploader may be nil when image
// storage is not configured.
func NewHandler(manager *Manager, uploader ImageUploader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, uploader: uploader, logger: logger}
}

// List handles GET /listings. ?owner_id= narrows to one owner.
func (h *Handler) List(c *gin.Context) {
	list, err := h.manager.List(c.Request.Context(), c.Query("owner_id"))
	if err != nil {
		h.logger.Error("list listings failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /listings/:id.
func (h *Handler) Get(c *gin.Context) {
	l, err := h.manager.Read(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, l)
}

// Create handles POST /listings (owner only).
func (h *Handler) Create(c *gin.Context) {
	var req Fields
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	caller, _ := middleware.CurrentIdentity(c)
	id, err := h.manager.Create(c.Request.Context(), caller.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	l, err := h.manager.Read(c.Request.Context(), id)
	if err != nil {
		response.Created(c, gin.H{"id": id})
		return
	}
	response.Created(c, l)
}

// Update handles PATCH /listings/:id (owner of the listing or admin).
func (h *Handler) Update(c *gin.Context) {
	var req Patch
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	caller, _ := middleware.CurrentIdentity(c)
	l, err := h.manager.Update(c.Request.Context(), c.Param("id"), caller.UserID, caller.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, l)
}

// Delete handles DELETE /listings/:id (owner of the listing or admin).
func (h *Handler) Delete(c *gin.Context) {
	caller, _ := middleware.CurrentIdentity(c)
	if err := h.manager.Delete(c.Request.Context(), c.Param("id"), caller.UserID, caller.Role); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UploadImage handles POST /listings/images (multipart, form field "file").
// The returned URL goes into a listing's images.
func (h *Handler) UploadImage(c *gin.Context) {
	if h.uploader == nil {
		response.ServiceUnavailable(c, "image storage is not configured")
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file (form field: file)")
		return
	}
	if file.Size > storage.MaxImageFileSize {
		response.BadRequest(c, "file size exceeds 8MB limit")
		return
	}
	if !storage.ValidateImageType(file.Header.Get("Content-Type"), file.Filename) {
		response.BadRequest(c, "invalid file type: only jpg, png and webp images allowed")
		return
	}

	contentType := storage.ContentTypeForFilename(file.Filename)
	if ct := file.Header.Get("Content-Type"); ct != "" {
		if _, ok := storage.AllowedImageTypes[ct]; ok {
			contentType = ct
		}
	}
	caller, _ := middleware.CurrentIdentity(c)
	key := storage.ListingImageKey(caller.UserID, file.Filename, contentType)

	rc, err := file.Open()
	if err != nil {
		response.Internal(c, "failed to read upload")
		return
	}
	defer rc.Close()

	url, err := h.uploader.UploadImage(c.Request.Context(), key, contentType, rc, file.Size)
	if err != nil {
		h.logger.Error("S3 upload failed", zap.Error(err), zap.String("key", key))
		response.ServiceUnavailable(c, "failed to upload image")
		return
	}
	response.Created(c, gin.H{"url": url, "key": key})
}
