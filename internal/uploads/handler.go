// Package uploads exposes the browser-direct multipart upload protocol
// for the admin surface: the server initiates and signs, the browser PUTs
// parts straight to R2, the server completes or aborts.
package uploads

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classdeck/recordings-backend/pkg/response"
	"github.com/classdeck/recordings-backend/pkg/storage"
)

// Handler handles the multipart upload endpoints.
type Handler struct {
	store  *storage.Store
	logger *zap.Logger
}

// NewHandler creates an uploads handler. store may be nil when object
// storage is not configured; every endpoint then returns an error.
func NewHandler(store *storage.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// InitiateRequest is the body for POST /uploads/multipart/initiate.
type InitiateRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size" binding:"required,gt=0"`
}

// SignPartRequest is the body for POST /uploads/multipart/sign-part.
type SignPartRequest struct {
	Key        string `json:"key" binding:"required"`
	UploadID   string `json:"upload_id" binding:"required"`
	PartNumber int32  `json:"part_number" binding:"required,gte=1,lte=10000"`
}

// CompleteRequest is the body for POST /uploads/multipart/complete.
type CompleteRequest struct {
	Key      string                  `json:"key" binding:"required"`
	UploadID string                  `json:"upload_id" binding:"required"`
	Parts    []storage.CompletedPart `json:"parts" binding:"required,min=1,dive"`
}

// AbortRequest is the body for POST /uploads/multipart/abort.
type AbortRequest struct {
	Key      string `json:"key" binding:"required"`
	UploadID string `json:"upload_id" binding:"required"`
}

// Initiate handles POST /uploads/multipart/initiate.
func (h *Handler) Initiate(c *gin.Context) {
	if h.store == nil {
		response.Internal(c, "object storage is not configured")
		return
	}
	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.FileSize > storage.MaxUploadBytes {
		response.BadRequest(c, "file size exceeds 4GB limit")
		return
	}
	if !storage.ValidateUploadType(req.ContentType, req.Filename) {
		response.BadRequest(c, "invalid file type: only mp4/mov video and jpg, png, webp images allowed")
		return
	}

	contentType := storage.ContentTypeForFilename(req.Filename)
	if req.ContentType != "" {
		if _, ok := storage.AllowedUploadTypes[strings.ToLower(req.ContentType)]; ok {
			contentType = strings.ToLower(req.ContentType)
		}
	}

	key := storage.UploadKey(time.Now(), req.Filename)
	uploadID, err := h.store.InitiateMultipart(c.Request.Context(), key, contentType)
	if err != nil {
		h.logger.Error("initiate multipart upload failed", zap.Error(err), zap.String("key", key))
		response.Internal(c, "could not start upload")
		return
	}

	h.logger.Info("multipart upload initiated",
		zap.String("key", key),
		zap.String("upload_id", uploadID),
		zap.Int64("file_size", req.FileSize))
	response.OK(c, gin.H{
		"key":                 key,
		"upload_id":           uploadID,
		"content_type":        contentType,
		"part_url_expires_in": int(h.store.PresignExpire().Seconds()),
	})
}

// SignPart handles POST /uploads/multipart/sign-part.
func (h *Handler) SignPart(c *gin.Context) {
	if h.store == nil {
		response.Internal(c, "object storage is not configured")
		return
	}
	var req SignPartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !validUploadKey(req.Key) {
		response.BadRequest(c, "invalid upload key")
		return
	}

	url, err := h.store.PresignPart(c.Request.Context(), req.Key, req.UploadID, req.PartNumber)
	if err != nil {
		h.logger.Error("presign part failed", zap.Error(err),
			zap.String("key", req.Key), zap.Int32("part_number", req.PartNumber))
		response.Internal(c, "could not sign part URL")
		return
	}

	response.OK(c, gin.H{
		"url":        url,
		"expires_in": int(h.store.PresignExpire().Seconds()),
	})
}

// Complete handles POST /uploads/multipart/complete.
func (h *Handler) Complete(c *gin.Context) {
	if h.store == nil {
		response.Internal(c, "object storage is not configured")
		return
	}
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !validUploadKey(req.Key) {
		response.BadRequest(c, "invalid upload key")
		return
	}

	url, err := h.store.CompleteMultipart(c.Request.Context(), req.Key, req.UploadID, req.Parts)
	if err != nil {
		h.logger.Error("complete multipart upload failed", zap.Error(err),
			zap.String("key", req.Key), zap.Int("parts", len(req.Parts)))
		response.Internal(c, "could not complete upload")
		return
	}

	h.logger.Info("multipart upload completed",
		zap.String("key", req.Key), zap.Int("parts", len(req.Parts)))
	response.OK(c, gin.H{
		"key": req.Key,
		"url": url,
	})
}

// Abort handles POST /uploads/multipart/abort.
func (h *Handler) Abort(c *gin.Context) {
	if h.store == nil {
		response.Internal(c, "object storage is not configured")
		return
	}
	var req AbortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !validUploadKey(req.Key) {
		response.BadRequest(c, "invalid upload key")
		return
	}

	if err := h.store.AbortMultipart(c.Request.Context(), req.Key, req.UploadID); err != nil {
		h.logger.Error("abort multipart upload failed", zap.Error(err), zap.String("key", req.Key))
		response.Internal(c, "could not abort upload")
		return
	}

	h.logger.Info("multipart upload aborted", zap.String("key", req.Key))
	response.OK(c, gin.H{"aborted": true})
}

// validUploadKey restricts sign/complete/abort to keys minted by Initiate.
func validUploadKey(key string) bool {
	return strings.HasPrefix(key, storage.FolderUploads+"/") && !strings.Contains(key, "..")
}
