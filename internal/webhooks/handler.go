package webhooks

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classdeck/recordings-backend/internal/models"
	"github.com/classdeck/recordings-backend/internal/pipeline"
	"github.com/classdeck/recordings-backend/internal/zoom"
	"github.com/classdeck/recordings-backend/pkg/response"
)

// AuditStore persists the webhook event log.
type AuditStore interface {
	Insert(ctx context.Context, ev *models.WebhookEvent) error
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

// Admitter runs admitted meetings into the recording registry.
type Admitter interface {
	AdmitMeeting(ctx context.Context, meeting *zoom.Meeting, downloadToken string) (pipeline.AdmitResult, error)
}

// Handler receives provider webhooks.
type Handler struct {
	secret string
	audit  AuditStore
	admit  Admitter
	logger *zap.Logger
}

// NewHandler creates a webhooks handler. secret is the provider webhook
// secret; empty disables signature verification.
func NewHandler(secret string, audit AuditStore, admit Admitter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{secret: secret, audit: audit, admit: admit, logger: logger}
}

// HandleZoomWebhook handles POST /webhooks/zoom. Validation handshakes are
// answered immediately; real events are verified, audited, filtered, and
// admitted. Heavy media work never happens here.
func (h *Handler) HandleZoomWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "unreadable request body")
		return
	}

	var env zoom.WebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.logger.Warn("webhook payload is not valid JSON", zap.Error(err))
		response.BadRequest(c, "invalid JSON payload")
		return
	}

	if env.Challenge != "" {
		c.JSON(200, gin.H{"challenge": env.Challenge})
		return
	}
	if env.Payload.PlainToken != "" && (env.Event == zoom.EventURLValidation || env.Event == "") {
		c.JSON(200, gin.H{
			"plainToken":     env.Payload.PlainToken,
			"encryptedToken": zoom.HashValidationToken(h.secret, env.Payload.PlainToken),
		})
		return
	}

	if h.secret != "" {
		ts := c.GetHeader("x-zm-request-timestamp")
		sig := c.GetHeader("x-zm-signature")
		if !zoom.VerifyWebhookSignature(h.secret, ts, body, sig) {
			h.logger.Warn("webhook signature mismatch",
				zap.String("event", env.Event),
				zap.String("timestamp", ts),
				zap.String("remote_addr", c.ClientIP()))
			response.Unauthorized(c, "invalid webhook signature")
			return
		}
	}

	ev := &models.WebhookEvent{
		EventType: env.Event,
		Payload:   json.RawMessage(body),
	}
	if env.Payload.Object != nil {
		ev.MeetingID = env.Payload.Object.ID.String()
		ev.HostEmail = env.Payload.Object.HostEmail
	}
	if err := h.audit.Insert(c.Request.Context(), ev); err != nil {
		h.logger.Error("failed to persist webhook event", zap.Error(err))
		response.Internal(c, "failed to record event")
		return
	}

	if env.Event != zoom.EventRecordingCompleted {
		h.logger.Debug("ignoring webhook event", zap.String("event", env.Event))
		h.markProcessed(c.Request.Context(), ev.ID)
		response.OK(c, gin.H{"message": "event ignored"})
		return
	}

	if env.Payload.Object == nil {
		h.logger.Warn("recording.completed event without payload object")
		response.BadRequest(c, "missing payload object")
		return
	}

	res, err := h.admit.AdmitMeeting(c.Request.Context(), env.Payload.Object, env.DownloadToken)
	if err != nil {
		h.logger.Error("webhook admission failed",
			zap.String("meeting_id", env.Payload.Object.ID.String()),
			zap.Error(err))
		response.Internal(c, "failed to process recordings")
		return
	}

	h.markProcessed(c.Request.Context(), ev.ID)
	h.logger.Info("webhook processed",
		zap.String("meeting_id", env.Payload.Object.ID.String()),
		zap.Int("created", res.Created),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("skipped", res.Skipped))
	response.OK(c, res)
}

// markProcessed flips the audit flag; the event itself has already been
// handled, so a failure here only logs.
func (h *Handler) markProcessed(ctx context.Context, id uuid.UUID) {
	if err := h.audit.MarkProcessed(ctx, id); err != nil {
		h.logger.Warn("failed to mark webhook event processed",
			zap.String("event_id", id.String()),
			zap.Error(err))
	}
}
