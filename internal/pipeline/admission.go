package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classdeck/recordings-backend/internal/models"
	"github.com/classdeck/recordings-backend/internal/zoom"
)

// HostChecker answers whether a meeting host's recordings are admitted.
type HostChecker interface {
	IsAllowed(ctx context.Context, email string) (bool, error)
}

// SessionResolver looks up the live session a meeting belongs to, if any.
type SessionResolver interface {
	GetLiveSessionByProviderMeetingID(ctx context.Context, providerMeetingID string) (*models.LiveSession, error)
}

// RecordingCreator registers new recordings. Create reports false for
// duplicates instead of an error.
type RecordingCreator interface {
	Create(ctx context.Context, rec *models.Recording) (bool, error)
}

// Enqueuer nudges the worker pool about a new pending recording.
type Enqueuer interface {
	EnqueueProcessRecording(ctx context.Context, recordingID uuid.UUID) error
}

// AdmitResult summarizes one meeting's pass through admission.
type AdmitResult struct {
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

func (r *AdmitResult) add(other AdmitResult) {
	r.Created += other.Created
	r.Duplicates += other.Duplicates
	r.Skipped += other.Skipped
}

// Admission is the shared intake path for recordings, used by both the
// webhook handler and the date-range sync: host filter, live-session
// resolution, idempotent registry create, queue nudge.
type Admission struct {
	hosts    HostChecker
	sessions SessionResolver
	registry RecordingCreator
	queue    Enqueuer
	logger   *zap.Logger
}

// NewAdmission creates the admission path.
func NewAdmission(hosts HostChecker, sessions SessionResolver, registry RecordingCreator, queue Enqueuer, logger *zap.Logger) *Admission {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Admission{hosts: hosts, sessions: sessions, registry: registry, queue: queue, logger: logger}
}

// AdmitMeeting runs every playable video file of a meeting through
// admission. Host rejections, non-video files, and duplicates are counted,
// not errors; the returned error means a transient failure and the caller
// should let the provider or sync retry the whole meeting (duplicates make
// the retry safe).
func (a *Admission) AdmitMeeting(ctx context.Context, m *zoom.Meeting, downloadToken string) (AdmitResult, error) {
	var res AdmitResult

	var videos []zoom.RecordingFile
	for _, f := range m.RecordingFiles {
		if f.IsVideo() {
			videos = append(videos, f)
		} else {
			res.Skipped++
		}
	}
	if len(videos) == 0 {
		return res, nil
	}

	allowed, err := a.hosts.IsAllowed(ctx, m.HostEmail)
	if err != nil {
		return res, fmt.Errorf("host check for %q: %w", m.HostEmail, err)
	}
	if !allowed {
		a.logger.Info("host not in allowlist, skipping recordings",
			zap.String("host_email", m.HostEmail),
			zap.String("meeting_id", m.ID.String()),
			zap.Int("files", len(videos)))
		res.Skipped += len(videos)
		return res, nil
	}

	var session *models.LiveSession
	if m.ID.String() != "" {
		session, err = a.sessions.GetLiveSessionByProviderMeetingID(ctx, m.ID.String())
		if err != nil {
			return res, fmt.Errorf("resolve live session for meeting %s: %w", m.ID, err)
		}
	}

	for _, f := range videos {
		rec := recordingFromFile(m, f, downloadToken, session)
		created, err := a.registry.Create(ctx, rec)
		if err != nil {
			return res, fmt.Errorf("create recording %s: %w", f.ID, err)
		}
		if !created {
			res.Duplicates++
			continue
		}
		res.Created++
		a.logger.Info("recording registered",
			zap.String("recording_id", rec.ID.String()),
			zap.String("provider_recording_id", rec.ProviderRecordingID),
			zap.String("meeting_id", rec.ProviderMeetingID),
			zap.String("host_email", rec.HostEmail))
		if err := a.queue.EnqueueProcessRecording(ctx, rec.ID); err != nil {
			// The queue is only a nudge; the backlog drain picks the row up.
			a.logger.Warn("enqueue failed, leaving recording for backlog drain",
				zap.String("recording_id", rec.ID.String()),
				zap.Error(err))
		}
	}
	return res, nil
}

// recordingFromFile maps one provider video file onto a pending Recording.
func recordingFromFile(m *zoom.Meeting, f zoom.RecordingFile, downloadToken string, session *models.LiveSession) *models.Recording {
	rec := &models.Recording{
		ProviderMeetingID:   m.ID.String(),
		ProviderRecordingID: f.ID,
		ProviderMeetingUUID: m.UUID,
		HostEmail:           strings.ToLower(strings.TrimSpace(m.HostEmail)),
		FileSizeBytes:       f.FileSize,
		FileType:            strings.ToLower(f.FileType),
		DownloadURL:         f.DownloadURL,
		DownloadToken:       downloadToken,
		Status:              models.RecordingStatusPending,
	}
	if !f.RecordingStart.IsZero() {
		t := f.RecordingStart
		rec.StartTime = &t
	}
	if !f.RecordingEnd.IsZero() {
		t := f.RecordingEnd
		rec.EndTime = &t
	}
	switch {
	case rec.StartTime != nil && rec.EndTime != nil:
		rec.DurationSeconds = int(rec.EndTime.Sub(*rec.StartTime).Seconds())
	case m.Duration > 0:
		rec.DurationSeconds = m.Duration * 60
	}
	if session != nil {
		id := session.ID
		rec.LiveSessionID = &id
	}
	return rec
}
