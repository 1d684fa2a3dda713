package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classdeck/recordings-backend/internal/catalog"
	"github.com/classdeck/recordings-backend/internal/models"
	"github.com/classdeck/recordings-backend/internal/thumbnail"
)

type recordedTransition struct {
	from, to string
	fields   models.TransitionFields
}

type procRegistry struct {
	transitions   []recordedTransition
	transitionErr map[string]error
	setVideoErr   error
	linked        []uuid.UUID
}

func (r *procRegistry) Transition(_ context.Context, id uuid.UUID, from, to string, fields models.TransitionFields) (*models.Recording, error) {
	if err := r.transitionErr[from+">"+to]; err != nil {
		return nil, err
	}
	r.transitions = append(r.transitions, recordedTransition{from: from, to: to, fields: fields})
	return &models.Recording{ID: id, Status: to}, nil
}

func (r *procRegistry) SetPlayableVideo(_ context.Context, _, videoID uuid.UUID) error {
	if r.setVideoErr != nil {
		return r.setVideoErr
	}
	r.linked = append(r.linked, videoID)
	return nil
}

type procDownloader struct {
	data  []byte
	err   error
	calls []string
}

func (d *procDownloader) Download(_ context.Context, downloadURL, downloadToken string) ([]byte, error) {
	d.calls = append(d.calls, downloadURL+"|"+downloadToken)
	return d.data, d.err
}

type uploadCall struct {
	key         string
	contentType string
	size        int64
}

type procStore struct {
	failPrefix string
	failAll    bool
	uploads    []uploadCall
}

func (s *procStore) Upload(_ context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error) {
	if s.failAll || (s.failPrefix != "" && strings.HasPrefix(key, s.failPrefix)) {
		return "", errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.uploads = append(s.uploads, uploadCall{key: key, contentType: contentType, size: int64(len(data))})
	return "https://cdn.example.com/" + key, nil
}

type procThumbs struct {
	res *thumbnail.Result
	err error
}

func (p *procThumbs) Extract(_ context.Context, _ []byte) (*thumbnail.Result, error) {
	return p.res, p.err
}

type procPublisher struct {
	err    error
	inputs []catalog.PublishInput
	video  *models.PlayableVideo
}

func (p *procPublisher) Publish(_ context.Context, _ *models.Recording, in catalog.PublishInput) (*models.PlayableVideo, error) {
	p.inputs = append(p.inputs, in)
	if p.err != nil {
		return nil, p.err
	}
	if p.video == nil {
		p.video = &models.PlayableVideo{ID: uuid.New()}
	}
	return p.video, nil
}

type procRig struct {
	registry   *procRegistry
	downloader *procDownloader
	store      *procStore
	thumbs     *procThumbs
	publisher  *procPublisher
	proc       *Processor
}

func newProcRig() *procRig {
	rig := &procRig{
		registry:   &procRegistry{transitionErr: map[string]error{}},
		downloader: &procDownloader{data: []byte("mp4-bytes")},
		store:      &procStore{},
		thumbs:     &procThumbs{res: &thumbnail.Result{JPEG: []byte("jpeg-bytes"), Duration: 3312.6}},
		publisher:  &procPublisher{},
	}
	rig.proc = NewProcessor(rig.registry, rig.downloader, rig.store, rig.thumbs, rig.publisher, nil)
	return rig
}

func claimedRecording() *models.Recording {
	start := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	return &models.Recording{
		ID:                  uuid.New(),
		ProviderMeetingID:   "987654",
		ProviderRecordingID: "file-video",
		FileType:            "mp4",
		DownloadURL:         "https://zoom.example/rec/video",
		DownloadToken:       "dl-tok",
		Status:              models.RecordingStatusProcessing,
		StartTime:           &start,
		DurationSeconds:     3300,
	}
}

func lastTransition(t *testing.T, r *procRegistry) recordedTransition {
	t.Helper()
	require.NotEmpty(t, r.transitions)
	return r.transitions[len(r.transitions)-1]
}

func TestProcess(t *testing.T) {
	rig := newProcRig()
	rec := claimedRecording()

	require.NoError(t, rig.proc.Process(context.Background(), rec))

	assert.Equal(t, []string{"https://zoom.example/rec/video|dl-tok"}, rig.downloader.calls)

	require.Len(t, rig.store.uploads, 2)
	assert.Equal(t, "zoom_recordings/20240315_090000_file-video.mp4", rig.store.uploads[0].key)
	assert.Equal(t, "video/mp4", rig.store.uploads[0].contentType)
	assert.Equal(t, int64(len("mp4-bytes")), rig.store.uploads[0].size)
	assert.Equal(t, "media/video_thumbnails/20240315_090000_file-video_thumb.jpg", rig.store.uploads[1].key)
	assert.Equal(t, "image/jpeg", rig.store.uploads[1].contentType)

	require.Len(t, rig.publisher.inputs, 1)
	in := rig.publisher.inputs[0]
	assert.Equal(t, "https://cdn.example.com/zoom_recordings/20240315_090000_file-video.mp4", in.VideoURL)
	assert.Equal(t, 3313, in.DurationSeconds, "probed duration wins over the registry estimate")
	assert.Equal(t, "https://cdn.example.com/media/video_thumbnails/20240315_090000_file-video_thumb.jpg", in.ThumbnailURL)

	assert.Equal(t, []uuid.UUID{rig.publisher.video.ID}, rig.registry.linked)

	final := lastTransition(t, rig.registry)
	assert.Equal(t, models.RecordingStatusProcessing, final.from)
	assert.Equal(t, models.RecordingStatusCompleted, final.to)
	assert.Equal(t, "zoom_recordings/20240315_090000_file-video.mp4", final.fields.StorageKey)
	assert.Equal(t, in.VideoURL, final.fields.StorageURL)
}

func TestProcessWithoutThumbnailer(t *testing.T) {
	rig := newProcRig()
	rig.proc = NewProcessor(rig.registry, rig.downloader, rig.store, nil, rig.publisher, nil)
	rec := claimedRecording()

	require.NoError(t, rig.proc.Process(context.Background(), rec))
	assert.Len(t, rig.store.uploads, 1, "no thumbnail upload without an extractor")
	require.Len(t, rig.publisher.inputs, 1)
	assert.Empty(t, rig.publisher.inputs[0].ThumbnailURL)
	assert.Equal(t, 3300, rig.publisher.inputs[0].DurationSeconds)
}

func TestProcessNoDownloadURL(t *testing.T) {
	rig := newProcRig()
	rec := claimedRecording()
	rec.DownloadURL = ""

	err := rig.proc.Process(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no download url")

	final := lastTransition(t, rig.registry)
	assert.Equal(t, models.RecordingStatusFailed, final.to)
	assert.Equal(t, "recording has no download url", final.fields.ErrorMessage)
}

func TestProcessDownloadFailure(t *testing.T) {
	rig := newProcRig()
	rig.downloader.err = errors.New("download failed with status 404 (auth oauth bearer)")

	err := rig.proc.Process(context.Background(), claimedRecording())
	require.Error(t, err)

	final := lastTransition(t, rig.registry)
	assert.Equal(t, models.RecordingStatusFailed, final.to)
	assert.Contains(t, final.fields.ErrorMessage, "download failed")
	assert.Empty(t, rig.store.uploads)
}

func TestProcessEmptyDownload(t *testing.T) {
	rig := newProcRig()
	rig.downloader.data = nil

	err := rig.proc.Process(context.Background(), claimedRecording())
	require.Error(t, err)
	assert.Contains(t, lastTransition(t, rig.registry).fields.ErrorMessage, "no data")
}

func TestProcessUploadFailure(t *testing.T) {
	rig := newProcRig()
	rig.store.failAll = true

	err := rig.proc.Process(context.Background(), claimedRecording())
	require.Error(t, err)

	final := lastTransition(t, rig.registry)
	assert.Equal(t, models.RecordingStatusFailed, final.to)
	assert.Contains(t, final.fields.ErrorMessage, "upload failed")
}

func TestProcessThumbnailFailureIsNonFatal(t *testing.T) {
	rig := newProcRig()
	rig.thumbs.res = nil
	rig.thumbs.err = errors.New("ffmpeg frame grab: exit status 1")

	require.NoError(t, rig.proc.Process(context.Background(), claimedRecording()))

	require.Len(t, rig.publisher.inputs, 1)
	assert.Empty(t, rig.publisher.inputs[0].ThumbnailURL)
	assert.Equal(t, 3300, rig.publisher.inputs[0].DurationSeconds)
	assert.Equal(t, models.RecordingStatusCompleted, lastTransition(t, rig.registry).to)
}

func TestProcessThumbnailUploadFailureIsNonFatal(t *testing.T) {
	rig := newProcRig()
	rig.store.failPrefix = "media/video_thumbnails/"

	require.NoError(t, rig.proc.Process(context.Background(), claimedRecording()))

	require.Len(t, rig.publisher.inputs, 1)
	assert.Empty(t, rig.publisher.inputs[0].ThumbnailURL)
	assert.Equal(t, 3313, rig.publisher.inputs[0].DurationSeconds, "the probed duration survives a lost thumbnail")
	assert.Equal(t, models.RecordingStatusCompleted, lastTransition(t, rig.registry).to)
}

func TestProcessPublishFailure(t *testing.T) {
	rig := newProcRig()
	rig.publisher.err = errors.New("fallback category \"Unassigned Recordings\" is not provisioned")

	err := rig.proc.Process(context.Background(), claimedRecording())
	require.Error(t, err)

	final := lastTransition(t, rig.registry)
	assert.Equal(t, models.RecordingStatusFailed, final.to)
	assert.Contains(t, final.fields.ErrorMessage, "publish failed")
}

func TestProcessLinkFailure(t *testing.T) {
	rig := newProcRig()
	rig.registry.setVideoErr = errors.New("db down")

	err := rig.proc.Process(context.Background(), claimedRecording())
	require.Error(t, err)
	assert.Contains(t, lastTransition(t, rig.registry).fields.ErrorMessage, "link playable video")
}

func TestProcessCompletionRace(t *testing.T) {
	rig := newProcRig()
	rig.registry.transitionErr[models.RecordingStatusProcessing+">"+models.RecordingStatusCompleted] = models.ErrStatusConflict

	err := rig.proc.Process(context.Background(), claimedRecording())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "complete recording")
	assert.ErrorIs(t, err, models.ErrStatusConflict)
}
