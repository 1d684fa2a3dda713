package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classdeck/recordings-backend/internal/models"
	"github.com/classdeck/recordings-backend/internal/pipeline"
	"github.com/classdeck/recordings-backend/internal/zoom"
)

const testWebhookSecret = "wh-secret"

type fakeAudit struct {
	insertErr error
	inserted  []*models.WebhookEvent
	processed []uuid.UUID
}

func (f *fakeAudit) Insert(_ context.Context, ev *models.WebhookEvent) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	ev.ID = uuid.New()
	f.inserted = append(f.inserted, ev)
	return nil
}

func (f *fakeAudit) MarkProcessed(_ context.Context, id uuid.UUID) error {
	f.processed = append(f.processed, id)
	return nil
}

type fakeAdmitter struct {
	res      pipeline.AdmitResult
	err      error
	meetings []*zoom.Meeting
	tokens   []string
}

func (f *fakeAdmitter) AdmitMeeting(_ context.Context, m *zoom.Meeting, token string) (pipeline.AdmitResult, error) {
	f.meetings = append(f.meetings, m)
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return pipeline.AdmitResult{}, f.err
	}
	return f.res, nil
}

func newWebhookRouter(secret string, audit *fakeAudit, admit *fakeAdmitter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/zoom", NewHandler(secret, audit, admit, nil).HandleZoomWebhook)
	return r
}

func postWebhook(r *gin.Engine, body []byte, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/zoom", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		ts := "1710000000000"
		req.Header.Set("x-zm-request-timestamp", ts)
		req.Header.Set("x-zm-signature", zoom.SignWebhook(secret, ts, body))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type webhookResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   string                 `json:"error"`
}

func decodeWebhookResponse(t *testing.T, w *httptest.ResponseRecorder) webhookResponse {
	t.Helper()
	var out webhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestWebhookChallengeEcho(t *testing.T) {
	audit := &fakeAudit{}
	r := newWebhookRouter(testWebhookSecret, audit, &fakeAdmitter{})

	w := postWebhook(r, []byte(`{"challenge":"abc123"}`), "")
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "abc123", out["challenge"])
	assert.Empty(t, audit.inserted, "handshakes are not audited")
}

func TestWebhookURLValidation(t *testing.T) {
	r := newWebhookRouter(testWebhookSecret, &fakeAudit{}, &fakeAdmitter{})

	body := []byte(`{"event":"endpoint.url_validation","payload":{"plainToken":"ptok-1"}}`)
	w := postWebhook(r, body, "")
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "ptok-1", out["plainToken"])
	assert.Equal(t, zoom.HashValidationToken(testWebhookSecret, "ptok-1"), out["encryptedToken"])
}

func TestWebhookRejectsInvalidJSON(t *testing.T) {
	r := newWebhookRouter(testWebhookSecret, &fakeAudit{}, &fakeAdmitter{})
	w := postWebhook(r, []byte(`{"event":`), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	audit := &fakeAudit{}
	r := newWebhookRouter(testWebhookSecret, audit, &fakeAdmitter{})

	body := []byte(`{"event":"recording.completed","payload":{"object":{"id":123}}}`)
	w := postWebhook(r, body, "wrong-secret")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, audit.inserted, "unverified events are not audited")
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	audit := &fakeAudit{}
	admit := &fakeAdmitter{}
	r := newWebhookRouter(testWebhookSecret, audit, admit)

	body := []byte(`{"event":"meeting.started","payload":{"object":{"id":555,"host_email":"h@x.y"}}}`)
	w := postWebhook(r, body, testWebhookSecret)
	require.Equal(t, http.StatusOK, w.Code)

	out := decodeWebhookResponse(t, w)
	assert.Equal(t, "event ignored", out.Data["message"])

	require.Len(t, audit.inserted, 1)
	assert.Equal(t, "meeting.started", audit.inserted[0].EventType)
	assert.Equal(t, "555", audit.inserted[0].MeetingID)
	assert.Len(t, audit.processed, 1)
	assert.Empty(t, admit.meetings)
}

func TestWebhookRecordingCompleted(t *testing.T) {
	audit := &fakeAudit{}
	admit := &fakeAdmitter{res: pipeline.AdmitResult{Created: 2, Duplicates: 1, Skipped: 3}}
	r := newWebhookRouter(testWebhookSecret, audit, admit)

	body := []byte(`{
		"event": "recording.completed",
		"download_token": "dl-tok",
		"payload": {"object": {
			"uuid": "u==1",
			"id": 987654,
			"host_email": "instructor@example.com",
			"recording_files": [{"id":"f1","file_type":"MP4","download_url":"https://z/rec"}]
		}}
	}`)
	w := postWebhook(r, body, testWebhookSecret)
	require.Equal(t, http.StatusOK, w.Code)

	out := decodeWebhookResponse(t, w)
	assert.True(t, out.Success)
	assert.Equal(t, float64(2), out.Data["created"])
	assert.Equal(t, float64(1), out.Data["duplicates"])
	assert.Equal(t, float64(3), out.Data["skipped"])

	require.Len(t, admit.meetings, 1)
	assert.Equal(t, "987654", admit.meetings[0].ID.String())
	assert.Equal(t, []string{"dl-tok"}, admit.tokens)

	require.Len(t, audit.inserted, 1)
	assert.Equal(t, "987654", audit.inserted[0].MeetingID)
	assert.Equal(t, "instructor@example.com", audit.inserted[0].HostEmail)
	assert.Len(t, audit.processed, 1)
}

func TestWebhookRecordingCompletedWithoutObject(t *testing.T) {
	audit := &fakeAudit{}
	r := newWebhookRouter(testWebhookSecret, audit, &fakeAdmitter{})

	body := []byte(`{"event":"recording.completed","payload":{}}`)
	w := postWebhook(r, body, testWebhookSecret)
	require.Equal(t, http.StatusBadRequest, w.Code)

	assert.Len(t, audit.inserted, 1, "malformed events still land in the audit log")
	assert.Empty(t, audit.processed)
}

func TestWebhookAuditInsertFailure(t *testing.T) {
	audit := &fakeAudit{insertErr: errors.New("db down")}
	r := newWebhookRouter(testWebhookSecret, audit, &fakeAdmitter{})

	body := []byte(`{"event":"recording.completed","payload":{"object":{"id":1}}}`)
	w := postWebhook(r, body, testWebhookSecret)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhookAdmissionFailure(t *testing.T) {
	audit := &fakeAudit{}
	admit := &fakeAdmitter{err: errors.New("db down")}
	r := newWebhookRouter(testWebhookSecret, audit, admit)

	body := []byte(`{"event":"recording.completed","payload":{"object":{"id":1}}}`)
	w := postWebhook(r, body, testWebhookSecret)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, audit.processed, "failed admissions stay unprocessed for replay")
}

func TestWebhookNoSecretSkipsVerification(t *testing.T) {
	audit := &fakeAudit{}
	admit := &fakeAdmitter{}
	r := newWebhookRouter("", audit, admit)

	body := []byte(`{"event":"recording.completed","payload":{"object":{"id":42}}}`)
	w := postWebhook(r, body, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, admit.meetings, 1)
}
