package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fancify-backend/internal/middleware"
	"fancify-backend/internal/models"
	"fancify-backend/internal/session"
)

type echoCompleter struct {
	reply string
	err   error
	last  models.CompletionRequest
}

func (e *echoCompleter) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	e.last = req
	return e.reply, e.err
}

type stubLister struct {
	records []*models.TransformRecord
	err     error
}

func (s stubLister) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.TransformRecord, error) {
	return s.records, s.err
}

func newTestHandler(t *testing.T, completer session.Completer, lister TransformLister) (*SessionHandler, *session.Manager) {
	t.Helper()
	m := session.NewManager(session.Deps{Completer: completer}, time.Hour)
	auth := middleware.NewJWTAuth("test-secret", time.Hour)
	return NewSessionHandler(m, auth, lister, zap.NewNop()), m
}

func sessionRequest(method, target string, id uuid.UUID, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(context.WithValue(req.Context(), middleware.SessionIDKey, id))
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func TestSessionHandler_Create(t *testing.T) {
	h, m := newTestHandler(t, &echoCompleter{}, nil)

	rr := httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))

	require.Equal(t, http.StatusCreated, rr.Code)
	resp := decodeBody[models.CreateSessionResponse](t, rr)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, 5, resp.Snapshot.Rating)
	assert.Equal(t, "Transform", resp.Snapshot.TriggerLabel)
	assert.Equal(t, 1, m.Len())

	id, err := middleware.NewJWTAuth("test-secret", time.Hour).ParseSessionToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.Snapshot.SessionID, id)
}

func TestSessionHandler_UnknownSession(t *testing.T) {
	h, _ := newTestHandler(t, &echoCompleter{}, nil)

	rr := httptest.NewRecorder()
	h.Get(rr, sessionRequest(http.MethodGet, "/api/v1/session", uuid.New(), nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	resp := decodeBody[models.ErrorResponse](t, rr)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestSessionHandler_SetRating(t *testing.T) {
	h, m := newTestHandler(t, &echoCompleter{}, nil)
	c := m.Create()

	rr := httptest.NewRecorder()
	h.SetRating(rr, sessionRequest(http.MethodPut, "/api/v1/session/rating", c.ID(), models.SetRatingRequest{Rating: 8}))

	require.Equal(t, http.StatusOK, rr.Code)
	snap := decodeBody[models.Snapshot](t, rr)
	assert.Equal(t, 8, snap.Rating)
	assert.Equal(t, []bool{true, true, true, true, true, true, true, true, false, false}, snap.Stars)
}

func TestSessionHandler_SetRatingOutOfRange(t *testing.T) {
	h, m := newTestHandler(t, &echoCompleter{}, nil)
	c := m.Create()

	for _, rating := range []int{0, 11, -3} {
		rr := httptest.NewRecorder()
		h.SetRating(rr, sessionRequest(http.MethodPut, "/api/v1/session/rating", c.ID(), models.SetRatingRequest{Rating: rating}))

		assert.Equal(t, http.StatusBadRequest, rr.Code, "rating %d", rating)
		resp := decodeBody[models.ErrorResponse](t, rr)
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
		assert.Contains(t, resp.Error.Fields, "rating")
	}
	assert.Equal(t, 5, c.Snapshot().Rating)
}

func TestSessionHandler_StepRating(t *testing.T) {
	h, m := newTestHandler(t, &echoCompleter{}, nil)
	c := m.Create()

	rr := httptest.NewRecorder()
	h.StepRating(rr, sessionRequest(http.MethodPost, "/api/v1/session/rating/step", c.ID(), models.StepRatingRequest{Direction: "right"}))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 6, decodeBody[models.Snapshot](t, rr).Rating)

	rr = httptest.NewRecorder()
	h.StepRating(rr, sessionRequest(http.MethodPost, "/api/v1/session/rating/step", c.ID(), models.StepRatingRequest{Direction: "up"}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSessionHandler_Transform(t *testing.T) {
	completer := &echoCompleter{reply: "I adore tacos."}
	h, m := newTestHandler(t, completer, nil)
	c := m.Create()
	c.OnRatingChange(context.Background(), 2)

	rr := httptest.NewRecorder()
	h.Transform(rr, sessionRequest(http.MethodPost, "/api/v1/session/transform", c.ID(), models.TransformRequest{Text: "i love tacos"}))

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeBody[models.TransformResponse](t, rr)
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, "I adore tacos.", resp.Output)
	assert.False(t, resp.Snapshot.Busy)
	assert.True(t, resp.Snapshot.OutputVisible)
	assert.Contains(t, completer.last.System, "Make the sentence simpler and more direct.")
}

func TestSessionHandler_TransformFailureShowsFallback(t *testing.T) {
	h, m := newTestHandler(t, &echoCompleter{err: errors.New("quota exceeded")}, nil)
	c := m.Create()

	rr := httptest.NewRecorder()
	h.Transform(rr, sessionRequest(http.MethodPost, "/api/v1/session/transform", c.ID(), models.TransformRequest{Text: "hello"}))

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeBody[models.TransformResponse](t, rr)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, session.FallbackMessage, resp.Output)
}

func TestSessionHandler_TransformIgnoresBlankInput(t *testing.T) {
	completer := &echoCompleter{reply: "unused"}
	h, m := newTestHandler(t, completer, nil)
	c := m.Create()

	rr := httptest.NewRecorder()
	h.Transform(rr, sessionRequest(http.MethodPost, "/api/v1/session/transform", c.ID(), models.TransformRequest{Text: "   "}))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ignored", decodeBody[models.TransformResponse](t, rr).Status)
	assert.Empty(t, c.History())
}

func TestSessionHandler_TransformBadBody(t *testing.T) {
	h, m := newTestHandler(t, &echoCompleter{}, nil)
	c := m.Create()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/transform", strings.NewReader("{not json"))
	req = req.WithContext(context.WithValue(req.Context(), middleware.SessionIDKey, c.ID()))
	rr := httptest.NewRecorder()
	h.Transform(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSessionHandler_EditCopyClear(t *testing.T) {
	h, m := newTestHandler(t, &echoCompleter{reply: "A most splendid day."}, nil)
	c := m.Create()
	c.OnTransformRequested(context.Background(), "nice day")

	rr := httptest.NewRecorder()
	h.Copy(rr, sessionRequest(http.MethodPost, "/api/v1/session/copy", c.ID(), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "A most splendid day.", decodeBody[models.CopyResponse](t, rr).Text)

	rr = httptest.NewRecorder()
	h.Edit(rr, sessionRequest(http.MethodPost, "/api/v1/session/edit", c.ID(), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	snap := decodeBody[models.Snapshot](t, rr)
	assert.Equal(t, "A most splendid day.", snap.Input)
	assert.False(t, snap.OutputVisible)

	rr = httptest.NewRecorder()
	h.Clear(rr, sessionRequest(http.MethodPost, "/api/v1/session/clear", c.ID(), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	snap = decodeBody[models.Snapshot](t, rr)
	assert.Empty(t, snap.Input)
	assert.False(t, snap.OutputVisible)
}

func TestSessionHandler_History(t *testing.T) {
	h, m := newTestHandler(t, &echoCompleter{reply: "Greetings."}, nil)
	c := m.Create()
	c.OnTransformRequested(context.Background(), "hi")

	rr := httptest.NewRecorder()
	h.History(rr, sessionRequest(http.MethodGet, "/api/v1/session/history", c.ID(), nil))

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeBody[models.HistoryResponse](t, rr)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, models.RoleUser, resp.Messages[0].Role)
	assert.Equal(t, "hi", resp.Messages[0].Content)
	assert.Equal(t, models.RoleAssistant, resp.Messages[1].Role)
	assert.Equal(t, "Greetings.", resp.Messages[1].Content)
}

func TestSessionHandler_Transforms(t *testing.T) {
	id := uuid.New()

	t.Run("disabled", func(t *testing.T) {
		h, _ := newTestHandler(t, &echoCompleter{}, nil)
		rr := httptest.NewRecorder()
		h.Transforms(rr, sessionRequest(http.MethodGet, "/api/v1/session/transforms", id, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("empty", func(t *testing.T) {
		h, _ := newTestHandler(t, &echoCompleter{}, stubLister{})
		rr := httptest.NewRecorder()
		h.Transforms(rr, sessionRequest(http.MethodGet, "/api/v1/session/transforms", id, nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"transforms":[]}`, rr.Body.String())
	})

	t.Run("error", func(t *testing.T) {
		h, _ := newTestHandler(t, &echoCompleter{}, stubLister{err: errors.New("db down")})
		rr := httptest.NewRecorder()
		h.Transforms(rr, sessionRequest(http.MethodGet, "/api/v1/session/transforms", id, nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("records", func(t *testing.T) {
		lister := stubLister{records: []*models.TransformRecord{{SessionID: id, Rating: 7, Input: "x", Output: "y"}}}
		h, _ := newTestHandler(t, &echoCompleter{}, lister)
		rr := httptest.NewRecorder()
		h.Transforms(rr, sessionRequest(http.MethodGet, "/api/v1/session/transforms?limit=5", id, nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			Transforms []models.TransformRecord `json:"transforms"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		require.Len(t, resp.Transforms, 1)
		assert.Equal(t, 7, resp.Transforms[0].Rating)
	})
}
