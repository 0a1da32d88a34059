package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fancify-backend/internal/middleware"
	"fancify-backend/internal/models"
	"fancify-backend/internal/services"
	"fancify-backend/internal/session"
)

// TokenIssuer signs the token a browser uses to address its session.
type TokenIssuer interface {
	GenerateSessionToken(sessionID uuid.UUID) (string, error)
}

// TransformLister reads the persisted transform log.
type TransformLister interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.TransformRecord, error)
}

type SessionHandler struct {
	sessions   *session.Manager
	tokens     TokenIssuer
	transforms TransformLister
	log        *zap.Logger
}

// NewSessionHandler wires the widget endpoints. transforms may be nil when no
// database is configured.
func NewSessionHandler(sessions *session.Manager, tokens TokenIssuer, transforms TransformLister, log *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, tokens: tokens, transforms: transforms, log: log}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	c := h.sessions.Create()

	token, err := h.tokens.GenerateSessionToken(c.ID())
	if err != nil {
		h.log.Error("sign session token", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create session", r))
		return
	}

	writeJSON(w, http.StatusCreated, models.CreateSessionResponse{
		Token:    token,
		Snapshot: c.Snapshot(),
	})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (h *SessionHandler) SetRating(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}

	var req models.SetRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.Rating < services.MinRating || req.Rating > services.MaxRating {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"rating": "must be between 1 and 10"}, r))
		return
	}

	writeJSON(w, http.StatusOK, c.OnRatingChange(r.Context(), req.Rating))
}

func (h *SessionHandler) StepRating(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}

	var req models.StepRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	d, err := session.ParseDirection(req.Direction)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"direction": "must be left or right"}, r))
		return
	}

	writeJSON(w, http.StatusOK, c.OnRatingStep(r.Context(), d))
}

// Transform runs one rewrite and answers once it has finished. The
// completion keeps running if the client goes away.
func (h *SessionHandler) Transform(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}

	var req models.TransformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	res := c.OnTransformRequested(context.WithoutCancel(r.Context()), req.Text)

	status := http.StatusOK
	if res.Status == session.StatusBusy {
		status = http.StatusConflict
	}
	writeJSON(w, status, models.TransformResponse{
		Status:   string(res.Status),
		Output:   res.Output,
		Snapshot: res.Snapshot,
	})
}

func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.OnClear(r.Context()))
}

func (h *SessionHandler) Edit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.OnEdit(r.Context()))
}

func (h *SessionHandler) Copy(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.CopyResponse{Text: c.OnCopy(r.Context())})
}

func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.HistoryResponse{Messages: c.History()})
}

// Transforms lists the persisted transform log of the session, newest first.
func (h *SessionHandler) Transforms(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	if h.transforms == nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Transform log is disabled", r))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.transforms.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		h.log.Error("list transforms", zap.String("session_id", sessionID.String()), zap.Error(err))
		handleServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []*models.TransformRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"transforms": records})
}

func (h *SessionHandler) controller(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	c, err := h.sessions.Get(middleware.GetSessionID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return nil, false
	}
	return c, true
}
