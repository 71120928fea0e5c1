package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/ajimi/internal/embedding"
	"github.com/hyperjump/ajimi/internal/predict"
	"github.com/hyperjump/ajimi/internal/recipe"
	"github.com/hyperjump/ajimi/internal/recommender"
	"github.com/hyperjump/ajimi/internal/session"
	"github.com/hyperjump/ajimi/internal/vector"
	"go.uber.org/zap"
)

type predictRequest struct {
	Embedding []float32 `json:"embedding"`
	SessionID string    `json:"session_id,omitempty"`
}

type predictResponse struct {
	*recommender.Prediction
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		s.handlePredictImage(w, r)
		return
	}
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Embedding) == 0 {
		s.respondError(w, http.StatusBadRequest, "embedding is required")
		return
	}
	fb, ok := s.sessionFeedback(w, req.SessionID)
	if !ok {
		return
	}
	s.logger.Debug("predict request", zap.Int("dimensions", len(req.Embedding)), zap.String("session_id", req.SessionID))
	pred, err := s.rec.Predict(r.Context(), req.Embedding, fb)
	if err != nil {
		s.respondPredictError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, predictResponse{Prediction: pred, SessionID: req.SessionID})
}

func (s *Server) handlePredictImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()
	img, err := embedding.DecodeImage(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessionID := r.FormValue("session_id")
	fb, ok := s.sessionFeedback(w, sessionID)
	if !ok {
		return
	}
	pred, err := s.rec.PredictImage(r.Context(), img, fb)
	if err != nil {
		s.respondPredictError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, predictResponse{Prediction: pred, SessionID: sessionID})
}

// sessionFeedback returns the feedback for id, or empty feedback when id is empty.
// It writes a 404 and returns false for an unknown session.
func (s *Server) sessionFeedback(w http.ResponseWriter, id string) (session.Feedback, bool) {
	if id == "" || s.sessions == nil {
		return session.NewFeedback(), true
	}
	fb, err := s.sessions.Feedback(id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "session not found")
		return session.Feedback{}, false
	}
	return fb, true
}

func (s *Server) respondPredictError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vector.ErrDimensionMismatch), errors.Is(err, vector.ErrNotNormalized), errors.Is(err, vector.ErrInvalidK):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, predict.ErrEmptyNeighborSet):
		s.respondError(w, http.StatusUnprocessableEntity, "no prediction possible")
	case errors.Is(err, recommender.ErrNoEncoder):
		s.respondError(w, http.StatusNotImplemented, "image prediction is not available")
	case errors.Is(err, vector.ErrIndexNotFound):
		s.respondError(w, http.StatusServiceUnavailable, "index not loaded")
	default:
		s.logger.Error("prediction failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

type feedbackRequest struct {
	Action     string `json:"action"`
	ClassLabel string `json:"class_label"`
}

type sessionResponse struct {
	SessionID string   `json:"session_id"`
	Liked     []string `json:"liked"`
	Disliked  []string `json:"disliked"`
}

func newSessionResponse(id string, fb session.Feedback) sessionResponse {
	return sessionResponse{SessionID: id, Liked: fb.LikedLabels(), Disliked: fb.DislikedLabels()}
}

// requireSessions writes a 501 and returns false when the server runs without a session manager.
func (s *Server) requireSessions(w http.ResponseWriter) bool {
	if s.sessions == nil {
		s.respondError(w, http.StatusNotImplemented, "sessions not enabled")
		return false
	}
	return true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	id := s.sessions.Create()
	s.respondJSON(w, http.StatusCreated, newSessionResponse(id, session.NewFeedback()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	id := chi.URLParam(r, "id")
	fb, err := s.sessions.Feedback(id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	s.respondJSON(w, http.StatusOK, newSessionResponse(id, fb))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.sessions.Delete(id); err != nil {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "deleted"})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	id := chi.URLParam(r, "id")
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	action, err := session.ParseAction(req.Action)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	label := recipe.NormalizeKey(req.ClassLabel)
	s.logger.Debug("feedback", zap.String("session_id", id), zap.String("action", string(action)), zap.String("class_label", label))
	fb, err := s.sessions.Apply(id, action, label)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "session not found")
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, newSessionResponse(id, fb))
}

type relatedResponse struct {
	ClassLabel    string   `json:"class_label"`
	SimilarDishes []string `json:"similar_dishes"`
	GroupName     string   `json:"group_name"`
	GroupMembers  []string `json:"group_members"`
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	label := recipe.NormalizeKey(chi.URLParam(r, "label"))
	similarK, err := queryInt(r, "similar_k")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	groupK, err := queryInt(r, "group_k")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, relatedResponse{
		ClassLabel:    label,
		SimilarDishes: s.rec.SimilarDishes(label, similarK),
		GroupName:     s.rec.GroupName(label),
		GroupMembers:  s.rec.GroupMembers(label, groupK),
	})
}

func (s *Server) handleRecipe(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	rec, err := s.rec.Recipe(r.Context(), label)
	if err != nil {
		s.logger.Error("recipe lookup failed", zap.String("label", label), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		s.respondError(w, http.StatusNotFound, "recipe not found")
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSearchDishes(w http.ResponseWriter, r *http.Request) {
	if s.dishes == nil {
		s.respondError(w, http.StatusNotImplemented, "dish search not enabled")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 {
		limit = 10
	}
	hits, err := s.dishes.Search(r.Context(), q, limit)
	if err != nil {
		s.logger.Error("dish search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{"query": q, "results": hits}
	if len(hits) == 0 {
		resp["results"] = []recipe.SearchHit{}
		if corrected, changed, err := s.dishes.Correct(q); err != nil {
			s.logger.Warn("query correction failed", zap.Error(err))
		} else if changed {
			resp["did_you_mean"] = corrected
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// queryInt parses an optional non-negative integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
