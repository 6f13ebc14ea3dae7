package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskboard/internal/models"
	"taskboard/internal/store"
)

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	store store.Store
	log   *log.Logger
}

// New creates a new Handlers instance. A nil logger falls back to the logrus standard logger.
func New(s store.Store, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Handlers{
		store: s,
		log:   logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// parseID extracts a task ObjectID from URL parameters.
func parseID(r *http.Request, param string) (primitive.ObjectID, error) {
	return models.ParseID(chi.URLParam(r, param))
}

// respondJSON writes v as the JSON response body.
func (h *Handlers) respondJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Warn("failed to write response")
	}
}

// respondError sends an error response.
func (h *Handlers) respondError(w http.ResponseWriter, code int, message string) {
	h.respondJSON(w, code, errorResponse{Error: message})
}

// respondServerError logs the store error and sends a generic 500.
func (h *Handlers) respondServerError(w http.ResponseWriter, r *http.Request, err error, message string) {
	h.log.WithError(err).
		WithField("method", r.Method).
		WithField("path", r.URL.Path).
		Error(message)
	h.respondError(w, http.StatusInternalServerError, message)
}
