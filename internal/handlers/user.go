package handlers

import (
	"errors"
	"net/http"

	"taskboard/internal/models"
	"taskboard/internal/store"
)

// ListUsers returns every user.
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.respondServerError(w, r, err, "Failed to fetch users")
		return
	}

	h.respondJSON(w, http.StatusOK, users)
}

// CreateUser inserts a user keyed by email. An existing email is answered
// with a message, not an error status.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if err := decodeBody(r, &user); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := user.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, "Email is required")
		return
	}

	result, err := h.store.CreateUser(r.Context(), &user)
	if errors.Is(err, store.ErrUserExists) {
		h.respondJSON(w, http.StatusOK, messageResponse{Message: "User already exists"})
		return
	}
	if err != nil {
		h.respondServerError(w, r, err, "Failed to create user")
		return
	}

	h.log.WithField("user_id", user.ID.Hex()).Info("user created")
	h.respondJSON(w, http.StatusOK, result)
}
