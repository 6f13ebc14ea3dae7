package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"taskboard/internal/models"
)

type categoryInput struct {
	Category json.RawMessage `json:"category"`
}

type reorderInput struct {
	UpdatedTasks json.RawMessage `json:"updatedTasks"`
}

type reorderEntry struct {
	ID       json.RawMessage `json:"_id"`
	Order    json.RawMessage `json:"order"`
	Category json.RawMessage `json:"category"`
}

// SkippedEntry reports a reorder entry that was dropped before the bulk write.
type SkippedEntry struct {
	Index  int    `json:"index"`
	ID     string `json:"_id,omitempty"`
	Reason string `json:"reason"`
}

// ReorderResponse is the bulk-write summary plus any dropped entries.
type ReorderResponse struct {
	models.BulkResult
	Skipped []SkippedEntry `json:"skipped,omitempty"`
}

// ListTasks returns every task sorted by order, optionally limited to one category.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tasks, err := h.store.ListTasks(ctx, r.URL.Query().Get("category"))
	if err != nil {
		h.respondServerError(w, r, err, "Failed to fetch tasks")
		return
	}

	h.respondJSON(w, http.StatusOK, tasks)
}

// CreateTask creates a new task at the end of the order. Only title,
// description and category are taken from the body; order, timestamp and _id
// are assigned by the store.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input models.TaskFields
	if err := decodeBody(r, &input); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	task := &models.Task{
		Title:       textOrEmpty(input.Title),
		Description: textOrEmpty(input.Description),
		Category:    textOrEmpty(input.Category),
	}

	result, err := h.store.CreateTask(ctx, task)
	if err != nil {
		h.respondServerError(w, r, err, "Failed to create task")
		return
	}

	h.log.WithField("task_id", task.ID.Hex()).WithField("order", task.Order).Debug("task created")
	h.respondJSON(w, http.StatusOK, result)
}

// UpdateTask overwrites title, description and category. Fields missing from
// the body are cleared.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r, "id")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid task ID format")
		return
	}

	var fields models.TaskFields
	if err := decodeBody(r, &fields); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.store.ReplaceTaskFields(ctx, id, fields)
	if err != nil {
		h.respondServerError(w, r, err, "Failed to update task")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// PatchTask updates only the fields present in the body.
func (h *Handlers) PatchTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r, "id")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid task ID format")
		return
	}

	var patch models.TaskPatch
	if err := decodeBody(r, &patch); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if patch.Empty() {
		h.respondError(w, http.StatusBadRequest, "No fields to update")
		return
	}

	result, err := h.store.PatchTask(ctx, id, patch)
	if err != nil {
		h.respondServerError(w, r, err, "Failed to update task")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// UpdateTaskCategory moves a task to another category.
func (h *Handlers) UpdateTaskCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r, "id")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid task ID format")
		return
	}

	var input categoryInput
	if err := decodeBody(r, &input); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.store.SetTaskCategory(ctx, id, textOrEmpty(models.TextValue(input.Category)))
	if err != nil {
		h.respondServerError(w, r, err, "Failed to update task category")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// DeleteTask deletes a task. Deleting a missing task reports deletedCount 0.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r, "id")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid task ID format")
		return
	}

	result, err := h.store.DeleteTask(ctx, id)
	if err != nil {
		h.respondServerError(w, r, err, "Failed to delete task")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// ReorderTasks writes order and category for a batch of tasks in one bulk write.
// Entries without a well-formed _id are skipped and listed in the response.
func (h *Handlers) ReorderTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input reorderInput
	if err := decodeBody(r, &input); err != nil || !isJSONArray(input.UpdatedTasks) {
		h.respondError(w, http.StatusBadRequest, "Invalid task data format")
		return
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(input.UpdatedTasks, &entries); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid task data format")
		return
	}

	positions, skipped := parsePositions(entries)
	if len(positions) == 0 {
		h.respondError(w, http.StatusBadRequest, "No valid tasks to update")
		return
	}

	result, err := h.store.ReorderTasks(ctx, positions)
	if err != nil {
		h.log.WithField("matched", result.MatchedCount).
			WithField("modified", result.ModifiedCount).
			WithField("entries", len(positions)).
			WithError(err).
			Error("Failed to reorder tasks")
		h.respondError(w, http.StatusInternalServerError, "Failed to reorder tasks")
		return
	}

	if len(skipped) > 0 {
		h.log.WithField("skipped", len(skipped)).Debug("reorder entries dropped")
	}
	h.respondJSON(w, http.StatusOK, ReorderResponse{BulkResult: result, Skipped: skipped})
}

// parsePositions keeps entries with a well-formed _id, in request order.
// Order and category are coerced from whatever the entry carries.
func parsePositions(entries []json.RawMessage) ([]models.TaskPosition, []SkippedEntry) {
	positions := make([]models.TaskPosition, 0, len(entries))
	var skipped []SkippedEntry

	for i, raw := range entries {
		var entry reorderEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			skipped = append(skipped, SkippedEntry{Index: i, Reason: "malformed entry"})
			continue
		}
		idText := models.TextValue(entry.ID)
		if idText == nil || *idText == "" {
			skipped = append(skipped, SkippedEntry{Index: i, Reason: "missing _id"})
			continue
		}
		id, err := models.ParseID(*idText)
		if err != nil {
			skipped = append(skipped, SkippedEntry{Index: i, ID: *idText, Reason: "invalid _id"})
			continue
		}
		positions = append(positions, models.TaskPosition{
			ID:       id,
			Order:    orderValue(entry.Order),
			Category: textOrEmpty(models.TextValue(entry.Category)),
		})
	}

	return positions, skipped
}

// orderValue reads an order from a JSON number or numeric string, rounding
// fractions to the nearest integer. Anything else becomes 0, which sorts
// ahead of every assigned order.
func orderValue(raw json.RawMessage) int64 {
	text := models.TextValue(raw)
	if text == nil {
		return 0
	}
	s := strings.TrimSpace(*text)

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Round(f)
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

func textOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// decodeBody decodes a JSON body into v. An empty body leaves v at its zero value.
func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func isJSONArray(raw json.RawMessage) bool {
	return strings.HasPrefix(strings.TrimSpace(string(raw)), "[")
}
