package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInvalidID is returned when a task identifier is not a 24-character hex ObjectID.
var ErrInvalidID = errors.New("invalid task id")

// Task represents a single task on the board.
type Task struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	Category    string             `bson:"category" json:"category"` // column on the board, e.g. "todo"
	Order       int64              `bson:"order" json:"order"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
}

// TaskFields is the full replacement payload for PUT /tasks/{id}.
// A nil field is written as null, not skipped.
type TaskFields struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
}

// TaskPatch is a sparse update; nil fields are left unchanged.
type TaskPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
}

// UnmarshalJSON accepts any JSON value for each field; see TextValue.
func (f *TaskFields) UnmarshalJSON(data []byte) error {
	var raw rawTaskFields
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Title, f.Description, f.Category = raw.values()
	return nil
}

// UnmarshalJSON accepts any JSON value for each field; see TextValue.
func (p *TaskPatch) UnmarshalJSON(data []byte) error {
	var raw rawTaskFields
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Title, p.Description, p.Category = raw.values()
	return nil
}

type rawTaskFields struct {
	Title       json.RawMessage `json:"title"`
	Description json.RawMessage `json:"description"`
	Category    json.RawMessage `json:"category"`
}

func (r rawTaskFields) values() (title, description, category *string) {
	return TextValue(r.Title), TextValue(r.Description), TextValue(r.Category)
}

// TextValue reads a loosely typed text field. A JSON string keeps its value,
// null or an absent field yields nil, and any other value is kept as its
// compact JSON text.
func TextValue(raw json.RawMessage) *string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return &s
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil
	}
	s = buf.String()
	return &s
}

// Empty reports whether the patch would change nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil
}

// TaskPosition places one task at an order within a category.
type TaskPosition struct {
	ID       primitive.ObjectID
	Order    int64
	Category string
}

// ParseID parses a task identifier from its hex form.
func ParseID(s string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return id, nil
}
