package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskboard/internal/models"
)

// ErrUserExists is returned by CreateUser when a user with the same email is already stored.
var ErrUserExists = errors.New("user already exists")

// Store defines the interface for data persistence operations.
type Store interface {
	// User operations
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, user *models.User) (models.InsertResult, error)

	// Task operations
	ListTasks(ctx context.Context, category string) ([]models.Task, error)
	CreateTask(ctx context.Context, task *models.Task) (models.InsertResult, error)
	ReplaceTaskFields(ctx context.Context, id primitive.ObjectID, fields models.TaskFields) (models.UpdateResult, error)
	PatchTask(ctx context.Context, id primitive.ObjectID, patch models.TaskPatch) (models.UpdateResult, error)
	SetTaskCategory(ctx context.Context, id primitive.ObjectID, category string) (models.UpdateResult, error)
	DeleteTask(ctx context.Context, id primitive.ObjectID) (models.DeleteResult, error)
	ReorderTasks(ctx context.Context, positions []models.TaskPosition) (models.BulkResult, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
