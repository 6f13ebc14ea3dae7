package handlers

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskboard/internal/models"
)

var errUnexpectedCall = errors.New("unexpected store call")

// stubStore implements store.Store with per-method hooks. Unset hooks fail the call.
type stubStore struct {
	listUsersFn         func(ctx context.Context) ([]models.User, error)
	createUserFn        func(ctx context.Context, user *models.User) (models.InsertResult, error)
	listTasksFn         func(ctx context.Context, category string) ([]models.Task, error)
	createTaskFn        func(ctx context.Context, task *models.Task) (models.InsertResult, error)
	replaceTaskFieldsFn func(ctx context.Context, id primitive.ObjectID, fields models.TaskFields) (models.UpdateResult, error)
	patchTaskFn         func(ctx context.Context, id primitive.ObjectID, patch models.TaskPatch) (models.UpdateResult, error)
	setTaskCategoryFn   func(ctx context.Context, id primitive.ObjectID, category string) (models.UpdateResult, error)
	deleteTaskFn        func(ctx context.Context, id primitive.ObjectID) (models.DeleteResult, error)
	reorderTasksFn      func(ctx context.Context, positions []models.TaskPosition) (models.BulkResult, error)
	pingFn              func(ctx context.Context) error
}

func (s *stubStore) ListUsers(ctx context.Context) ([]models.User, error) {
	if s.listUsersFn == nil {
		return nil, errUnexpectedCall
	}
	return s.listUsersFn(ctx)
}

func (s *stubStore) CreateUser(ctx context.Context, user *models.User) (models.InsertResult, error) {
	if s.createUserFn == nil {
		return models.InsertResult{}, errUnexpectedCall
	}
	return s.createUserFn(ctx, user)
}

func (s *stubStore) ListTasks(ctx context.Context, category string) ([]models.Task, error) {
	if s.listTasksFn == nil {
		return nil, errUnexpectedCall
	}
	return s.listTasksFn(ctx, category)
}

func (s *stubStore) CreateTask(ctx context.Context, task *models.Task) (models.InsertResult, error) {
	if s.createTaskFn == nil {
		return models.InsertResult{}, errUnexpectedCall
	}
	return s.createTaskFn(ctx, task)
}

func (s *stubStore) ReplaceTaskFields(ctx context.Context, id primitive.ObjectID, fields models.TaskFields) (models.UpdateResult, error) {
	if s.replaceTaskFieldsFn == nil {
		return models.UpdateResult{}, errUnexpectedCall
	}
	return s.replaceTaskFieldsFn(ctx, id, fields)
}

func (s *stubStore) PatchTask(ctx context.Context, id primitive.ObjectID, patch models.TaskPatch) (models.UpdateResult, error) {
	if s.patchTaskFn == nil {
		return models.UpdateResult{}, errUnexpectedCall
	}
	return s.patchTaskFn(ctx, id, patch)
}

func (s *stubStore) SetTaskCategory(ctx context.Context, id primitive.ObjectID, category string) (models.UpdateResult, error) {
	if s.setTaskCategoryFn == nil {
		return models.UpdateResult{}, errUnexpectedCall
	}
	return s.setTaskCategoryFn(ctx, id, category)
}

func (s *stubStore) DeleteTask(ctx context.Context, id primitive.ObjectID) (models.DeleteResult, error) {
	if s.deleteTaskFn == nil {
		return models.DeleteResult{}, errUnexpectedCall
	}
	return s.deleteTaskFn(ctx, id)
}

func (s *stubStore) ReorderTasks(ctx context.Context, positions []models.TaskPosition) (models.BulkResult, error) {
	if s.reorderTasksFn == nil {
		return models.BulkResult{}, errUnexpectedCall
	}
	return s.reorderTasksFn(ctx, positions)
}

func (s *stubStore) Ping(ctx context.Context) error {
	if s.pingFn == nil {
		return nil
	}
	return s.pingFn(ctx)
}

func (s *stubStore) Close() error { return nil }
