package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskboard/internal/models"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err, "failed to create test store")
	t.Cleanup(func() { store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func createTask(t *testing.T, s Store, title, category string) *models.Task {
	t.Helper()
	task := &models.Task{Title: title, Category: category}
	_, err := s.CreateTask(context.Background(), task)
	require.NoError(t, err)
	return task
}

func findTask(t *testing.T, s Store, id primitive.ObjectID) models.Task {
	t.Helper()
	tasks, err := s.ListTasks(context.Background(), "")
	require.NoError(t, err)
	for _, task := range tasks {
		if task.ID == id {
			return task
		}
	}
	t.Fatalf("task %s not found", id.Hex())
	return models.Task{}
}

func TestCreateTask_AssignsIncreasingOrder(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	task := &models.Task{Title: "First", Category: "todo", Order: 99}
	res, err := store.CreateTask(ctx, task)
	require.NoError(t, err)

	assert.True(t, res.Acknowledged)
	assert.Equal(t, task.ID, res.InsertedID)
	assert.False(t, task.ID.IsZero())
	assert.EqualValues(t, 1, task.Order, "caller supplied order must be ignored")
	assert.False(t, task.Timestamp.IsZero())

	second := createTask(t, store, "Second", "todo")
	assert.EqualValues(t, 2, second.Order)
}

func TestCreateTask_OrderNotReusedAfterDelete(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a := createTask(t, store, "A", "todo")
	createTask(t, store, "B", "todo")
	_, err := store.DeleteTask(ctx, a.ID)
	require.NoError(t, err)

	c := createTask(t, store, "C", "todo")
	assert.EqualValues(t, 3, c.Order)
}

func TestCreateTask_ConcurrentCreatesGetDistinctOrders(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	const n = 20
	var wg sync.WaitGroup
	orders := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := &models.Task{Title: "concurrent"}
			if _, err := store.CreateTask(context.Background(), task); err == nil {
				orders <- task.Order
			}
		}()
	}
	wg.Wait()
	close(orders)

	seen := make(map[int64]bool)
	for o := range orders {
		assert.False(t, seen[o], "duplicate order %d", o)
		seen[o] = true
	}
	assert.Len(t, seen, n)
}

func TestListTasks_SortedByOrder(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a := createTask(t, store, "A", "todo")
	b := createTask(t, store, "B", "doing")
	c := createTask(t, store, "C", "todo")

	_, err := store.ReorderTasks(ctx, []models.TaskPosition{
		{ID: a.ID, Order: 30, Category: "todo"},
		{ID: b.ID, Order: 10, Category: "doing"},
		{ID: c.ID, Order: 20, Category: "todo"},
	})
	require.NoError(t, err)

	tasks, err := store.ListTasks(ctx, "")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, []string{"B", "C", "A"}, []string{tasks[0].Title, tasks[1].Title, tasks[2].Title})
}

func TestListTasks_EmptyIsNotNil(t *testing.T) {
	store := setupTestDB(t)

	tasks, err := store.ListTasks(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

func TestListTasks_FiltersByCategory(t *testing.T) {
	store := setupTestDB(t)

	createTask(t, store, "A", "todo")
	createTask(t, store, "B", "done")
	createTask(t, store, "C", "todo")

	tasks, err := store.ListTasks(context.Background(), "todo")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "A", tasks[0].Title)
	assert.Equal(t, "C", tasks[1].Title)
}

func TestReplaceTaskFields_OverwritesOmittedFields(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	task := &models.Task{Title: "Old", Description: "Keep me?", Category: "todo"}
	_, err := store.CreateTask(ctx, task)
	require.NoError(t, err)

	res, err := store.ReplaceTaskFields(ctx, task.ID, models.TaskFields{Title: strPtr("New")})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.MatchedCount)
	assert.EqualValues(t, 1, res.ModifiedCount)

	got := findTask(t, store, task.ID)
	assert.Equal(t, "New", got.Title)
	assert.Empty(t, got.Description)
	assert.Empty(t, got.Category)
}

func TestReplaceTaskFields_UnchangedIsMatchedNotModified(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	task := createTask(t, store, "Same", "todo")

	res, err := store.ReplaceTaskFields(ctx, task.ID, models.TaskFields{
		Title:       strPtr("Same"),
		Description: strPtr(""),
		Category:    strPtr("todo"),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.MatchedCount)
	assert.EqualValues(t, 0, res.ModifiedCount)
}

func TestReplaceTaskFields_UnknownID(t *testing.T) {
	store := setupTestDB(t)

	res, err := store.ReplaceTaskFields(context.Background(), primitive.NewObjectID(), models.TaskFields{Title: strPtr("x")})
	require.NoError(t, err)
	assert.True(t, res.Acknowledged)
	assert.EqualValues(t, 0, res.MatchedCount)
}

func TestPatchTask_LeavesOmittedFields(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	task := &models.Task{Title: "Old", Description: "Details", Category: "todo"}
	_, err := store.CreateTask(ctx, task)
	require.NoError(t, err)

	res, err := store.PatchTask(ctx, task.ID, models.TaskPatch{Title: strPtr("New")})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.ModifiedCount)

	got := findTask(t, store, task.ID)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, "Details", got.Description)
	assert.Equal(t, "todo", got.Category)
}

func TestPatchTask_EmptyPatch(t *testing.T) {
	store := setupTestDB(t)
	task := createTask(t, store, "A", "todo")

	_, err := store.PatchTask(context.Background(), task.ID, models.TaskPatch{})
	assert.Error(t, err)
}

func TestSetTaskCategory(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	task := &models.Task{Title: "A", Description: "desc", Category: "todo"}
	_, err := store.CreateTask(ctx, task)
	require.NoError(t, err)

	res, err := store.SetTaskCategory(ctx, task.ID, "done")
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.MatchedCount)

	got := findTask(t, store, task.ID)
	assert.Equal(t, "done", got.Category)
	assert.Equal(t, "A", got.Title)
	assert.Equal(t, "desc", got.Description)
	assert.Equal(t, task.Order, got.Order)
}

func TestDeleteTask(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	task := createTask(t, store, "A", "todo")

	res, err := store.DeleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.DeletedCount)

	res, err = store.DeleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, res.Acknowledged)
	assert.EqualValues(t, 0, res.DeletedCount)
}

func TestReorderTasks(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a := createTask(t, store, "A", "todo")
	b := createTask(t, store, "B", "todo")

	res, err := store.ReorderTasks(ctx, []models.TaskPosition{
		{ID: a.ID, Order: 2, Category: "done"},
		{ID: b.ID, Order: 1, Category: "todo"},
		{ID: primitive.NewObjectID(), Order: 3, Category: "todo"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.MatchedCount)
	assert.EqualValues(t, 2, res.ModifiedCount, "B keeps its category but changes order")

	tasks, err := store.ListTasks(ctx, "")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, b.ID, tasks[0].ID)
	assert.Equal(t, "todo", tasks[0].Category)
	assert.Equal(t, a.ID, tasks[1].ID)
	assert.Equal(t, "done", tasks[1].Category)
}

func TestCreateUser_InsertIfAbsent(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	user := &models.User{Email: "ann@example.com", Profile: map[string]interface{}{"name": "Ann"}}
	res, err := store.CreateUser(ctx, user)
	require.NoError(t, err)
	assert.True(t, res.Acknowledged)
	assert.Equal(t, user.ID, res.InsertedID)

	_, err = store.CreateUser(ctx, &models.User{Email: "ann@example.com", Profile: map[string]interface{}{"name": "Other"}})
	assert.ErrorIs(t, err, ErrUserExists)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "ann@example.com", users[0].Email)
	assert.Equal(t, "Ann", users[0].Profile["name"])
}

func TestListUsers_EmptyProfileIsNil(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	_, err := store.CreateUser(ctx, &models.User{Email: "bob@example.com"})
	require.NoError(t, err)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Nil(t, users[0].Profile)
}

func TestNewSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tasks.db")

	first, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	task := createTask(t, first, "Persisted", "todo")
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	got := findTask(t, second, task.ID)
	assert.Equal(t, "Persisted", got.Title)

	next := createTask(t, second, "Next", "todo")
	assert.EqualValues(t, 2, next.Order)
}

func TestNewSQLiteStore_SeedsCounterFromExistingTasks(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE tasks (
			id TEXT PRIMARY KEY,
			title TEXT,
			description TEXT,
			category TEXT,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);
		INSERT INTO tasks (id, title, sort_order, created_at)
		VALUES ('65a1f0c2e4b0a1b2c3d4e5f6', 'legacy', 41, CURRENT_TIMESTAMP);
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	task := createTask(t, store, "after legacy", "todo")
	assert.EqualValues(t, 42, task.Order)
}
