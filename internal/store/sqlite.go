package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskboard/internal/models"
)

// SQLiteStore implements the Store interface using SQLite. It is the
// single-file backend for local development and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given database path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single shared connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListUsers retrieves all users.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, email, profile FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var (
			user    models.User
			id      string
			profile string
		)
		if err := rows.Scan(&id, &user.Email, &profile); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if user.ID, err = primitive.ObjectIDFromHex(id); err != nil {
			return nil, fmt.Errorf("failed to parse user id %q: %w", id, err)
		}
		if err := json.Unmarshal([]byte(profile), &user.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile for user %s: %w", id, err)
		}
		if len(user.Profile) == 0 {
			user.Profile = nil
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// CreateUser inserts the user unless one with the same email already exists.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) (models.InsertResult, error) {
	profile := []byte("{}")
	if len(user.Profile) > 0 {
		var err error
		if profile, err = json.Marshal(user.Profile); err != nil {
			return models.InsertResult{}, fmt.Errorf("failed to encode profile: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.InsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE email = ?`, user.Email).Scan(&exists)
	if err == nil {
		return models.InsertResult{}, ErrUserExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.InsertResult{}, fmt.Errorf("failed to look up user: %w", err)
	}

	id := primitive.NewObjectID()
	_, err = tx.ExecContext(ctx, `INSERT INTO users (id, email, profile) VALUES (?, ?, ?)`,
		id.Hex(), user.Email, string(profile))
	if err != nil {
		if isUniqueViolation(err) {
			return models.InsertResult{}, ErrUserExists
		}
		return models.InsertResult{}, fmt.Errorf("failed to create user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.InsertResult{}, fmt.Errorf("failed to commit user: %w", err)
	}

	user.ID = id
	return models.InsertResult{Acknowledged: true, InsertedID: id}, nil
}

// ListTasks retrieves tasks ordered by sort_order. An empty category lists every task.
func (s *SQLiteStore) ListTasks(ctx context.Context, category string) ([]models.Task, error) {
	query := `
		SELECT id, title, description, category, sort_order, created_at
		FROM tasks
	`
	var args []interface{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY sort_order ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		var (
			task                         models.Task
			id                           string
			title, description, category sql.NullString
		)
		if err := rows.Scan(&id, &title, &description, &category, &task.Order, &task.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if task.ID, err = primitive.ObjectIDFromHex(id); err != nil {
			return nil, fmt.Errorf("failed to parse task id %q: %w", id, err)
		}
		task.Title = title.String
		task.Description = description.String
		task.Category = category.String
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// CreateTask stamps the task with the current time and the next value of the
// task counter, then inserts it.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *models.Task) (models.InsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.InsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var order int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO counters (name, seq) VALUES ('tasks', 1)
		ON CONFLICT(name) DO UPDATE SET seq = seq + 1
		RETURNING seq
	`).Scan(&order)
	if err != nil {
		return models.InsertResult{}, fmt.Errorf("failed to allocate task order: %w", err)
	}

	id := primitive.NewObjectID()
	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, category, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.Hex(), task.Title, task.Description, task.Category, order, now)
	if err != nil {
		return models.InsertResult{}, fmt.Errorf("failed to create task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.InsertResult{}, fmt.Errorf("failed to commit task: %w", err)
	}

	task.ID = id
	task.Order = order
	task.Timestamp = now
	return models.InsertResult{Acknowledged: true, InsertedID: id}, nil
}

// ReplaceTaskFields overwrites title, description and category. Nil fields become NULL.
func (s *SQLiteStore) ReplaceTaskFields(ctx context.Context, id primitive.ObjectID, fields models.TaskFields) (models.UpdateResult, error) {
	return s.updateTask(ctx, id,
		[]string{"title", "description", "category"},
		[]interface{}{nullable(fields.Title), nullable(fields.Description), nullable(fields.Category)},
	)
}

// PatchTask updates only the fields present in the patch.
func (s *SQLiteStore) PatchTask(ctx context.Context, id primitive.ObjectID, patch models.TaskPatch) (models.UpdateResult, error) {
	var (
		columns []string
		values  []interface{}
	)
	if patch.Title != nil {
		columns = append(columns, "title")
		values = append(values, *patch.Title)
	}
	if patch.Description != nil {
		columns = append(columns, "description")
		values = append(values, *patch.Description)
	}
	if patch.Category != nil {
		columns = append(columns, "category")
		values = append(values, *patch.Category)
	}
	if len(columns) == 0 {
		return models.UpdateResult{}, errors.New("empty task patch")
	}

	return s.updateTask(ctx, id, columns, values)
}

// SetTaskCategory moves a task to another category.
func (s *SQLiteStore) SetTaskCategory(ctx context.Context, id primitive.ObjectID, category string) (models.UpdateResult, error) {
	return s.updateTask(ctx, id, []string{"category"}, []interface{}{category})
}

// DeleteTask deletes a task by ID.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id primitive.ObjectID) (models.DeleteResult, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id.Hex())
	if err != nil {
		return models.DeleteResult{}, fmt.Errorf("failed to delete task: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return models.DeleteResult{}, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return models.DeleteResult{Acknowledged: true, DeletedCount: n}, nil
}

// ReorderTasks writes order and category for each position in one transaction.
// Unknown ids are counted as unmatched, not reported as errors.
func (s *SQLiteStore) ReorderTasks(ctx context.Context, positions []models.TaskPosition) (models.BulkResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.BulkResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var summary models.BulkResult
	for _, p := range positions {
		res, err := updateTaskTx(ctx, tx, p.ID,
			[]string{"sort_order", "category"},
			[]interface{}{p.Order, p.Category},
		)
		if err != nil {
			return models.BulkResult{}, err
		}
		summary.MatchedCount += res.MatchedCount
		summary.ModifiedCount += res.ModifiedCount
	}

	if err := tx.Commit(); err != nil {
		return models.BulkResult{}, fmt.Errorf("failed to commit reorder: %w", err)
	}

	return summary, nil
}

func (s *SQLiteStore) updateTask(ctx context.Context, id primitive.ObjectID, columns []string, values []interface{}) (models.UpdateResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := updateTaskTx(ctx, tx, id, columns, values)
	if err != nil {
		return models.UpdateResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.UpdateResult{}, fmt.Errorf("failed to commit task update: %w", err)
	}

	return result, nil
}

// updateTaskTx sets columns on one task and reports matched and modified
// counts the way a document store would: a row whose values already match
// is matched but not modified.
func updateTaskTx(ctx context.Context, tx *sql.Tx, id primitive.ObjectID, columns []string, values []interface{}) (models.UpdateResult, error) {
	var matched int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE id = ?`, id.Hex()).Scan(&matched); err != nil {
		return models.UpdateResult{}, fmt.Errorf("failed to match task: %w", err)
	}
	if matched == 0 {
		return models.UpdateResult{Acknowledged: true}, nil
	}

	sets := make([]string, len(columns))
	same := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + " = ?"
		same[i] = c + " IS ?"
	}

	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = ? AND NOT (%s)`,
		strings.Join(sets, ", "), strings.Join(same, " AND "))

	args := make([]interface{}, 0, len(values)*2+1)
	args = append(args, values...)
	args = append(args, id.Hex())
	args = append(args, values...)

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("failed to update task: %w", err)
	}

	modified, err := result.RowsAffected()
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return models.UpdateResult{Acknowledged: true, MatchedCount: matched, ModifiedCount: modified}, nil
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
