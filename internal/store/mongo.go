package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"taskboard/internal/models"
)

const (
	usersCollection    = "users"
	tasksCollection    = "tasks"
	countersCollection = "counters"

	taskCounterID = "tasks"
)

// MongoStore implements the Store interface on MongoDB. The client is opened
// once and shared by every request until Close.
type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	tasks    *mongo.Collection
	counters *mongo.Collection
}

// NewMongoStore connects to uri, verifies the connection, ensures indexes and
// seeds the task order counter in the given database.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1).
		SetStrict(true).
		SetDeprecationErrors(true)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := newMongoStore(client, database)
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if err := s.seedTaskCounter(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return s, nil
}

func newMongoStore(client *mongo.Client, database string) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client:   client,
		users:    db.Collection(usersCollection),
		tasks:    db.Collection(tasksCollection),
		counters: db.Collection(countersCollection),
	}
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "category", Value: 1}, {Key: "order", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create tasks index: %w", err)
	}

	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users email index: %w", err)
	}

	return nil
}

// seedTaskCounter raises the counter to the highest stored order so tasks
// created before the counter existed are never handed a duplicate.
func (s *MongoStore) seedTaskCounter(ctx context.Context) error {
	var top struct {
		Order int64 `bson:"order"`
	}
	err := s.tasks.FindOne(ctx, bson.D{},
		options.FindOne().
			SetSort(bson.D{{Key: "order", Value: -1}}).
			SetProjection(bson.D{{Key: "order", Value: 1}}),
	).Decode(&top)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("failed to read highest task order: %w", err)
	}

	_, err = s.counters.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: taskCounterID}},
		bson.D{{Key: "$max", Value: bson.D{{Key: "seq", Value: top.Order}}}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to seed task counter: %w", err)
	}

	return nil
}

func (s *MongoStore) nextTaskOrder(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: taskCounterID}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate task order: %w", err)
	}
	return counter.Seq, nil
}

// Ping verifies the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ListUsers retrieves all users.
func (s *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	cur, err := s.users.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

// CreateUser inserts the user unless one with the same email already exists.
func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) (models.InsertResult, error) {
	err := s.users.FindOne(ctx, bson.D{{Key: "email", Value: user.Email}}).Err()
	if err == nil {
		return models.InsertResult{}, ErrUserExists
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.InsertResult{}, fmt.Errorf("failed to look up user: %w", err)
	}

	user.ID = primitive.NewObjectID()
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		user.ID = primitive.NilObjectID
		if mongo.IsDuplicateKeyError(err) {
			return models.InsertResult{}, ErrUserExists
		}
		return models.InsertResult{}, fmt.Errorf("failed to create user: %w", err)
	}

	return models.InsertResult{Acknowledged: true, InsertedID: user.ID}, nil
}

// ListTasks retrieves tasks ordered by order, then _id. An empty category lists every task.
func (s *MongoStore) ListTasks(ctx context.Context, category string) ([]models.Task, error) {
	cur, err := s.tasks.Find(ctx, taskListFilter(category),
		options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := []models.Task{}
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return tasks, nil
}

// CreateTask stamps the task with the current time and the next value of the
// task counter, then inserts it.
func (s *MongoStore) CreateTask(ctx context.Context, task *models.Task) (models.InsertResult, error) {
	order, err := s.nextTaskOrder(ctx)
	if err != nil {
		return models.InsertResult{}, err
	}

	task.ID = primitive.NewObjectID()
	task.Order = order
	task.Timestamp = time.Now().UTC()

	if _, err := s.tasks.InsertOne(ctx, task); err != nil {
		return models.InsertResult{}, fmt.Errorf("failed to create task: %w", err)
	}

	return models.InsertResult{Acknowledged: true, InsertedID: task.ID}, nil
}

// ReplaceTaskFields overwrites title, description and category. Nil fields are stored as null.
func (s *MongoStore) ReplaceTaskFields(ctx context.Context, id primitive.ObjectID, fields models.TaskFields) (models.UpdateResult, error) {
	return s.updateTask(ctx, id, taskFieldsUpdate(fields))
}

// PatchTask updates only the fields present in the patch.
func (s *MongoStore) PatchTask(ctx context.Context, id primitive.ObjectID, patch models.TaskPatch) (models.UpdateResult, error) {
	if patch.Empty() {
		return models.UpdateResult{}, errors.New("empty task patch")
	}
	return s.updateTask(ctx, id, taskPatchUpdate(patch))
}

// SetTaskCategory moves a task to another category.
func (s *MongoStore) SetTaskCategory(ctx context.Context, id primitive.ObjectID, category string) (models.UpdateResult, error) {
	return s.updateTask(ctx, id, bson.D{{Key: "$set", Value: bson.D{{Key: "category", Value: category}}}})
}

// DeleteTask deletes a task by ID.
func (s *MongoStore) DeleteTask(ctx context.Context, id primitive.ObjectID) (models.DeleteResult, error) {
	res, err := s.tasks.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return models.DeleteResult{}, fmt.Errorf("failed to delete task: %w", err)
	}
	return models.DeleteResult{Acknowledged: true, DeletedCount: res.DeletedCount}, nil
}

// ReorderTasks issues one unordered bulk write. Entries are applied
// independently; on error the partial summary is returned with it.
func (s *MongoStore) ReorderTasks(ctx context.Context, positions []models.TaskPosition) (models.BulkResult, error) {
	res, err := s.tasks.BulkWrite(ctx, reorderModels(positions), options.BulkWrite().SetOrdered(false))

	var summary models.BulkResult
	if res != nil {
		summary = models.BulkResult{
			InsertedCount: res.InsertedCount,
			MatchedCount:  res.MatchedCount,
			ModifiedCount: res.ModifiedCount,
			DeletedCount:  res.DeletedCount,
			UpsertedCount: res.UpsertedCount,
		}
	}
	if err != nil {
		return summary, fmt.Errorf("failed to reorder tasks: %w", err)
	}
	return summary, nil
}

func (s *MongoStore) updateTask(ctx context.Context, id primitive.ObjectID, update bson.D) (models.UpdateResult, error) {
	res, err := s.tasks.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return models.UpdateResult{}, fmt.Errorf("failed to update task: %w", err)
	}
	return models.UpdateResult{
		Acknowledged:  true,
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
		UpsertedID:    res.UpsertedID,
	}, nil
}

func taskListFilter(category string) bson.D {
	if category == "" {
		return bson.D{}
	}
	return bson.D{{Key: "category", Value: category}}
}

// taskFieldsUpdate always sets all three keys; a nil pointer encodes as null.
func taskFieldsUpdate(fields models.TaskFields) bson.D {
	return bson.D{{Key: "$set", Value: bson.D{
		{Key: "title", Value: fields.Title},
		{Key: "description", Value: fields.Description},
		{Key: "category", Value: fields.Category},
	}}}
}

func taskPatchUpdate(patch models.TaskPatch) bson.D {
	set := bson.D{}
	if patch.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *patch.Title})
	}
	if patch.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *patch.Description})
	}
	if patch.Category != nil {
		set = append(set, bson.E{Key: "category", Value: *patch.Category})
	}
	return bson.D{{Key: "$set", Value: set}}
}

func reorderModels(positions []models.TaskPosition) []mongo.WriteModel {
	writes := make([]mongo.WriteModel, 0, len(positions))
	for _, p := range positions {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "_id", Value: p.ID}}).
			SetUpdate(bson.D{{Key: "$set", Value: bson.D{
				{Key: "order", Value: p.Order},
				{Key: "category", Value: p.Category},
			}}}))
	}
	return writes
}
