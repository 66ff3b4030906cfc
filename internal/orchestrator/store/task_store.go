package store

import (
	"context"
	"time"

	"fleetmaster/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TaskStore defines the interface for delegate task persistence.
//
// A task exists from Create until Remove; there is no claimed or completed
// stored state. Remove is the atomic completion primitive: exactly one caller
// wins the record, so duplicate response deliveries are absorbed by the
// (nil, nil) result.
type TaskStore interface {
	Create(ctx context.Context, t *models.DelegateTask) error
	GetByID(ctx context.Context, id string) (*models.DelegateTask, error)
	// ListPending returns every pending task in the tenant, oldest first.
	// All non-completed tasks are visible to every delegate in the tenant.
	ListPending(ctx context.Context, accountID string) ([]*models.DelegateTask, error)
	List(ctx context.Context, req models.PageRequest) (*models.TaskPage, error)
	// Remove deletes the task and returns it. Returns (nil, nil) when the
	// task is already gone.
	Remove(ctx context.Context, id string) (*models.DelegateTask, error)
	// ListCreatedBefore returns tasks enqueued before the cutoff (for TTL sweeps).
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.DelegateTask, error)
}

var taskFilterFields = map[string]string{
	"accountId": "account_id",
	"appId":     "app_id",
	"taskType":  "task_type",
	"waitId":    "wait_id",
}

// MongoTaskStore is an implementation of TaskStore using MongoDB.
type MongoTaskStore struct {
	collection *mongo.Collection
}

// NewMongoTaskStore creates a new MongoTaskStore.
func NewMongoTaskStore(db *mongo.Database, collectionName string) *MongoTaskStore {
	return &MongoTaskStore{
		collection: db.Collection(collectionName),
	}
}

// Create inserts a new task record.
func (s *MongoTaskStore) Create(ctx context.Context, t *models.DelegateTask) error {
	_, err := s.collection.InsertOne(ctx, t)
	return err
}

// GetByID retrieves a task by its id.
func (s *MongoTaskStore) GetByID(ctx context.Context, id string) (*models.DelegateTask, error) {
	var t models.DelegateTask
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ListPending returns all pending tasks in the account, FIFO by arrival.
func (s *MongoTaskStore) ListPending(ctx context.Context, accountID string) ([]*models.DelegateTask, error) {
	opts := options.Find()
	opts.SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.collection.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	tasks := make([]*models.DelegateTask, 0)
	if err = cursor.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// List returns a filtered page of tasks with the total count.
func (s *MongoTaskStore) List(ctx context.Context, req models.PageRequest) (*models.TaskPage, error) {
	filter := bson.M{}
	for name, value := range req.Filters {
		if field, ok := taskFilterFields[name]; ok {
			filter[field] = value
		}
	}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}

	start := req.Start
	if start < 0 {
		start = 0
	}
	opts := options.Find()
	opts.SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	opts.SetSkip(int64(start))
	if req.PageSize > 0 {
		opts.SetLimit(int64(req.PageSize))
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	tasks := make([]*models.DelegateTask, 0)
	if err = cursor.All(ctx, &tasks); err != nil {
		return nil, err
	}

	return &models.TaskPage{
		PageResponse: models.PageResponse{Start: req.Start, PageSize: req.PageSize, Total: total},
		Tasks:        tasks,
	}, nil
}

// Remove atomically deletes the task and returns it. FindOneAndDelete makes
// concurrent duplicate responses race safely: one caller gets the document,
// the rest get (nil, nil).
func (s *MongoTaskStore) Remove(ctx context.Context, id string) (*models.DelegateTask, error) {
	var t models.DelegateTask
	err := s.collection.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&t)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ListCreatedBefore returns tasks older than the cutoff.
func (s *MongoTaskStore) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.DelegateTask, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tasks []*models.DelegateTask
	if err = cursor.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}
