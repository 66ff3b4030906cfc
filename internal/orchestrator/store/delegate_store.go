package store

import (
	"context"

	"fleetmaster/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DelegateStore defines the interface for delegate persistence.
//
// Reads return (nil, nil) when the record is absent; mapping that to a
// NotFoundError is the service layer's job. Every mutation is atomic per
// record, so concurrent registrations and heartbeats on different delegates
// never contend with each other.
type DelegateStore interface {
	Create(ctx context.Context, d *models.Delegate) error
	GetByID(ctx context.Context, accountID, id string) (*models.Delegate, error)
	// FindBySignature looks up a delegate by its identity signature
	// (accountId, hostName, ip). Register uses this for idempotent upserts.
	FindBySignature(ctx context.Context, accountID, hostName, ip string) (*models.Delegate, error)
	// ApplyStatusHeartBeat updates a single record atomically: status is set
	// when non-empty, and the heart beat only ever advances. Returns the
	// record after the update, or (nil, nil) when no record matched.
	ApplyStatusHeartBeat(ctx context.Context, accountID, id string, status models.DelegateStatus, heartBeatMillis int64) (*models.Delegate, error)
	// DisableStale disables the record only if its heart beat is still older
	// than the cutoff at write time. Returns whether the record was disabled.
	DisableStale(ctx context.Context, accountID, id string, cutoffMillis int64) (bool, error)
	List(ctx context.Context, req models.PageRequest) (*models.DelegatePage, error)
	// Delete removes the record and reports whether anything was removed.
	// Deleting an absent record is not an error.
	Delete(ctx context.Context, accountID, id string) (bool, error)
	// ListHeartBeatBefore returns delegates whose last heartbeat is older
	// than the cutoff (Unix millis) and that are still ENABLED.
	ListHeartBeatBefore(ctx context.Context, cutoffMillis int64) ([]*models.Delegate, error)
}

// delegateFilterFields maps the external filter names accepted in a
// PageRequest onto the stored field names.
var delegateFilterFields = map[string]string{
	"accountId": "account_id",
	"hostName":  "host_name",
	"status":    "status",
	"ip":        "ip",
}

// MongoDelegateStore is an implementation of DelegateStore using MongoDB.
type MongoDelegateStore struct {
	collection *mongo.Collection
}

// NewMongoDelegateStore creates a new MongoDelegateStore.
func NewMongoDelegateStore(db *mongo.Database, collectionName string) *MongoDelegateStore {
	return &MongoDelegateStore{
		collection: db.Collection(collectionName),
	}
}

// Create inserts a new delegate record.
func (s *MongoDelegateStore) Create(ctx context.Context, d *models.Delegate) error {
	_, err := s.collection.InsertOne(ctx, d)
	return err
}

// GetByID retrieves a delegate by id within an account.
func (s *MongoDelegateStore) GetByID(ctx context.Context, accountID, id string) (*models.Delegate, error) {
	var d models.Delegate
	err := s.collection.FindOne(ctx, bson.M{"_id": id, "account_id": accountID}).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// FindBySignature retrieves a delegate by its identity signature.
func (s *MongoDelegateStore) FindBySignature(ctx context.Context, accountID, hostName, ip string) (*models.Delegate, error) {
	filter := bson.M{"account_id": accountID, "host_name": hostName, "ip": ip}
	var d models.Delegate
	err := s.collection.FindOne(ctx, filter).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// ApplyStatusHeartBeat issues a single conditional update on the record. The
// heart beat field uses $max so a concurrent writer holding an older beat can
// never roll a newer one back.
func (s *MongoDelegateStore) ApplyStatusHeartBeat(ctx context.Context, accountID, id string, status models.DelegateStatus, heartBeatMillis int64) (*models.Delegate, error) {
	update := bson.M{}
	if status != "" {
		update["$set"] = bson.M{"status": status}
	}
	if heartBeatMillis > 0 {
		update["$max"] = bson.M{"last_heart_beat": heartBeatMillis}
	}
	if len(update) == 0 {
		return s.GetByID(ctx, accountID, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d models.Delegate
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": id, "account_id": accountID}, update, opts).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// DisableStale disables the record with the staleness check in the filter, so
// a heart beat that lands between the caller's scan and this write wins.
func (s *MongoDelegateStore) DisableStale(ctx context.Context, accountID, id string, cutoffMillis int64) (bool, error) {
	filter := bson.M{
		"_id":             id,
		"account_id":      accountID,
		"status":          models.DelegateStatusEnabled,
		"last_heart_beat": bson.M{"$lt": cutoffMillis},
	}
	res, err := s.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"status": models.DelegateStatusDisabled}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// List returns a page of delegates matching the request's equality filters,
// along with the total count independent of the page slice.
func (s *MongoDelegateStore) List(ctx context.Context, req models.PageRequest) (*models.DelegatePage, error) {
	filter := bson.M{}
	for name, value := range req.Filters {
		if field, ok := delegateFilterFields[name]; ok {
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

	delegates := make([]*models.Delegate, 0)
	if err = cursor.All(ctx, &delegates); err != nil {
		return nil, err
	}

	return &models.DelegatePage{
		PageResponse: models.PageResponse{Start: req.Start, PageSize: req.PageSize, Total: total},
		Delegates:    delegates,
	}, nil
}

// Delete removes the record and reports whether anything was removed.
func (s *MongoDelegateStore) Delete(ctx context.Context, accountID, id string) (bool, error) {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id, "account_id": accountID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// ListHeartBeatBefore returns ENABLED delegates gone silent before the cutoff.
func (s *MongoDelegateStore) ListHeartBeatBefore(ctx context.Context, cutoffMillis int64) ([]*models.Delegate, error) {
	filter := bson.M{
		"status":          models.DelegateStatusEnabled,
		"last_heart_beat": bson.M{"$lt": cutoffMillis},
	}
	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var delegates []*models.Delegate
	if err = cursor.All(ctx, &delegates); err != nil {
		return nil, err
	}
	return delegates, nil
}
