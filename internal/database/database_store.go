package database

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"time"
)

type DBStore struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewDatabaseStore() *DBStore {
	return &DBStore{collection: Documents, timeout: OperationTimeout}
}

func (ds *DBStore) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if ds.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ds.timeout)
}

func wrapError(op Op, publicID string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notFound(publicID)
	}
	if mongo.IsDuplicateKeyError(err) {
		return &OpError{Op: op, ID: publicID, Err: fmt.Errorf("unique key conflicts: %w", err)}
	}
	return &OpError{Op: op, ID: publicID, Err: fmt.Errorf("database operation failed: %w", err)}
}

func (ds *DBStore) GetDocument(ctx context.Context, publicID string) (*Document, error) {
	if publicID == "" {
		return nil, ErrPublicIDEmpty
	}
	ctx, cancel := ds.context(ctx)
	defer cancel()

	var doc Document
	startTime := time.Now()
	err := ds.collection.FindOne(ctx, bson.D{{Key: "public_id", Value: publicID}}).Decode(&doc)
	logger.DebugF("document query cost: %v", time.Since(startTime))
	if err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			logger.ErrorF("Could not get document with ID %s: %v", publicID, err)
		}
		return nil, wrapError(OpAccess, publicID, err)
	}
	return &doc, nil
}

func (ds *DBStore) CreateDocument(ctx context.Context) (*Document, error) {
	ctx, cancel := ds.context(ctx)
	defer cancel()

	now := time.Now().UTC()
	doc := &Document{PublicID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	result, err := ds.collection.InsertOne(ctx, doc)
	if err != nil {
		logger.ErrorF("Could not create document in database: %v", err)
		return nil, wrapError(OpCreate, "", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	logger.DebugF("Document created: public_id=%s, _id=%s", doc.PublicID, doc.ID.Hex())
	return doc, nil
}

func (ds *DBStore) UpdateDocument(ctx context.Context, publicID string, update DocumentUpdate) (*Document, error) {
	if publicID == "" {
		return nil, ErrPublicIDEmpty
	}
	ctx, cancel := ds.context(ctx)
	defer cancel()

	set := bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}
	if update.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *update.Title})
	}
	if update.Text != nil {
		set = append(set, bson.E{Key: "text", Value: *update.Text})
	}

	var doc Document
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := ds.collection.FindOneAndUpdate(ctx,
		bson.D{{Key: "public_id", Value: publicID}},
		bson.D{{Key: "$set", Value: set}},
		opts,
	).Decode(&doc)
	if err != nil {
		logger.ErrorF("Could not update document with ID %s: %v", publicID, err)
		return nil, wrapError(OpUpdate, publicID, err)
	}
	return &doc, nil
}

func (ds *DBStore) DeleteDocument(ctx context.Context, publicID string) (*Document, error) {
	if publicID == "" {
		return nil, ErrPublicIDEmpty
	}
	ctx, cancel := ds.context(ctx)
	defer cancel()

	var doc Document
	err := ds.collection.FindOneAndDelete(ctx, bson.D{{Key: "public_id", Value: publicID}}).Decode(&doc)
	if err != nil {
		logger.ErrorF("Could not delete document with ID %s: %v", publicID, err)
		return nil, wrapError(OpDelete, publicID, err)
	}
	logger.InfoF("Document deleted: public_id=%s", publicID)
	return &doc, nil
}

func (ds *DBStore) PurgeDocumentsOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	ctx, cancel := ds.context(ctx)
	defer cancel()

	cutoff := time.Now().UTC().Add(-age)
	result, err := ds.collection.DeleteMany(ctx, bson.D{{Key: "updatedAt", Value: bson.D{{Key: "$lt", Value: cutoff}}}})
	if err != nil {
		logger.ErrorF("Could not delete old documents: %v", err)
		return 0, &OpError{Op: OpPurge, Err: fmt.Errorf("database operation failed: %w", err)}
	}
	logger.InfoF("Deleted %d old documents", result.DeletedCount)
	return result.DeletedCount, nil
}
