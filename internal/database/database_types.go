package database

import (
	"context"
	"errors"
	"fmt"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

const DocumentCollectionName = "documents"

var (
	ErrDocumentNotFound = errors.New("no document found with that ID")
	ErrPublicIDEmpty    = errors.New("public_id is empty")
)

// Document is the durable form of a co-edited document. PublicID is the only
// identifier exposed to clients; ID stays inside the storage layer.
type Document struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	PublicID  string             `bson:"public_id" json:"public_id"`
	Title     string             `bson:"title" json:"title"`
	Text      string             `bson:"text" json:"text"`
	CreatedAt time.Time          `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updated_at"`
}

// DocumentUpdate is a partial update; nil fields are left untouched.
type DocumentUpdate struct {
	Title *string
	Text  *string
}

func (u DocumentUpdate) apply(doc *Document) {
	if u.Title != nil {
		doc.Title = *u.Title
	}
	if u.Text != nil {
		doc.Text = *u.Text
	}
}

type DocumentStore interface {
	GetDocument(ctx context.Context, publicID string) (*Document, error)
	CreateDocument(ctx context.Context) (*Document, error)
	UpdateDocument(ctx context.Context, publicID string, update DocumentUpdate) (*Document, error)
	DeleteDocument(ctx context.Context, publicID string) (*Document, error)
	PurgeDocumentsOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

type Op string

const (
	OpAccess Op = "access"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpPurge  Op = "purge"
)

// OpError reports a storage failure other than a missing document.
type OpError struct {
	Op  Op
	ID  string
	Err error
}

func (e *OpError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("could not %s document: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("could not %s document %s: %v", e.Op, e.ID, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func notFound(publicID string) error {
	return fmt.Errorf("document %s: %w", publicID, ErrDocumentNotFound)
}
