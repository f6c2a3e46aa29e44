package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
)

// Document pairs a decoded entity with its Firestore metadata.
type Document[T any] struct {
	ID         string
	Data       T
	UpdateTime time.Time
}

// BaseRepository binds a collection name to an entity type. Documents are
// decoded straight into T through Firestore struct tags; anything beyond a
// point read (queries, transactional mutations) goes through DocumentRef and
// the raw client.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
}

// NewBaseRepository returns typed access to a single collection backed by the
// lazily initialised provider client.
func NewBaseRepository[T any](provider *Provider, collection string) *BaseRepository[T] {
	return &BaseRepository[T]{provider: provider, collection: collection}
}

// DocumentRef resolves the document reference for transactional reads and writes.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, WrapError(r.collection+".ref", err)
	}
	return client.Collection(r.collection).Doc(id), nil
}

// Get fetches a single document and decodes it into T.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.collection+".get", err)
	}

	snap, err := client.Collection(r.collection).Doc(id).Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.collection+".get", err)
	}

	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, WrapError(r.collection+".decode", err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: data, UpdateTime: snap.UpdateTime}, nil
}
