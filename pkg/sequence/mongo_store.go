package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/vbouzoukos/vbmongoengine/pkg/entity"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/logger"
	"github.com/vbouzoukos/vbmongoengine/pkg/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// CollectionName is the collection holding the counters.
	CollectionName = "AutoIncrement"
	// NameIndex is the unique index on the counter name.
	NameIndex = "AutoIncrementCollection"

	nameField = "collectionName"
)

// MongoStore keeps counters as documents, one per name. Advance reads then writes, so it
// relies on the Generator lock and is only safe within a single process.
type MongoStore struct {
	repo *repository.Repository[Sequence]

	mu      sync.Mutex
	indexed bool
}

// Mapping is the entity mapping of Sequence documents.
func Mapping() entity.Mapping[Sequence] {
	return entity.Mapping[Sequence]{
		Collection: CollectionName,
		Identity: entity.Field(entity.IDField,
			func(s *Sequence) primitive.ObjectID { return s.ID },
			func(s *Sequence, id primitive.ObjectID) { s.ID = id },
		),
		Indexes: []entity.Index{{Name: NameIndex, Field: nameField, Unique: true}},
	}
}

// NewMongoStore creates a store over the counters collection.
func NewMongoStore(collection repository.Collection[Sequence], log logger.Logger) (*MongoStore, error) {
	repo, err := repository.New[Sequence](collection, Mapping(), repository.Options{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("sequence store: %w", err)
	}
	return &MongoStore{repo: repo}, nil
}

// ensureIndex installs the unique name index on first use. A failed attempt is retried by the
// next call.
func (s *MongoStore) ensureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexed {
		return nil
	}
	if err := s.repo.EnsureIndexes(ctx); err != nil {
		return err
	}
	s.indexed = true
	return nil
}

func (s *MongoStore) lookup(ctx context.Context, name string) (*Sequence, error) {
	page, err := s.repo.CreateFindRequestPaged(1, 1).Find(nameField, name).Execute(ctx)
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	return &page.Items[0], nil
}

// Advance returns the current value of name and stores the value after it.
func (s *MongoStore) Advance(ctx context.Context, name string) (int64, error) {
	if err := s.ensureIndex(ctx); err != nil {
		return 0, err
	}
	seq, err := s.lookup(ctx, name)
	if err != nil {
		return 0, err
	}
	if seq == nil {
		if err := s.repo.Store(ctx, &Sequence{Name: name, Value: 2}); err != nil {
			return 0, err
		}
		return 1, nil
	}

	issued := seq.Value
	seq.Value++
	if _, err := s.repo.Replace(ctx, seq); err != nil {
		return 0, err
	}
	return issued, nil
}

// Reset stores 1 as the next value of name.
func (s *MongoStore) Reset(ctx context.Context, name string) error {
	if err := s.ensureIndex(ctx); err != nil {
		return err
	}
	seq, err := s.lookup(ctx, name)
	if err != nil {
		return err
	}
	if seq == nil {
		return s.repo.Store(ctx, &Sequence{Name: name, Value: 1})
	}
	seq.Value = 1
	_, err = s.repo.Replace(ctx, seq)
	return err
}

// Current returns the next value name would issue, or 1 for an unknown name.
func (s *MongoStore) Current(ctx context.Context, name string) (int64, error) {
	seq, err := s.lookup(ctx, name)
	if err != nil {
		return 0, err
	}
	if seq == nil {
		return 1, nil
	}
	return seq.Value, nil
}
