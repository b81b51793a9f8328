// Package mongodb wraps the MongoDB driver client the engine and its repositories run on.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vbouzoukos/vbmongoengine/pkg/observability/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultTimeout     = 5 * time.Second
	healthCheckTimeout = 2 * time.Second
)

// ErrClosed is returned by calls made after the owning adapter was closed.
var ErrClosed = errors.New("mongodb adapter is closed")

// Config holds MongoDB adapter configuration.
type Config struct {
	URL      string
	Database string
	// ConnectTimeout bounds connect and the first ping. Zero means 5s.
	ConnectTimeout time.Duration
	// OperationTimeout bounds each call whose context has no deadline. Zero means 5s.
	OperationTimeout time.Duration
}

func (c *Config) applyDefaults() error {
	switch {
	case c.URL == "":
		return errors.New("mongodb URL is required")
	case c.Database == "":
		return errors.New("mongodb database is required")
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultTimeout
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultTimeout
	}
	return nil
}

// connection is the client shared by an adapter and the adapters derived from it.
type connection struct {
	client *mongo.Client
	mu     sync.RWMutex
	closed bool
}

func (c *connection) check() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// markClosed reports whether this call closed the connection.
func (c *connection) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

// MongoDBAdapter runs driver calls against one database, applying the operation timeout.
type MongoDBAdapter struct {
	conn     *connection
	client   *mongo.Client
	database string
	logger   logger.Logger
	timeout  time.Duration
	// owner is false for adapters derived with ForDatabase. Only the owner disconnects.
	owner bool
}

// NewMongoDBAdapter connects to cfg.URL and pings the primary. It creates no collections or
// indexes.
func NewMongoDBAdapter(cfg Config, log logger.Logger) (*MongoDBAdapter, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	if log == nil {
		log = logger.NewNop()
	}
	log = log.With("database", cfg.Database)
	log.Info("mongodb connected")
	return &MongoDBAdapter{
		conn:     &connection{client: client},
		client:   client,
		database: cfg.Database,
		logger:   log,
		timeout:  cfg.OperationTimeout,
		owner:    true,
	}, nil
}

// ForDatabase returns an adapter on another database sharing this adapter's client.
// Closing the derived adapter does not disconnect the client.
func (a *MongoDBAdapter) ForDatabase(name string) *MongoDBAdapter {
	derived := *a
	derived.database = name
	derived.logger = a.log().With("database", name)
	derived.owner = false
	return &derived
}

// log is the adapter logger, a no-op one on a zero-value adapter.
func (a *MongoDBAdapter) log() logger.Logger {
	if a.logger == nil {
		return logger.NewNop()
	}
	return a.logger
}

func (a *MongoDBAdapter) Client() *mongo.Client {
	return a.client
}

// DatabaseName is the name of the bound database.
func (a *MongoDBAdapter) DatabaseName() string {
	return a.database
}

func (a *MongoDBAdapter) Database() *mongo.Database {
	return a.client.Database(a.database)
}

func (a *MongoDBAdapter) Collection(name string) *mongo.Collection {
	return a.Database().Collection(name)
}

func (a *MongoDBAdapter) Ping(ctx context.Context) error {
	if err := a.conn.check(); err != nil {
		return err
	}
	return a.client.Ping(ctx, readpref.Primary())
}

// HealthCheck pings the primary within healthCheckTimeout.
func (a *MongoDBAdapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := a.Ping(ctx); err != nil {
		a.log().Warn("mongodb health check failed", "error", err)
		return fmt.Errorf("mongodb health check: %w", err)
	}
	return nil
}

// Close disconnects the client. It is a no-op on derived adapters and on repeated calls.
func (a *MongoDBAdapter) Close() error {
	if !a.owner || !a.conn.markClosed() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongodb: %w", err)
	}
	a.log().Info("mongodb connection closed")
	return nil
}

// Find decodes every document matching filter into results, a pointer to a slice.
// Paging comes from opts only.
func (a *MongoDBAdapter) Find(ctx context.Context, collection string, filter interface{}, opts *options.FindOptions, results interface{}) error {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	cursor, err := a.Collection(collection).Find(opCtx, filter, opts)
	if err != nil {
		return err
	}
	return cursor.All(opCtx, results)
}

func (a *MongoDBAdapter) FindOne(ctx context.Context, collection string, filter interface{}, result interface{}) error {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).FindOne(opCtx, filter).Decode(result)
}

func (a *MongoDBAdapter) CountDocuments(ctx context.Context, collection string, filter interface{}) (int64, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).CountDocuments(opCtx, filter)
}

func (a *MongoDBAdapter) InsertOne(ctx context.Context, collection string, doc interface{}) (*mongo.InsertOneResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).InsertOne(opCtx, doc)
}

// InsertMany inserts docs in order, stopping at the first failure.
func (a *MongoDBAdapter) InsertMany(ctx context.Context, collection string, docs []interface{}) (*mongo.InsertManyResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).InsertMany(opCtx, docs, options.InsertMany().SetOrdered(true))
}

func (a *MongoDBAdapter) ReplaceOne(ctx context.Context, collection string, filter, replacement interface{}, upsert bool) (*mongo.UpdateResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).ReplaceOne(opCtx, filter, replacement, options.Replace().SetUpsert(upsert))
}

// BulkWrite sends models in one call. Failed operations are not retried.
func (a *MongoDBAdapter) BulkWrite(ctx context.Context, collection string, models []mongo.WriteModel, ordered bool) (*mongo.BulkWriteResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).BulkWrite(opCtx, models, options.BulkWrite().SetOrdered(ordered))
}

func (a *MongoDBAdapter) DeleteOne(ctx context.Context, collection string, filter interface{}) (*mongo.DeleteResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).DeleteOne(opCtx, filter)
}

func (a *MongoDBAdapter) DeleteMany(ctx context.Context, collection string, filter interface{}) (*mongo.DeleteResult, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Collection(collection).DeleteMany(opCtx, filter)
}

// IndexNames lists the index names of a collection.
func (a *MongoDBAdapter) IndexNames(ctx context.Context, collection string) ([]string, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	cursor, err := a.Collection(collection).Indexes().List(opCtx)
	if err != nil {
		return nil, err
	}
	var specs []bson.M
	if err := cursor.All(opCtx, &specs); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		if name, ok := spec["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// CreateIndex creates an ascending index on field unless an index called name exists. An
// existing index is not compared with the requested definition.
func (a *MongoDBAdapter) CreateIndex(ctx context.Context, collection, name, field string, unique bool) (bool, error) {
	names, err := a.IndexNames(ctx, collection)
	if err != nil {
		return false, err
	}
	for _, existing := range names {
		if existing == name {
			return false, nil
		}
	}

	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	_, err = a.Collection(collection).Indexes().CreateOne(opCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetName(name).SetUnique(unique),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureCollection creates the collection unless it already exists. It reports whether it was created.
func (a *MongoDBAdapter) EnsureCollection(ctx context.Context, name string) (bool, error) {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	names, err := a.Database().ListCollectionNames(opCtx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return false, err
	}
	if len(names) > 0 {
		return false, nil
	}
	if err := a.Database().CreateCollection(opCtx, name); err != nil {
		return false, err
	}
	return true, nil
}

// DropDatabase drops the bound database.
func (a *MongoDBAdapter) DropDatabase(ctx context.Context) error {
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	return a.Database().Drop(opCtx)
}

// ServerVersion returns the version reported by the server's buildInfo command.
func (a *MongoDBAdapter) ServerVersion(ctx context.Context) (string, error) {
	if err := a.conn.check(); err != nil {
		return "", err
	}
	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()
	var info struct {
		Version string `bson:"version"`
	}
	if err := a.client.Database("admin").RunCommand(opCtx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&info); err != nil {
		return "", fmt.Errorf("buildInfo: %w", err)
	}
	return info.Version, nil
}

// StartSession starts a client session. Callers end it.
func (a *MongoDBAdapter) StartSession() (mongo.Session, error) {
	if err := a.conn.check(); err != nil {
		return nil, err
	}
	return a.client.StartSession()
}

// withOperationTimeout keeps a caller deadline and otherwise applies the adapter timeout.
func (a *MongoDBAdapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}
