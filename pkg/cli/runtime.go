package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/vbouzoukos/vbmongoengine/pkg/config"
	"github.com/vbouzoukos/vbmongoengine/pkg/engine"
	"github.com/vbouzoukos/vbmongoengine/pkg/health"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/logger"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/metrics"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/tracing"
	"github.com/vbouzoukos/vbmongoengine/pkg/sequence"
	mongostore "github.com/vbouzoukos/vbmongoengine/pkg/store/mongodb"
	redisstore "github.com/vbouzoukos/vbmongoengine/pkg/store/redis"
	"github.com/vbouzoukos/vbmongoengine/pkg/version"
)

// Runtime is the set of connected components a command works with.
type Runtime struct {
	Config  *config.Config
	Logger  logger.Logger
	Engine  *engine.Engine
	Mongo   *mongostore.MongoDBAdapter
	Redis   *redisstore.RedisAdapter // nil unless the redis sequence backend is selected
	Metrics *metrics.Registry        // nil when metrics are disabled
	Tracer  *tracing.TracerProvider
}

// OpenRuntime connects to MongoDB, and to Redis when it holds the counters, and builds the engine.
func OpenRuntime(ctx context.Context, cfg *config.Config, log logger.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: log}

	tp, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: version.Current(cfg.Service.Name).Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.TracingEndpoint,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Enabled:        cfg.Observability.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}
	rt.Tracer = tp

	if cfg.Observability.MetricsEnabled {
		rt.Metrics = metrics.NewRegistry()
	}

	mongo, err := mongostore.NewMongoDBAdapter(mongostore.Config{
		URL:              cfg.MongoDB.URL,
		Database:         cfg.MongoDB.Database,
		ConnectTimeout:   cfg.MongoDB.ConnectTimeout,
		OperationTimeout: cfg.MongoDB.OperationTimeout,
	}, log)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	rt.Mongo = mongo

	var opts []engine.Option
	if cfg.Sequence.Backend == config.SequenceBackendRedis {
		redis, err := redisstore.NewRedisAdapter(redisstore.Config{
			URL:              cfg.Sequence.Redis.URL,
			MaxConns:         cfg.Sequence.Redis.MaxConns,
			OperationTimeout: cfg.Sequence.Redis.OperationTimeout,
		}, log)
		if err != nil {
			_ = rt.Close(ctx)
			return nil, err
		}
		rt.Redis = redis
		opts = append(opts, engine.WithSequenceStore(sequence.NewRedisStore(redis, cfg.Sequence.Redis.KeyPrefix)))
	}

	e, err := engine.New(mongo, engine.Config{
		ResultsLimit:     cfg.MongoDB.ResultsLimit,
		SequenceDatabase: cfg.MongoDB.SequenceDatabase,
	}, log, opts...)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	rt.Engine = e

	log.Debug("runtime opened", "database", cfg.MongoDB.Database, "sequence_backend", cfg.Sequence.Backend)
	return rt, nil
}

// HealthRegistry returns the checks covering every component of the runtime.
func (rt *Runtime) HealthRegistry() *health.Registry {
	reg := health.NewRegistry()
	reg.Register(health.NewMongoDBChecker(rt.Mongo))
	reg.Register(health.NewServerVersionChecker(rt.Mongo))
	reg.Register(health.NewSequenceChecker(rt.Engine.SequenceGenerator()))
	if rt.Redis != nil {
		reg.Register(health.NewRedisChecker(rt.Redis))
	}
	return reg
}

// Close releases the connections and flushes pending spans.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	switch {
	case rt.Engine != nil:
		errs = append(errs, rt.Engine.Close())
	case rt.Mongo != nil:
		errs = append(errs, rt.Mongo.Close())
	}
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	if rt.Tracer != nil {
		errs = append(errs, rt.Tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
