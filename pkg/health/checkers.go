package health

import (
	"context"
	"fmt"
	"time"

	"github.com/vbouzoukos/vbmongoengine/pkg/version"
)

const (
	MongoDBCheckTimeout  = 5 * time.Second
	RedisCheckTimeout    = 3 * time.Second
	SequenceCheckTimeout = 5 * time.Second
)

// sequenceProbe is the sequence read by the sequence check. Reading it creates nothing.
const sequenceProbe = "healthcheck"

// CheckFunc reports a status with an optional message. A non-nil error is copied into
// CheckResult.Error and its status is kept as returned.
type CheckFunc func(ctx context.Context) (Status, string, error)

// Check is a Checker built from a CheckFunc.
type Check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc
}

var _ Checker = (*Check)(nil)

// NewCheck creates a check. A positive timeout bounds every run.
func NewCheck(name string, timeout time.Duration, fn CheckFunc) *Check {
	return &Check{name: name, timeout: timeout, fn: fn}
}

// NewCustomChecker creates a check without its own timeout.
func NewCustomChecker(name string, fn CheckFunc) *Check {
	return NewCheck(name, 0, fn)
}

func (c *Check) Name() string { return c.name }

func (c *Check) Check(ctx context.Context) CheckResult {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	status, message, err := c.fn(ctx)
	res := CheckResult{
		Name:      c.name,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// Checkable is implemented by the store adapters.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// SequenceReader is the part of the sequence generator the sequence check needs.
type SequenceReader interface {
	Current(ctx context.Context, name string) (int64, error)
}

// ServerVersioner reports the MongoDB server version.
type ServerVersioner interface {
	ServerVersion(ctx context.Context) (string, error)
}

// NewAdapterChecker reports unhealthy when adapter.HealthCheck fails within timeout.
// A zero timeout means 5s.
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *Check {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return NewCheck(name, timeout, func(ctx context.Context) (Status, string, error) {
		if err := adapter.HealthCheck(ctx); err != nil {
			return StatusUnhealthy, "", err
		}
		return StatusHealthy, "OK", nil
	})
}

func NewMongoDBChecker(adapter Checkable) *Check {
	return NewAdapterChecker("mongodb", adapter, MongoDBCheckTimeout)
}

func NewRedisChecker(adapter Checkable) *Check {
	return NewAdapterChecker("redis", adapter, RedisCheckTimeout)
}

// NewSequenceChecker reads a probe sequence, so the sequence collection or keys must be
// readable and not only the server reachable.
func NewSequenceChecker(reader SequenceReader) *Check {
	return NewCheck("sequence", SequenceCheckTimeout, func(ctx context.Context) (Status, string, error) {
		if _, err := reader.Current(ctx, sequenceProbe); err != nil {
			return StatusUnhealthy, "", err
		}
		return StatusHealthy, "OK", nil
	})
}

// NewServerVersionChecker reports degraded when the server is too old for transactions.
// Everything but transactions still works on such a server.
func NewServerVersionChecker(server ServerVersioner) *Check {
	return NewCheck("mongodb_version", MongoDBCheckTimeout, func(ctx context.Context) (Status, string, error) {
		v, err := server.ServerVersion(ctx)
		if err != nil {
			return StatusUnhealthy, "", err
		}
		ok, err := version.SupportsTransactions(v)
		switch {
		case err != nil:
			return StatusDegraded, "", err
		case !ok:
			return StatusDegraded, fmt.Sprintf("server %s predates transactions (%s required)", v, version.MinTransactionServer), nil
		}
		return StatusHealthy, "server " + v, nil
	})
}
