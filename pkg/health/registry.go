// Package health runs named checks against the MongoDB deployment and the sequence store.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the outcome of a check. Degraded means usable with reduced features.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

var severity = map[Status]int{
	StatusHealthy:   0,
	StatusDegraded:  1,
	StatusUnhealthy: 2,
}

// worse returns the more severe of a and b.
func worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

type CheckResult struct {
	Name      string        `json:"name" yaml:"name"`
	Status    Status        `json:"status" yaml:"status"`
	Message   string        `json:"message,omitempty" yaml:"message,omitempty"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Checker is a named check. Check never fails: failures are reported in the result.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// AggregatedResult is the outcome of every registered check. Status is the worst one.
type AggregatedResult struct {
	Status    Status        `json:"status" yaml:"status"`
	Checks    []CheckResult `json:"checks" yaml:"checks"`
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

func (r AggregatedResult) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// Registry holds checks by name.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// Register adds checker, replacing any check of the same name.
func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	r.checkers[checker.Name()] = checker
	r.mu.Unlock()
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.checkers, name)
	r.mu.Unlock()
}

// List returns the check names in order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) snapshot() []Checker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Checker, 0, len(r.checkers))
	for _, c := range r.checkers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Check runs every check concurrently and returns the results ordered by name.
func (r *Registry) Check(ctx context.Context) AggregatedResult {
	checkers := r.snapshot()
	start := time.Now()

	results := make([]CheckResult, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = c.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusHealthy
	for _, res := range results {
		overall = worse(overall, res.Status)
	}
	return AggregatedResult{
		Status:    overall,
		Checks:    results,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
}

// CheckOne runs the check called name.
func (r *Registry) CheckOne(ctx context.Context, name string) (CheckResult, error) {
	r.mu.RLock()
	c, ok := r.checkers[name]
	r.mu.RUnlock()
	if !ok {
		return CheckResult{}, fmt.Errorf("health check not found: %s", name)
	}
	return c.Check(ctx), nil
}
