package health

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

type fakeCheckable struct {
	err   error
	delay time.Duration
}

func (f fakeCheckable) HealthCheck(ctx context.Context) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

type fakeSequenceReader struct {
	err   error
	names []string
}

func (f *fakeSequenceReader) Current(_ context.Context, name string) (int64, error) {
	f.names = append(f.names, name)
	return 1, f.err
}

func staticChecker(name string, status Status) Checker {
	return NewCustomChecker(name, func(context.Context) (Status, string, error) {
		return status, "", nil
	})
}

func TestRegistry_CheckAggregates(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{name: "empty registry is healthy", statuses: nil, want: StatusHealthy},
		{name: "all healthy", statuses: []Status{StatusHealthy, StatusHealthy}, want: StatusHealthy},
		{name: "degraded wins over healthy", statuses: []Status{StatusHealthy, StatusDegraded}, want: StatusDegraded},
		{name: "unhealthy wins", statuses: []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for i, s := range tt.statuses {
				r.Register(staticChecker(string(rune('a'+i)), s))
			}
			result := r.Check(context.Background())
			if result.Status != tt.want {
				t.Fatalf("status = %s, want %s", result.Status, tt.want)
			}
			if len(result.Checks) != len(tt.statuses) {
				t.Fatalf("expected %d results, got %d", len(tt.statuses), len(result.Checks))
			}
			if result.IsHealthy() != (tt.want == StatusHealthy) {
				t.Fatalf("IsHealthy mismatch for %s", tt.want)
			}
		})
	}
}

func TestRegistry_OrderAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(staticChecker("sequence", StatusHealthy))
	r.Register(staticChecker("mongodb", StatusHealthy))
	r.Register(staticChecker("redis", StatusHealthy))

	if got := r.List(); !reflect.DeepEqual(got, []string{"mongodb", "redis", "sequence"}) {
		t.Fatalf("List() = %v", got)
	}
	result := r.Check(context.Background())
	for i, want := range []string{"mongodb", "redis", "sequence"} {
		if result.Checks[i].Name != want {
			t.Fatalf("check %d = %s, want %s", i, result.Checks[i].Name, want)
		}
	}

	if _, err := r.CheckOne(context.Background(), "kafka"); err == nil {
		t.Fatal("expected error for unknown check")
	}
	r.Unregister("redis")
	if _, err := r.CheckOne(context.Background(), "redis"); err == nil {
		t.Fatal("expected unregistered check to be gone")
	}
}

func TestAdapterChecker(t *testing.T) {
	healthy := NewMongoDBChecker(fakeCheckable{}).Check(context.Background())
	if healthy.Status != StatusHealthy || healthy.Name != "mongodb" || healthy.Message != "OK" {
		t.Fatalf("unexpected result: %+v", healthy)
	}

	failed := NewRedisChecker(fakeCheckable{err: errors.New("connection refused")}).Check(context.Background())
	if failed.Status != StatusUnhealthy || failed.Error != "connection refused" || failed.Message != "" {
		t.Fatalf("unexpected result: %+v", failed)
	}

	slow := NewAdapterChecker("slow", fakeCheckable{delay: time.Second}, 10*time.Millisecond).Check(context.Background())
	if slow.Status != StatusUnhealthy || !strings.Contains(slow.Error, "deadline") {
		t.Fatalf("expected timeout, got %+v", slow)
	}
}

func TestSequenceChecker(t *testing.T) {
	reader := &fakeSequenceReader{}
	result := NewSequenceChecker(reader).Check(context.Background())
	if result.Status != StatusHealthy || len(reader.names) != 1 || reader.names[0] != sequenceProbe {
		t.Fatalf("unexpected result %+v (names %v)", result, reader.names)
	}

	failing := NewSequenceChecker(&fakeSequenceReader{err: errors.New("not authorized")}).Check(context.Background())
	if failing.Status != StatusUnhealthy || failing.Error != "not authorized" {
		t.Fatalf("unexpected result %+v", failing)
	}
}

type fakeServer struct {
	version string
	err     error
}

func (f fakeServer) ServerVersion(context.Context) (string, error) { return f.version, f.err }

func TestServerVersionChecker(t *testing.T) {
	tests := []struct {
		name   string
		server fakeServer
		want   Status
	}{
		{name: "current server", server: fakeServer{version: "7.0.5"}, want: StatusHealthy},
		{name: "server without transactions", server: fakeServer{version: "3.6.23"}, want: StatusDegraded},
		{name: "unparsable version", server: fakeServer{version: "7.0"}, want: StatusDegraded},
		{name: "unreachable", server: fakeServer{err: errors.New("no reachable servers")}, want: StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewServerVersionChecker(tt.server).Check(context.Background())
			if result.Status != tt.want {
				t.Fatalf("status = %s, want %s (%+v)", result.Status, tt.want, result)
			}
		})
	}
}

func TestRegistry_ChecksRunConcurrently(t *testing.T) {
	// Each check waits for the other one to start, so a sequential run would time out.
	started := make(chan struct{}, 2)
	waitForPeer := func(ctx context.Context) (Status, string, error) {
		started <- struct{}{}
		for len(started) < 2 {
			select {
			case <-ctx.Done():
				return StatusUnhealthy, "", ctx.Err()
			case <-time.After(time.Millisecond):
			}
		}
		return StatusHealthy, "", nil
	}

	r := NewRegistry()
	r.Register(NewCheck("left", time.Second, waitForPeer))
	r.Register(NewCheck("right", time.Second, waitForPeer))

	if result := r.Check(context.Background()); !result.IsHealthy() {
		t.Fatalf("expected healthy, got %+v", result)
	}
}

func TestCheck_ErrorKeepsReturnedStatus(t *testing.T) {
	c := NewCustomChecker("version", func(context.Context) (Status, string, error) {
		return StatusDegraded, "old server", errors.New("unparsable")
	})
	got := c.Check(context.Background())
	if got.Status != StatusDegraded || got.Message != "old server" || got.Error != "unparsable" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestWorse(t *testing.T) {
	for _, tt := range []struct{ a, b, want Status }{
		{StatusHealthy, StatusHealthy, StatusHealthy},
		{StatusHealthy, StatusDegraded, StatusDegraded},
		{StatusUnhealthy, StatusDegraded, StatusUnhealthy},
		{StatusDegraded, StatusUnhealthy, StatusUnhealthy},
	} {
		if got := worse(tt.a, tt.b); got != tt.want {
			t.Errorf("worse(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}
