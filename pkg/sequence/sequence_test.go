package sequence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/vbouzoukos/vbmongoengine/pkg/repository/document"
	redisstore "github.com/vbouzoukos/vbmongoengine/pkg/store/redis"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newMemoryGenerator(t *testing.T) (*Generator, *document.MemoryExecutor[Sequence]) {
	t.Helper()
	coll := document.NewMemoryExecutor[Sequence](CollectionName)
	store, err := NewMongoStore(coll, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return NewGenerator(store, nil), coll
}

func TestGenerator_NextStartsAtOneAndIncrements(t *testing.T) {
	g, coll := newMemoryGenerator(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := g.Next(ctx, "Product")
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got != want {
			t.Fatalf("next = %d, want %d", got, want)
		}
	}
	if got, _ := g.Next(ctx, "Order"); got != 1 {
		t.Fatalf("independent sequence starts at %d, want 1", got)
	}
	if coll.Len() != 2 {
		t.Fatalf("expected one document per sequence, got %d", coll.Len())
	}
	if cur, err := g.Current(ctx, "Product"); err != nil || cur != 4 {
		t.Fatalf("current = %d, %v; want 4", cur, err)
	}
}

func TestGenerator_Reset(t *testing.T) {
	g, _ := newMemoryGenerator(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := g.Next(ctx, "Product"); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	if err := g.Reset(ctx, "Product"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got, _ := g.Next(ctx, "Product"); got != 1 {
		t.Fatalf("after reset next = %d, want 1", got)
	}

	if err := g.Reset(ctx, "Fresh"); err != nil {
		t.Fatalf("reset unknown sequence: %v", err)
	}
	if got, _ := g.Next(ctx, "Fresh"); got != 1 {
		t.Fatalf("after reset of a new sequence next = %d, want 1", got)
	}
}

func TestGenerator_InvalidName(t *testing.T) {
	g, _ := newMemoryGenerator(t)
	if _, err := g.Next(context.Background(), " "); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if err := g.Reset(context.Background(), ""); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestGenerator_ConcurrentNextIssuesDistinctValues(t *testing.T) {
	g, _ := newMemoryGenerator(t)
	const n = 50

	var wg sync.WaitGroup
	values := make([]int64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			values[i], errs[i] = g.Next(context.Background(), "Product")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i, v := range values {
		if v != int64(i+1) {
			t.Fatalf("values are not 1..%d: %v", n, values)
		}
	}
}

type failingStore struct {
	Store
	fail bool
}

func (s *failingStore) Advance(ctx context.Context, name string) (int64, error) {
	if s.fail {
		return 0, errors.New("store down")
	}
	return s.Store.Advance(ctx, name)
}

func TestGenerator_StoreFailureReleasesLock(t *testing.T) {
	coll := document.NewMemoryExecutor[Sequence](CollectionName)
	inner, err := NewMongoStore(coll, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	store := &failingStore{Store: inner, fail: true}
	g := NewGenerator(store, nil)

	if _, err := g.Next(context.Background(), "Product"); err == nil {
		t.Fatal("expected store failure")
	}
	store.fail = false
	if got, err := g.Next(context.Background(), "Product"); err != nil || got != 1 {
		t.Fatalf("next after failure = %d, %v", got, err)
	}
}

func TestGenerator_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	g, _ := newMemoryGenerator(t)
	if _, err := g.Next(context.Background(), "Product"); err != nil {
		t.Fatalf("next: %v", err)
	}

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() == "DB db.sequence Product" {
			found = true
			if span.Status().Code != codes.Ok {
				t.Fatalf("span status = %v, want Ok", span.Status().Code)
			}
		}
	}
	if !found {
		t.Fatal("expected a sequence span")
	}
}

// TestProperty_NextIsGapFree checks that n calls to Next on a fresh sequence issue exactly 1..n.
func TestProperty_NextIsGapFree(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("values are consecutive from 1", prop.ForAll(
		func(n int) bool {
			coll := document.NewMemoryExecutor[Sequence](CollectionName)
			store, err := NewMongoStore(coll, nil)
			if err != nil {
				return false
			}
			g := NewGenerator(store, nil)
			for want := int64(1); want <= int64(n); want++ {
				got, err := g.Next(context.Background(), "seq")
				if err != nil || got != want {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}

type fakeCounter struct {
	values map[string]int64
}

func (c *fakeCounter) Incr(_ context.Context, key string) (int64, error) {
	c.values[key]++
	return c.values[key], nil
}

func (c *fakeCounter) SetInt(_ context.Context, key string, value int64) error {
	c.values[key] = value
	return nil
}

func (c *fakeCounter) GetInt(_ context.Context, key string) (int64, error) {
	v, ok := c.values[key]
	if !ok {
		return 0, redisstore.ErrKeyNotFound
	}
	return v, nil
}

func TestRedisStore_KeysAndReset(t *testing.T) {
	counter := &fakeCounter{values: map[string]int64{}}
	g := NewGenerator(NewRedisStore(counter, ""), nil)
	ctx := context.Background()

	if cur, err := g.Current(ctx, "Product"); err != nil || cur != 1 {
		t.Fatalf("current of unknown counter = %d, %v; want 1", cur, err)
	}
	for want := int64(1); want <= 2; want++ {
		if got, err := g.Next(ctx, "Product"); err != nil || got != want {
			t.Fatalf("next = %d, %v; want %d", got, err, want)
		}
	}
	if _, ok := counter.values[DefaultKeyPrefix+"Product"]; !ok {
		t.Fatalf("expected key under %q, got %v", DefaultKeyPrefix, counter.values)
	}
	if err := g.Reset(ctx, "Product"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if cur, err := g.Current(ctx, "Product"); err != nil || cur != 1 {
		t.Fatalf("current after reset = %d, %v", cur, err)
	}
	if got, _ := g.Next(ctx, "Product"); got != 1 {
		t.Fatalf("after reset next = %d, want 1", got)
	}
}
