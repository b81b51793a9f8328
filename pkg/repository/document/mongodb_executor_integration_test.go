package document

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vbouzoukos/vbmongoengine/pkg/criteria"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/logger"
	"github.com/vbouzoukos/vbmongoengine/pkg/repository"
	mongostore "github.com/vbouzoukos/vbmongoengine/pkg/store/mongodb"
	"github.com/vbouzoukos/vbmongoengine/pkg/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TestMongoDBExecutor_Integration runs the executor against a real MongoDB server.
func TestMongoDBExecutor_Integration(t *testing.T) {
	url := testutil.StartMongo(t)
	ctx := context.Background()

	adapter, err := mongostore.NewMongoDBAdapter(mongostore.Config{
		URL:              url,
		Database:         "executor_it",
		OperationTimeout: 10 * time.Second,
	}, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}
	defer adapter.Close()

	exec, err := NewMongoDBExecutor[item](adapter, "items")
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}

	t.Run("InsertAndFind", func(t *testing.T) {
		for _, it := range []item{{Code: "b", Price: 2}, {Code: "a", Price: 1}, {Code: "c", Price: 3}} {
			it := it
			if _, err := exec.InsertOne(ctx, &it); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
		order := criteria.CompileSort([]criteria.SortKey{criteria.Desc("price")})
		got, err := exec.Find(ctx, criteria.Gt("price", 1), order, 0, 1)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(got) != 1 || got[0].Code != "c" {
			t.Fatalf("unexpected result: %+v", got)
		}
		n, err := exec.Count(ctx, criteria.All())
		if err != nil || n != 3 {
			t.Fatalf("count: n=%d err=%v", n, err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := exec.FindOne(ctx, criteria.Eq("code", "zzz")); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UniqueIndexAndBatchError", func(t *testing.T) {
		created, err := exec.CreateIndex(ctx, repository.IndexSpec{Name: "itemCode", Field: "code", Unique: true})
		if err != nil || !created {
			t.Fatalf("create index: created=%v err=%v", created, err)
		}
		created, err = exec.CreateIndex(ctx, repository.IndexSpec{Name: "itemCode", Field: "code", Unique: true})
		if err != nil || created {
			t.Fatalf("second create must be a no-op: created=%v err=%v", created, err)
		}

		ops := []repository.WriteOp[item]{
			repository.InsertOp(&item{ID: primitive.NewObjectID(), Code: "d"}),
			repository.InsertOp(&item{ID: primitive.NewObjectID(), Code: "a"}),
			repository.InsertOp(&item{ID: primitive.NewObjectID(), Code: "e"}),
		}
		_, err = exec.BulkWrite(ctx, ops, true)
		var batchErr *repository.BatchWriteError
		if !errors.As(err, &batchErr) || batchErr.Index != 1 || batchErr.Applied != 1 {
			t.Fatalf("expected batch error at operation 1, got %v", err)
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			t.Fatalf("expected ErrDuplicateKey cause, got %v", err)
		}
	})

	t.Run("UpsertReplaceAndDelete", func(t *testing.T) {
		fresh := item{ID: primitive.NewObjectID(), Code: "upserted"}
		res, err := exec.BulkWrite(ctx, []repository.WriteOp[item]{
			repository.UpsertReplaceOp(criteria.Eq("_id", fresh.ID), &fresh),
		}, true)
		if err != nil || res.Upserted != 1 {
			t.Fatalf("upsert: res=%+v err=%v", res, err)
		}
		n, err := exec.DeleteMany(ctx, criteria.All())
		if err != nil || n == 0 {
			t.Fatalf("delete many: n=%d err=%v", n, err)
		}
	})

	if err := adapter.DropDatabase(ctx); err != nil {
		t.Logf("Failed to drop database: %v", err)
	}
}
