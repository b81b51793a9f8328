package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/vbouzoukos/vbmongoengine/pkg/health"
	"github.com/vbouzoukos/vbmongoengine/pkg/testutil"
)

func TestCommands_Integration(t *testing.T) {
	url := testutil.StartMongo(t)
	conn := []string{"--mongo-url", url, "--database", "shop", "--log-level", "error"}
	run := func(t *testing.T, args ...string) string {
		t.Helper()
		out, err := execute(t, append(args, conn...)...)
		if err != nil {
			t.Fatalf("%v: %v\n%s", args, err, out)
		}
		return out
	}

	t.Run("Healthcheck", func(t *testing.T) {
		out := run(t, "healthcheck", "-o", "json")
		var result health.AggregatedResult
		if err := json.Unmarshal([]byte(out), &result); err != nil {
			t.Fatalf("decode: %v\n%s", err, out)
		}
		if result.Status != health.StatusHealthy {
			t.Fatalf("status = %s: %+v", result.Status, result.Checks)
		}
		names := make([]string, 0, len(result.Checks))
		for _, c := range result.Checks {
			names = append(names, c.Name)
		}
		if got := strings.Join(names, ","); got != "mongodb,mongodb_version,sequence" {
			t.Fatalf("checks = %s", got)
		}
	})

	t.Run("Sequence", func(t *testing.T) {
		run(t, "sequence", "reset", "invoice")
		if out := run(t, "sequence", "next", "invoice"); out != "invoice: 1\n" {
			t.Fatalf("next = %q", out)
		}
		run(t, "sequence", "next", "invoice")
		if out := run(t, "sequence", "show", "invoice"); out != "invoice next: 3\n" {
			t.Fatalf("show = %q", out)
		}
		run(t, "sequence", "reset", "invoice")
		if out := run(t, "sequence", "show", "invoice"); out != "invoice next: 1\n" {
			t.Fatalf("show after reset = %q", out)
		}
	})

	t.Run("Version", func(t *testing.T) {
		out := run(t, "version", "--server")
		if !strings.Contains(out, "Server:     7.") {
			t.Fatalf("expected server version:\n%s", out)
		}
	})

	t.Run("ProductsExample", func(t *testing.T) {
		out := run(t, "example", "products", "--metrics")
		for _, want := range []string{
			"stored 6 products",
			"page 1/2",
			"  #4 BK-004 Concurrency in Go 29.90",
			"page 2/2",
			"  #3 BK-003 MongoDB: The Definitive Guide 49.00",
			"books under 40: 2",
			"vbengine_sequence_values_issued_total",
			"vbengine_store_operations_total",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output lacks %q:\n%s", want, out)
			}
		}

		// A second run starts from scratch: identities restart and unique indexes hold.
		again := run(t, "example", "products")
		if !strings.Contains(again, "  #4 BK-004") {
			t.Errorf("expected identities to restart:\n%s", again)
		}
	})
}
