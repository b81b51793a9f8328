package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vbouzoukos/vbmongoengine/pkg/criteria"
	"github.com/vbouzoukos/vbmongoengine/pkg/engine"
	"github.com/vbouzoukos/vbmongoengine/pkg/entity"
	"github.com/vbouzoukos/vbmongoengine/pkg/observability/metrics"
	"github.com/vbouzoukos/vbmongoengine/pkg/repository"
)

// Product is the entity of the example catalog.
type Product struct {
	ID       int64   `bson:"_id"`
	Code     string  `bson:"code"`
	Name     string  `bson:"name"`
	Category string  `bson:"category"`
	Price    float64 `bson:"price"`
}

const productSequence = "example_product"

// ProductMapping maps Product onto an auto-increment collection with unique code and name.
func ProductMapping() entity.Mapping[Product] {
	return entity.Mapping[Product]{
		Collection:    "example_products",
		AutoIncrement: productSequence,
		Identity: entity.Field(entity.IDField,
			func(p *Product) int64 { return p.ID },
			func(p *Product, id int64) { p.ID = id },
		),
		Indexes: []entity.Index{
			{Name: "productCode", Field: "code", Unique: true},
			{Name: "productName", Field: "name", Unique: true},
			{Name: "productCategory", Field: "category"},
		},
	}
}

func sampleProducts() []*Product {
	return []*Product{
		{Code: "BK-001", Name: "The Go Programming Language", Category: "books", Price: 39.9},
		{Code: "BK-002", Name: "Designing Data-Intensive Applications", Category: "books", Price: 44.5},
		{Code: "BK-003", Name: "MongoDB: The Definitive Guide", Category: "books", Price: 49.0},
		{Code: "BK-004", Name: "Concurrency in Go", Category: "books", Price: 29.9},
		{Code: "HW-001", Name: "Mechanical Keyboard", Category: "hardware", Price: 89.0},
		{Code: "HW-002", Name: "USB-C Dock", Category: "hardware", Price: 129.0},
	}
}

type exampleOptions struct {
	transaction  bool
	itemsPerPage int
	showMetrics  bool
}

func newExampleCommand(flags *globalFlags) *cobra.Command {
	exampleCmd := &cobra.Command{
		Use:   "example",
		Short: "Runnable examples against the configured database",
	}
	SetCommandPolicies(exampleCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnDemand})

	var opts exampleOptions
	productsCmd := &cobra.Command{
		Use:   "products",
		Short: "Seed an auto-increment product catalog and page through it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				return runProductsExample(ctx, rt, opts, cmd.OutOrStdout())
			})
		},
	}
	productsCmd.Flags().BoolVar(&opts.transaction, "transaction", false, "seed inside a transaction (requires a replica set)")
	productsCmd.Flags().IntVar(&opts.itemsPerPage, "items-per-page", 2, "page size of the listing")
	productsCmd.Flags().BoolVar(&opts.showMetrics, "metrics", false, "print the engine metrics when done")
	SetCommandPolicies(productsCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnDemand})
	exampleCmd.AddCommand(productsCmd)

	return exampleCmd
}

func runProductsExample(ctx context.Context, rt *Runtime, opts exampleOptions, out io.Writer) error {
	if err := engine.Register(rt.Engine, ProductMapping()); err != nil {
		return err
	}
	c, err := rt.Engine.CreateContext(rt.Config.MongoDB.Database)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := engine.EnsureCollection[Product](ctx, c); err != nil {
		return err
	}
	repo, err := engine.NewRepository[Product](c)
	if err != nil {
		return err
	}
	if err := repo.EnsureIndexes(ctx); err != nil {
		return err
	}

	// Every run starts from an empty catalog and a fresh sequence.
	if _, err := repo.DeleteAll(ctx); err != nil {
		return err
	}
	if err := rt.Engine.ResetSequence(ctx, productSequence); err != nil {
		return err
	}

	seed := func(ctx context.Context) error {
		return repo.StoreMany(ctx, sampleProducts())
	}
	if opts.transaction {
		err = c.WithTransaction(ctx, seed)
	} else {
		err = seed(ctx)
	}
	if err != nil {
		return fmt.Errorf("seed products: %w", err)
	}

	total, err := repo.Count(ctx, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "stored %d products\n", total)

	// Cheap books are fetched in the background while the listing pages through all of them.
	cheap, err := repo.CreateFindRequest().
		Find("category", "books").
		And("price", 40.0, criteria.LessThan).
		ExecuteAsync(ctx)
	if err != nil {
		return err
	}

	if err := listBooks(ctx, repo, opts.itemsPerPage, out); err != nil {
		return err
	}

	cheapBooks, err := cheap.Await()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "books under 40: %d\n", len(cheapBooks.Items))

	if opts.showMetrics && rt.Metrics != nil {
		return rt.Metrics.WriteText(out, metrics.Namespace)
	}
	return nil
}

// listBooks prints the books sorted by price, one page at a time. The listing is bounded by the
// number of stored books, not by the results limit of the repository.
func listBooks(ctx context.Context, repo *repository.Repository[Product], itemsPerPage int, out io.Writer) error {
	books, err := repo.Count(ctx, repo.CreateFindRequest().Find("category", "books"))
	if err != nil {
		return err
	}
	if books == 0 {
		fmt.Fprintln(out, "no books")
		return nil
	}

	for page := 1; ; page++ {
		result, err := repo.CreateFindRequestPaged(page, itemsPerPage).
			SetLimitUp(int(books)).
			Find("category", "books").
			Sort("price", true).
			Execute(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "page %d/%d\n", result.Page, result.TotalPages)
		for _, p := range result.Items {
			fmt.Fprintf(out, "  #%d %s %s %.2f\n", p.ID, p.Code, p.Name, p.Price)
		}
		if page >= result.TotalPages {
			return nil
		}
	}
}
