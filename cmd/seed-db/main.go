// Command seed-db loads the product catalog from a JSON (optionally
// gzip-compressed) file and optionally fills a demo cart, for local runs and
// the integration suite.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/valyxa/storefront/internal/storage/postgres"
)

const (
	upsertProductSQL = `INSERT INTO products (id, name, price, category)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			category = EXCLUDED.category`

	upsertCartLineSQL = `INSERT INTO cart_lines (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`

	// seedWorkers bounds concurrent upserts so seeding large catalogs does
	// not exhaust the pool.
	seedWorkers = 4
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
}

type cartLineJSON struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		demoUser     string
		demoCartFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file (.json or .json.gz)")
	flag.StringVar(&demoUser, "demo-user", "", "user ID to fill a demo cart for (optional)")
	flag.StringVar(&demoCartFile, "demo-cart-file", "db/seed/demo-cart.json", "path to demo cart JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, demoUser, demoCartFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, demoUser, demoCartFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if demoUser != "" {
		if err := seedDemoCart(ctx, pool, demoUser, demoCartFile); err != nil {
			return errors.Wrap(err, "seed demo cart")
		}
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := readMaybeGzip(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(seedWorkers)
	for _, p := range products {
		p := p
		g.Go(func() error {
			if _, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Category); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ID)
			}
			return nil
		})
	}
	return g.Wait()
}

func seedDemoCart(ctx context.Context, pool *pgxpool.Pool, userID, cartFile string) error {
	slog.Info("seeding demo cart", slog.String("user_id", userID), slog.String("path", cartFile))

	data, err := readMaybeGzip(cartFile)
	if err != nil {
		return errors.Wrap(err, "read cart file")
	}

	var lines []cartLineJSON
	if err := json.Unmarshal(data, &lines); err != nil {
		return errors.Wrap(err, "parse cart JSON")
	}

	for _, l := range lines {
		if _, err := pool.Exec(ctx, upsertCartLineSQL, userID, l.ProductID, l.Quantity); err != nil {
			return errors.Wrapf(err, "upsert cart line %s", l.ProductID)
		}
	}

	slog.Info("demo cart seeded", slog.Int("lines", len(lines)))
	return nil
}

// readMaybeGzip reads the file, transparently decompressing .gz inputs.
func readMaybeGzip(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return io.ReadAll(r)
}
