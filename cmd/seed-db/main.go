package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

type serviceJSON struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

func main() {
	var (
		databaseURL  string
		servicesFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&servicesFile, "services-file", "db/seed/services.json", "path to service catalog JSON file")
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

	if err := run(ctx, databaseURL, servicesFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, servicesFile string) error {
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

	offers, err := readServices(servicesFile)
	if err != nil {
		return errors.Wrap(err, "read services")
	}

	slog.Info("upserting services", slog.Int("count", len(offers)))

	if err := postgres.NewOrderStore(pool).UpsertServices(ctx, offers); err != nil {
		return errors.Wrap(err, "seed services")
	}
	for _, o := range offers {
		slog.Info("upserted service", slog.String("id", o.ID), slog.String("price", o.Price.StringFixed(2)))
	}

	return nil
}

func readServices(path string) ([]order.ServiceOffer, error) {
	slog.Info("reading services file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read services file")
	}

	var services []serviceJSON
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, errors.Wrap(err, "parse services JSON")
	}

	offers := make([]order.ServiceOffer, 0, len(services))
	for _, s := range services {
		if s.ID == "" || s.Price.IsNegative() {
			return nil, errors.Errorf("invalid service entry %q", s.ID)
		}
		offers = append(offers, order.ServiceOffer{ID: s.ID, Name: s.Name, Price: s.Price})
	}
	return offers, nil
}
