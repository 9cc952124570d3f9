// Command saga-audit lists capture saga journal entries that need manual
// attention: failed compensations, or the full history of one intent.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/storage/journal"
)

func main() {
	var (
		databaseURL string
		intentID    string
		since       time.Duration
		limit       int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&intentID, "intent", "", "print the full history of this intent instead of failures")
	flag.DurationVar(&since, "since", 24*time.Hour, "look back this far for failed compensations")
	flag.IntVar(&limit, "limit", 100, "maximum number of failed entries to print")
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

	n, err := run(ctx, databaseURL, intentID, since, limit)
	if err != nil {
		slog.Error("audit failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if intentID == "" && n > 0 {
		// Non-zero exit lets cron and CI alert on unresolved refunds.
		os.Exit(2)
	}
}

func run(ctx context.Context, databaseURL, intentID string, since time.Duration, limit int) (int, error) {
	db, err := journal.Open(databaseURL)
	if err != nil {
		return 0, errors.Wrap(err, "open database")
	}
	defer func() { _ = db.Close() }()

	rec := journal.NewRecorder(db)

	var entries []journal.Entry
	if intentID != "" {
		entries, err = rec.History(ctx, intentID)
	} else {
		entries, err = rec.FailedCompensations(ctx, time.Now().Add(-since), limit)
	}
	if err != nil {
		return 0, errors.Wrap(err, "query journal")
	}

	for _, e := range entries {
		slog.Info("journal entry",
			slog.Time("recorded_at", e.RecordedAt),
			slog.String("intent_id", e.IntentID),
			slog.String("order_id", e.OrderID),
			slog.String("capture_id", e.CaptureID),
			slog.String("state", string(e.State)),
			slog.String("action", e.Action),
			slog.Bool("failed", e.Failed),
			slog.String("detail", e.Detail),
		)
	}
	slog.Info("audit completed", slog.Int("entries", len(entries)))

	return len(entries), nil
}
