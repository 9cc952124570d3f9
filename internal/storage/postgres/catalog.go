package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

const upsertServiceSQL = `INSERT INTO service_catalog (id, name, price, active)
	VALUES ($1, $2, $3, TRUE)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, active = TRUE`

// UpsertServices inserts or reactivates catalog entries in one batch.
func (s *OrderStore) UpsertServices(ctx context.Context, offers []order.ServiceOffer) error {
	if len(offers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, o := range offers {
		batch.Queue(upsertServiceSQL, o.ID, o.Name, o.Price)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return &order.StoreError{Op: "upsert services", Err: err}
	}
	return nil
}
