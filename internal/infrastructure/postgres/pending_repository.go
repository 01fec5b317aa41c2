package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/notification"
)

// PendingRepository implements notification.PendingStore.
type PendingRepository struct {
	pool *pgxpool.Pool
}

var _ notification.PendingStore = (*PendingRepository)(nil)

func NewPendingRepository(pool *pgxpool.Pool) *PendingRepository {
	return &PendingRepository{pool: pool}
}

func (r *PendingRepository) Park(ctx context.Context, d *notification.Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO pending_deliveries (delivery_key, recipient, session_id, seq, delivery, parked_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		ON CONFLICT (delivery_key) DO UPDATE SET delivery = EXCLUDED.delivery
	`, d.Key, d.Recipient, d.SessionID, d.Seq, data)
	return err
}

func (r *PendingRepository) ListPending(ctx context.Context, recipient string) ([]*notification.Delivery, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT delivery FROM pending_deliveries WHERE recipient=$1 ORDER BY parked_at ASC, seq ASC
	`, recipient)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*notification.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PendingRepository) Ack(ctx context.Context, key string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pending_deliveries WHERE delivery_key=$1`, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrDeliveryNotFound
	}
	return nil
}

func scanDelivery(row pgx.Row) (*notification.Delivery, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var d notification.Delivery
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode delivery: %w", err)
	}
	return &d, nil
}
