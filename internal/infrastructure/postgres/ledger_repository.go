package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mandi-exchange/negotiation-hub/internal/domain/negotiation"
)

const uniqueViolation = "23505"

// LedgerRepository implements negotiation.Ledger.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

var _ negotiation.Ledger = (*LedgerRepository)(nil)

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Append inserts e only when it extends the stored head by exactly one.
func (r *LedgerRepository) Append(ctx context.Context, e *negotiation.OfferEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO negotiation_events (session_id, seq, event_id, kind, actor, event, chain_hash, created_at)
		SELECT $1::uuid, $2::bigint, $3::text, $4::text, $5::text, $6::jsonb, $7::text, $8::timestamptz
		WHERE (SELECT COALESCE(MAX(seq), 0) FROM negotiation_events WHERE session_id=$1::uuid) = $2::bigint - 1
	`, e.SessionID, e.Seq, e.EventID, string(e.Kind), string(e.Actor), data, e.ChainHash, e.Timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: seq %d for session %s", negotiation.ErrSequenceConflict, e.Seq, e.SessionID)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: seq %d does not follow head of session %s", negotiation.ErrSequenceConflict, e.Seq, e.SessionID)
	}
	return nil
}

func (r *LedgerRepository) History(ctx context.Context, sessionID uuid.UUID) ([]*negotiation.OfferEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT event FROM negotiation_events WHERE session_id=$1 ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*negotiation.OfferEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *LedgerRepository) Sessions(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id FROM negotiation_events WHERE seq = 1 ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (*negotiation.OfferEvent, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var e negotiation.OfferEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &e, nil
}
