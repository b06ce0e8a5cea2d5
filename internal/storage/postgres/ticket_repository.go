package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metacodeltd/mookh-tickets/internal/domain"
)

type TicketRepository struct {
	pool *pgxpool.Pool
}

func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

func (r *TicketRepository) GetByReference(ctx context.Context, reference string) (*domain.Ticket, error) {
	const query = `
SELECT id, reference, ticket_id, holder_name, gate, section, seat_row, created_at
FROM tickets
WHERE reference = $1`

	var t domain.Ticket
	err := r.queryRow(ctx, query, reference).
		Scan(&t.ID, &t.Reference, &t.TicketID, &t.HolderName, &t.Gate, &t.Section, &t.Row, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get ticket by reference: %w", err)
	}
	return &t, nil
}

func (r *TicketRepository) Create(ctx context.Context, t domain.Ticket) error {
	const stmt = `
INSERT INTO tickets (id, reference, ticket_id, holder_name, gate, section, seat_row, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var err error
	if tx := txFromContext(ctx); tx != nil {
		_, err = tx.Exec(ctx, stmt, t.ID, t.Reference, t.TicketID, t.HolderName, t.Gate, t.Section, t.Row, t.CreatedAt)
	} else {
		_, err = r.pool.Exec(ctx, stmt, t.ID, t.Reference, t.TicketID, t.HolderName, t.Gate, t.Section, t.Row, t.CreatedAt)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrTicketAlreadyIssued
		}
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (r *TicketRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
