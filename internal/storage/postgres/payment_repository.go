package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metacodeltd/mookh-tickets/internal/domain"
)

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const paymentColumns = `id, reference, external_reference, checkout_request_id, amount, currency,
customer_name, phone_number, status, pending_reason, failure_reason, provider_reference,
ticket_issued, created_at, updated_at`

func (r *PaymentRepository) Create(ctx context.Context, p domain.Payment) error {
	const stmt = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.exec(ctx, stmt,
		p.ID,
		p.Reference,
		p.ExternalReference,
		p.CheckoutRequestID,
		p.Amount,
		p.Currency,
		p.CustomerName,
		p.PhoneNumber,
		p.Status,
		p.PendingReason,
		p.FailureReason,
		p.ProviderReference,
		p.TicketIssued,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReference
		}
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, reference string) (domain.Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`

	var p domain.Payment
	err := r.queryRow(ctx, query, reference).Scan(
		&p.ID,
		&p.Reference,
		&p.ExternalReference,
		&p.CheckoutRequestID,
		&p.Amount,
		&p.Currency,
		&p.CustomerName,
		&p.PhoneNumber,
		&p.Status,
		&p.PendingReason,
		&p.FailureReason,
		&p.ProviderReference,
		&p.TicketIssued,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) Update(ctx context.Context, p domain.Payment) error {
	const stmt = `
UPDATE payments
SET status = $2, pending_reason = $3, failure_reason = $4, provider_reference = $5,
    ticket_issued = $6, checkout_request_id = $7, updated_at = $8
WHERE reference = $1`

	tag, err := r.exec(ctx, stmt,
		p.Reference,
		p.Status,
		p.PendingReason,
		p.FailureReason,
		p.ProviderReference,
		p.TicketIssued,
		p.CheckoutRequestID,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) Delete(ctx context.Context, reference string) error {
	tag, err := r.exec(ctx, `DELETE FROM payments WHERE reference = $1`, reference)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *PaymentRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
