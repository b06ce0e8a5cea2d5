package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/metacodeltd/mookh-tickets/internal/domain"
	"github.com/metacodeltd/mookh-tickets/internal/testutil"
)

func TestPaymentRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewPaymentRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("Create and Get round-trip", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		p := testutil.NewPayment("GWREF10001", domain.PaymentStatusPending)
		p.PendingReason = domain.PendingAwaitingPin
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		got, err := repo.Get(ctx, "GWREF10001")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.ID != p.ID || got.Status != domain.PaymentStatusPending || got.PendingReason != domain.PendingAwaitingPin {
			t.Fatalf("unexpected payment: %+v", got)
		}
		if got.Amount != 1500 || got.PhoneNumber != "254712345678" {
			t.Fatalf("unexpected request fields: %+v", got)
		}
	})

	t.Run("Create rejects duplicate reference", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		if err := repo.Create(ctx, testutil.NewPayment("GWREF10002", domain.PaymentStatusPending)); err != nil {
			t.Fatalf("create: %v", err)
		}
		err := repo.Create(ctx, testutil.NewPayment("GWREF10002", domain.PaymentStatusPending))
		if !errors.Is(err, domain.ErrDuplicateReference) {
			t.Fatalf("expected ErrDuplicateReference, got %v", err)
		}
	})

	t.Run("Get unknown reference", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		_, err := repo.Get(ctx, "MISSING")
		if !errors.Is(err, domain.ErrPaymentNotFound) {
			t.Fatalf("expected ErrPaymentNotFound, got %v", err)
		}
	})

	t.Run("Update persists transition fields", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		p := testutil.NewPayment("GWREF10003", domain.PaymentStatusPending)
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		p.Status = domain.PaymentStatusSuccess
		p.PendingReason = ""
		p.ProviderReference = "SBC1XYZ"
		p.TicketIssued = true
		p.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
		if err := repo.Update(ctx, p); err != nil {
			t.Fatalf("update: %v", err)
		}

		got, err := repo.Get(ctx, "GWREF10003")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != domain.PaymentStatusSuccess || !got.TicketIssued || got.ProviderReference != "SBC1XYZ" {
			t.Fatalf("unexpected payment after update: %+v", got)
		}

		missing := testutil.NewPayment("MISSING", domain.PaymentStatusPending)
		if err := repo.Update(ctx, missing); !errors.Is(err, domain.ErrPaymentNotFound) {
			t.Fatalf("expected ErrPaymentNotFound, got %v", err)
		}
	})

	t.Run("Delete removes the record", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		if err := repo.Create(ctx, testutil.NewPayment("GWREF10004", domain.PaymentStatusPending)); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := repo.Delete(ctx, "GWREF10004"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := repo.Get(ctx, "GWREF10004"); !errors.Is(err, domain.ErrPaymentNotFound) {
			t.Fatalf("expected ErrPaymentNotFound, got %v", err)
		}
		if err := repo.Delete(ctx, "GWREF10004"); !errors.Is(err, domain.ErrPaymentNotFound) {
			t.Fatalf("expected ErrPaymentNotFound on second delete, got %v", err)
		}
	})

	t.Run("WithTx rolls back on error", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		sentinel := errors.New("abort")
		err := repo.WithTx(ctx, func(txCtx context.Context) error {
			if err := repo.Create(txCtx, testutil.NewPayment("GWREF10005", domain.PaymentStatusPending)); err != nil {
				return err
			}
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected sentinel error, got %v", err)
		}
		if _, err := repo.Get(ctx, "GWREF10005"); !errors.Is(err, domain.ErrPaymentNotFound) {
			t.Fatalf("expected rollback, got %v", err)
		}
	})
}
