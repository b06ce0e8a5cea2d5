package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/metacodeltd/mookh-tickets/internal/domain"
	"github.com/metacodeltd/mookh-tickets/internal/testutil"
)

func newTicket(reference string) domain.Ticket {
	return domain.Ticket{
		ID:         uuid.NewString(),
		Reference:  reference,
		TicketID:   "F10001",
		HolderName: "Jane Fan",
		Gate:       "Gate 2",
		Section:    "17-Lower",
		Row:        7,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestTicketRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewTicketRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("Create and GetByReference round-trip", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		ticket := newTicket("GWREF20001")
		if err := repo.Create(ctx, ticket); err != nil {
			t.Fatalf("create: %v", err)
		}

		got, err := repo.GetByReference(ctx, "GWREF20001")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got == nil {
			t.Fatal("expected a ticket")
		}
		if got.TicketID != ticket.TicketID || got.Gate != ticket.Gate || got.Row != ticket.Row {
			t.Fatalf("unexpected ticket: %+v", got)
		}
	})

	t.Run("GetByReference returns nil when absent", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		got, err := repo.GetByReference(ctx, "MISSING")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got %+v", got)
		}
	})

	t.Run("Create enforces one ticket per reference", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		if err := repo.Create(ctx, newTicket("GWREF20002")); err != nil {
			t.Fatalf("create: %v", err)
		}
		err := repo.Create(ctx, newTicket("GWREF20002"))
		if !errors.Is(err, domain.ErrTicketAlreadyIssued) {
			t.Fatalf("expected ErrTicketAlreadyIssued, got %v", err)
		}
	})
}
