package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/metacodeltd/mookh-tickets/internal/clock"
	"github.com/metacodeltd/mookh-tickets/internal/domain"
	"github.com/metacodeltd/mookh-tickets/internal/storage/memory"
)

func TestTicketServiceIssueIsIdempotent(t *testing.T) {
	t.Parallel()

	repo := memory.NewTicketRepository()
	svc := NewTicketService(repo, clock.NewFixed(time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)))

	first, created, err := svc.Issue(context.Background(), "GWREF00123", "Jane Fan")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !created {
		t.Fatal("first issuance must report created")
	}

	second, created, err := svc.Issue(context.Background(), "GWREF00123", "Jane Fan")
	if err != nil {
		t.Fatalf("second Issue returned error: %v", err)
	}
	if created {
		t.Fatal("second issuance must not create a new ticket")
	}
	if second.TicketID != first.TicketID || second.ID != first.ID {
		t.Fatal("second issuance must return the original ticket")
	}
	if repo.Count() != 1 {
		t.Fatalf("tickets stored = %d, want 1", repo.Count())
	}
}

func TestTicketServiceIssueAssignsFromPools(t *testing.T) {
	t.Parallel()

	repo := memory.NewTicketRepository()
	svc := NewTicketService(repo, clock.NewSystem())

	ticket, _, err := svc.Issue(context.Background(), "GWREF00999", "Jane Fan")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if !contains(ticketGates, ticket.Gate) {
		t.Fatalf("gate %q not in pool", ticket.Gate)
	}
	if !contains(ticketSections, ticket.Section) {
		t.Fatalf("section %q not in pool", ticket.Section)
	}
	if ticket.Row < 1 || ticket.Row > ticketRows {
		t.Fatalf("row %d outside 1..%d", ticket.Row, ticketRows)
	}
	if ticket.TicketID != "F00999" {
		t.Fatalf("ticket id = %q, want F00999", ticket.TicketID)
	}
}

func TestTicketServiceIssueRequiresReference(t *testing.T) {
	t.Parallel()

	svc := NewTicketService(memory.NewTicketRepository(), clock.NewSystem())
	if _, _, err := svc.Issue(context.Background(), "", "Jane Fan"); !errors.Is(err, domain.ErrReferenceRequired) {
		t.Fatalf("Issue error = %v, want ErrReferenceRequired", err)
	}
}

func TestTicketServiceGet(t *testing.T) {
	t.Parallel()

	repo := memory.NewTicketRepository()
	svc := NewTicketService(repo, clock.NewSystem())

	if _, err := svc.Get(context.Background(), "GWREF00123"); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("Get before issue error = %v, want ErrTicketNotFound", err)
	}

	issued, _, err := svc.Issue(context.Background(), "GWREF00123", "Jane Fan")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	got, err := svc.Get(context.Background(), "GWREF00123")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.TicketID != issued.TicketID {
		t.Fatalf("Get ticket id = %q, want %q", got.TicketID, issued.TicketID)
	}
}

func TestTicketIDFromReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		reference string
		want      string
	}{
		{name: "long reference", reference: "GWREF00123", want: "F00123"},
		{name: "lowercase tail uppercased", reference: "gwref0012ab", want: "0012AB"},
		{name: "exactly six", reference: "abc123", want: "ABC123"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TicketIDFromReference(tt.reference); got != tt.want {
				t.Fatalf("TicketIDFromReference(%q) = %q, want %q", tt.reference, got, tt.want)
			}
		})
	}

	short := TicketIDFromReference("ab1")
	if len(short) != 6 {
		t.Fatalf("generated id %q must be six characters", short)
	}
}

func contains(pool []string, v string) bool {
	for _, p := range pool {
		if p == v {
			return true
		}
	}
	return false
}
