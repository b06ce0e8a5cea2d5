package app

import (
	"context"
	"errors"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/metacodeltd/mookh-tickets/internal/clock"
	"github.com/metacodeltd/mookh-tickets/internal/domain"
)

type TicketRepository interface {
	GetByReference(ctx context.Context, reference string) (*domain.Ticket, error)
	Create(ctx context.Context, t domain.Ticket) error
}

// Seat pools for randomized assignment. Uniqueness of the ticket id is the
// invariant, not the seat.
var (
	ticketGates    = []string{"Gate 1", "Gate 2", "Gate 3"}
	ticketSections = []string{"17-Lower", "18-Upper", "19-Lower", "20-Upper"}
)

const ticketRows = 20

// TicketService issues the ticket artifact for a confirmed payment.
// Issuance is idempotent on the payment reference.
type TicketService struct {
	repo  TicketRepository
	clock clock.Clock
}

func NewTicketService(repo TicketRepository, clk clock.Clock) *TicketService {
	return &TicketService{repo: repo, clock: clk}
}

// Issue creates the ticket for a reference, or returns the existing one.
// The returned bool reports whether a new ticket was created by this call.
func (s *TicketService) Issue(ctx context.Context, reference, holderName string) (domain.Ticket, bool, error) {
	if reference == "" {
		return domain.Ticket{}, false, domain.ErrReferenceRequired
	}

	if existing, err := s.repo.GetByReference(ctx, reference); err != nil {
		return domain.Ticket{}, false, err
	} else if existing != nil {
		return *existing, false, nil
	}

	ticket := domain.Ticket{
		ID:         uuid.NewString(),
		Reference:  reference,
		TicketID:   TicketIDFromReference(reference),
		HolderName: holderName,
		Gate:       ticketGates[rand.Intn(len(ticketGates))],
		Section:    ticketSections[rand.Intn(len(ticketSections))],
		Row:        rand.Intn(ticketRows) + 1,
		CreatedAt:  s.clock.Now(),
	}

	if err := s.repo.Create(ctx, ticket); err != nil {
		// A concurrent issuance won the race; return its ticket.
		if errors.Is(err, domain.ErrTicketAlreadyIssued) {
			existing, getErr := s.repo.GetByReference(ctx, reference)
			if getErr != nil {
				return domain.Ticket{}, false, getErr
			}
			if existing != nil {
				return *existing, false, nil
			}
		}
		return domain.Ticket{}, false, err
	}
	return ticket, true, nil
}

// Get returns the issued ticket for a reference.
func (s *TicketService) Get(ctx context.Context, reference string) (domain.Ticket, error) {
	ticket, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return domain.Ticket{}, err
	}
	if ticket == nil {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return *ticket, nil
}

// TicketIDFromReference derives the short human-facing ticket id: the last
// six characters of the reference, uppercased. A too-short reference gets a
// generated id instead.
func TicketIDFromReference(reference string) string {
	ref := strings.TrimSpace(reference)
	if len(ref) < 6 {
		generated := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
		return generated[:6]
	}
	return strings.ToUpper(ref[len(ref)-6:])
}
