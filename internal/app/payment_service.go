package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/metacodeltd/mookh-tickets/internal/clock"
	"github.com/metacodeltd/mookh-tickets/internal/domain"
	"github.com/metacodeltd/mookh-tickets/internal/gateway"
	"github.com/metacodeltd/mookh-tickets/internal/phone"
)

type PaymentRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, p domain.Payment) error
	Get(ctx context.Context, reference string) (domain.Payment, error)
	Update(ctx context.Context, p domain.Payment) error
	Delete(ctx context.Context, reference string) error
}

type Gateway interface {
	Initiate(ctx context.Context, req gateway.InitiateRequest) (gateway.Acceptance, error)
	QueryStatus(ctx context.Context, reference string) domain.StatusEvent
}

type TicketIssuer interface {
	Issue(ctx context.Context, reference, holderName string) (domain.Ticket, bool, error)
}

// PollSchedule parameterizes the status polling loop: a settle delay before
// the first query (the STK prompt needs time to reach the handset), a short
// burst interval, then a relaxed interval, bounded by a maximum attempt
// count. Exhausting the budget marks the payment failed with reason timeout.
type PollSchedule struct {
	SettleDelay     time.Duration
	BurstInterval   time.Duration
	BurstAttempts   int
	RelaxedInterval time.Duration
	MaxAttempts     int
}

func DefaultPollSchedule() PollSchedule {
	return PollSchedule{
		SettleDelay:     2 * time.Second,
		BurstInterval:   3 * time.Second,
		BurstAttempts:   5,
		RelaxedInterval: 10 * time.Second,
		MaxAttempts:     20,
	}
}

// Budget is the total wall-clock time the schedule allows before timeout.
func (s PollSchedule) Budget() time.Duration {
	relaxed := s.MaxAttempts - s.BurstAttempts
	if relaxed < 0 {
		relaxed = 0
	}
	return s.SettleDelay +
		time.Duration(s.BurstAttempts)*s.BurstInterval +
		time.Duration(relaxed)*s.RelaxedInterval
}

func (s PollSchedule) interval(attempt int) time.Duration {
	if attempt < s.BurstAttempts {
		return s.BurstInterval
	}
	return s.RelaxedInterval
}

// PaymentService owns the payment lifecycle for each purchase attempt: it
// submits the request to the gateway, runs the polling loop, consumes webhook
// events, and reconciles the two channels into a single status per reference.
type PaymentService struct {
	repo     PaymentRepository
	gateway  Gateway
	tickets  TicketIssuer
	clock    clock.Clock
	schedule PollSchedule
	logger   *log.Logger

	baseCtx   context.Context
	cancelAll context.CancelFunc

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	polls  map[string]*pollHandle
	closed bool
}

type pollHandle struct {
	cancel context.CancelFunc
}

type PaymentServiceOption func(*PaymentService)

// WithPollSchedule overrides the default polling schedule.
func WithPollSchedule(s PollSchedule) PaymentServiceOption {
	return func(svc *PaymentService) {
		if s.MaxAttempts > 0 {
			svc.schedule = s
		}
	}
}

func WithLogger(logger *log.Logger) PaymentServiceOption {
	return func(svc *PaymentService) {
		if logger != nil {
			svc.logger = logger
		}
	}
}

func NewPaymentService(repo PaymentRepository, gw Gateway, tickets TicketIssuer, clk clock.Clock, opts ...PaymentServiceOption) *PaymentService {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &PaymentService{
		repo:      repo,
		gateway:   gw,
		tickets:   tickets,
		clock:     clk,
		schedule:  DefaultPollSchedule(),
		logger:    log.Default(),
		baseCtx:   ctx,
		cancelAll: cancel,
		locks:     make(map[string]*sync.Mutex),
		polls:     make(map[string]*pollHandle),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Close cancels every outstanding polling loop. Used at service teardown.
func (s *PaymentService) Close() {
	s.mu.Lock()
	s.closed = true
	s.polls = make(map[string]*pollHandle)
	s.mu.Unlock()
	s.cancelAll()
}

type StartPaymentInput struct {
	Amount       int
	Currency     string
	CustomerName string
	PhoneNumber  string
	// Reference optionally supplies the external reference; one is minted
	// when absent. Every attempt must use a globally unique value.
	Reference string
}

// Start validates the request, submits it to the gateway, persists the
// resulting payment and spawns the polling loop. Validation failures return
// before any network call. A gateway rejection is persisted as a failed
// payment (reason initiation_error) and returned without error so callers
// can expose the reference for retry.
func (s *PaymentService) Start(ctx context.Context, in StartPaymentInput) (domain.Payment, error) {
	if in.Amount <= 0 {
		return domain.Payment{}, domain.ErrInvalidAmount
	}
	if strings.TrimSpace(in.CustomerName) == "" {
		return domain.Payment{}, domain.ErrCustomerNameRequired
	}
	msisdn, err := phone.Normalize(in.PhoneNumber)
	if err != nil {
		return domain.Payment{}, err
	}

	externalRef := in.Reference
	if externalRef == "" {
		externalRef = NewReference()
	}
	currency := in.Currency
	if currency == "" {
		currency = "KES"
	}

	now := s.clock.Now()
	p := domain.Payment{
		ID:                uuid.NewString(),
		Reference:         externalRef,
		ExternalReference: externalRef,
		Amount:            in.Amount,
		Currency:          currency,
		CustomerName:      strings.TrimSpace(in.CustomerName),
		PhoneNumber:       msisdn,
		Status:            domain.PaymentStatusInitiating,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	acc, err := s.gateway.Initiate(ctx, gateway.InitiateRequest{
		Amount:            p.Amount,
		PhoneNumber:       p.PhoneNumber,
		CustomerName:      p.CustomerName,
		ExternalReference: externalRef,
	})
	if err != nil {
		s.logger.Printf("payment initiation failed reference=%s err=%v", externalRef, err)
		p.Status = domain.PaymentStatusFailed
		p.FailureReason = domain.FailureInitiation
		if createErr := s.repo.Create(ctx, p); createErr != nil {
			return domain.Payment{}, createErr
		}
		return p, nil
	}

	// The gateway-issued reference is the correlation key from here on;
	// status lookups and webhook callbacks both carry it.
	if acc.Reference != "" {
		p.Reference = acc.Reference
	}
	p.CheckoutRequestID = acc.CheckoutRequestID
	p.Status, p.PendingReason = domain.NormalizeStatus(acc.RawStatus)
	if !p.Status.Terminal() {
		p.Status = domain.PaymentStatusPending
	}

	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			// The webhook can confirm and adopt the gateway reference
			// before this create lands. Return the adopted record instead
			// of a conflict; the buyer's money already moved.
			existing, getErr := s.repo.Get(ctx, p.Reference)
			if getErr != nil {
				return domain.Payment{}, err
			}
			if !existing.Status.Terminal() {
				s.startPolling(existing.Reference)
			}
			return existing, nil
		}
		return domain.Payment{}, err
	}
	s.logger.Printf("payment initiated reference=%s checkout_request_id=%s amount=%d",
		p.Reference, p.CheckoutRequestID, p.Amount)

	s.startPolling(p.Reference)
	return p, nil
}

// Retry starts a fresh attempt from a failed payment, reusing the stored
// request fields under a newly minted reference.
func (s *PaymentService) Retry(ctx context.Context, reference string) (domain.Payment, error) {
	prev, err := s.repo.Get(ctx, reference)
	if err != nil {
		return domain.Payment{}, err
	}
	if prev.Status != domain.PaymentStatusFailed {
		return domain.Payment{}, domain.ErrPaymentNotRetryable
	}
	return s.Start(ctx, StartPaymentInput{
		Amount:       prev.Amount,
		Currency:     prev.Currency,
		CustomerName: prev.CustomerName,
		PhoneNumber:  prev.PhoneNumber,
	})
}

// Reset cancels the polling loop and discards the payment record, e.g. when
// the buyer abandons the flow. Later poll events for the reference become
// no-ops; a webhook success can still adopt the reference, because a
// confirmed charge must produce a ticket.
func (s *PaymentService) Reset(ctx context.Context, reference string) error {
	if reference == "" {
		return domain.ErrReferenceRequired
	}
	s.cancelPolling(reference)

	lock := s.refLock(reference)
	lock.Lock()
	defer lock.Unlock()
	if err := s.repo.Delete(ctx, reference); err != nil {
		return err
	}
	s.forget(reference)
	return nil
}

// ApplyStatusEvent is the single entry point both the polling loop and the
// webhook receiver feed. It is idempotent and commutative over redundant
// events: repeated terminal events change nothing, a terminal event always
// wins over a pending state, and a success is never downgraded. When the
// two channels disagree (success vs failed), success wins regardless of
// arrival order, because a confirmed payer must keep their payment.
func (s *PaymentService) ApplyStatusEvent(ctx context.Context, ev domain.StatusEvent) (domain.Payment, error) {
	if ev.Reference == "" {
		return domain.Payment{}, domain.ErrReferenceRequired
	}

	lock := s.refLock(ev.Reference)
	lock.Lock()
	defer lock.Unlock()

	status, reason := domain.NormalizeStatus(ev.RawStatus)

	p, err := s.repo.Get(ctx, ev.Reference)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		adopted, adoptErr := s.adoptExternal(ctx, ev, status)
		if adoptErr != nil {
			return domain.Payment{}, adoptErr
		}
		p = adopted
	} else if err != nil {
		return domain.Payment{}, err
	}

	now := s.clock.Now()

	switch {
	case p.Status == domain.PaymentStatusSuccess:
		// Confirmed payments are never downgraded. Re-observation only
		// heals a previously failed issuance.
		if status == domain.PaymentStatusSuccess && !p.TicketIssued {
			return s.finalizeSuccess(ctx, p, ev, now)
		}
		return p, nil

	case status == domain.PaymentStatusSuccess:
		p.Status = domain.PaymentStatusSuccess
		p.PendingReason = ""
		p.FailureReason = ""
		return s.finalizeSuccess(ctx, p, ev, now)

	case p.Status == domain.PaymentStatusFailed:
		// Already failed; only a success (handled above) changes anything.
		return p, nil

	case status == domain.PaymentStatusFailed:
		p.Status = domain.PaymentStatusFailed
		p.PendingReason = ""
		p.FailureReason = domain.FailureGateway
		p.UpdatedAt = now
		if err := s.repo.Update(ctx, p); err != nil {
			return domain.Payment{}, err
		}
		s.forget(p.Reference)
		s.logger.Printf("payment failed reference=%s source=%s", p.Reference, ev.Source)
		return p, nil

	default:
		if p.PendingReason == reason && p.Status == domain.PaymentStatusPending {
			return p, nil
		}
		p.Status = domain.PaymentStatusPending
		p.PendingReason = reason
		p.UpdatedAt = now
		if err := s.repo.Update(ctx, p); err != nil {
			return domain.Payment{}, err
		}
		return p, nil
	}
}

// finalizeSuccess persists the terminal success and issues the ticket inside
// one transaction, so the issuance flag and the ticket row move together.
func (s *PaymentService) finalizeSuccess(ctx context.Context, p domain.Payment, ev domain.StatusEvent, now time.Time) (domain.Payment, error) {
	if ev.ProviderReference != "" {
		p.ProviderReference = ev.ProviderReference
	}
	p.UpdatedAt = now

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		ticket, created, err := s.tickets.Issue(txCtx, p.Reference, p.CustomerName)
		if err != nil {
			return err
		}
		p.TicketIssued = true
		if created {
			s.logger.Printf("ticket issued reference=%s ticket_id=%s", p.Reference, ticket.TicketID)
		}
		return s.repo.Update(txCtx, p)
	})
	if err != nil {
		// Keep the success but leave TicketIssued unset so a later event
		// retries issuance.
		p.TicketIssued = false
		if updateErr := s.repo.Update(ctx, p); updateErr != nil {
			return domain.Payment{}, updateErr
		}
		s.logger.Printf("ticket issuance failed reference=%s err=%v", p.Reference, err)
	}

	s.forget(p.Reference)
	s.logger.Printf("payment confirmed reference=%s source=%s provider_reference=%s",
		p.Reference, ev.Source, p.ProviderReference)
	return p, nil
}

// adoptExternal creates a payment record from a webhook success for a
// reference this instance never tracked (browser closed and reopened, or a
// restart in between). Anything short of a confirmed success is dropped.
func (s *PaymentService) adoptExternal(ctx context.Context, ev domain.StatusEvent, status domain.PaymentStatus) (domain.Payment, error) {
	if ev.Source != domain.SourceWebhook || status != domain.PaymentStatusSuccess || ev.Transaction == nil {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	now := s.clock.Now()
	p := domain.Payment{
		ID:                uuid.NewString(),
		Reference:         ev.Reference,
		ExternalReference: ev.Reference,
		CheckoutRequestID: ev.Transaction.GatewayID,
		Amount:            ev.Transaction.Amount,
		Currency:          ev.Transaction.Currency,
		CustomerName:      ev.Transaction.CustomerName,
		PhoneNumber:       ev.Transaction.PhoneNumber,
		Status:            domain.PaymentStatusPending,
		PendingReason:     domain.PendingProcessing,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if p.Currency == "" {
		p.Currency = "KES"
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return domain.Payment{}, err
	}
	s.logger.Printf("adopted externally confirmed payment reference=%s", ev.Reference)
	return p, nil
}

// StatusSnapshot is what the presentation layer consumes: the public status,
// a human-facing message, and a progress fraction.
type StatusSnapshot struct {
	Payment  domain.Payment
	Message  string
	Progress float64
}

// Status reports the current state of a payment. Progress is a UX contract,
// not settlement truth: it grows monotonically with elapsed time, stays
// capped below 1.0 while pending, and snaps to 1.0 only on success.
func (s *PaymentService) Status(ctx context.Context, reference string) (StatusSnapshot, error) {
	p, err := s.repo.Get(ctx, reference)
	if err != nil {
		return StatusSnapshot{}, err
	}
	return StatusSnapshot{
		Payment:  p,
		Message:  statusMessage(p),
		Progress: s.progress(p),
	}, nil
}

const pendingProgressCap = 0.98

func (s *PaymentService) progress(p domain.Payment) float64 {
	switch p.Status {
	case domain.PaymentStatusSuccess:
		return 1.0
	case domain.PaymentStatusFailed:
		return 0
	default:
		budget := s.schedule.Budget()
		if budget <= 0 {
			return 0
		}
		elapsed := s.clock.Now().Sub(p.CreatedAt)
		if elapsed <= 0 {
			return 0
		}
		frac := pendingProgressCap * float64(elapsed) / float64(budget)
		if frac > pendingProgressCap {
			return pendingProgressCap
		}
		return frac
	}
}

func statusMessage(p domain.Payment) string {
	switch p.Status {
	case domain.PaymentStatusSuccess:
		return "Payment received. Your e-ticket is ready."
	case domain.PaymentStatusFailed:
		switch p.FailureReason {
		case domain.FailureTimeout:
			return "We could not confirm your payment in time. If you completed it, your ticket will be issued automatically once confirmation arrives."
		case domain.FailureInitiation:
			return "We could not send the M-PESA prompt. Please try again."
		case domain.FailureInvalidInput:
			return "Check the phone number and try again."
		default:
			return "Payment was unsuccessful. Please try again."
		}
	default:
		switch p.PendingReason {
		case domain.PendingAwaitingPin:
			return "Check your phone and enter your M-PESA PIN to complete payment."
		case domain.PendingProcessing:
			return "Confirming payment, please wait while we verify your transaction."
		default:
			return "Payment request queued, please wait."
		}
	}
}

func (s *PaymentService) startPolling(reference string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if h, ok := s.polls[reference]; ok {
		h.cancel()
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	h := &pollHandle{cancel: cancel}
	s.polls[reference] = h
	s.mu.Unlock()

	go s.pollLoop(ctx, reference, h)
}

func (s *PaymentService) pollLoop(ctx context.Context, reference string, h *pollHandle) {
	defer func() {
		s.mu.Lock()
		if s.polls[reference] == h {
			delete(s.polls, reference)
		}
		s.mu.Unlock()
		h.cancel()
	}()

	timer := time.NewTimer(s.schedule.SettleDelay)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		ev := s.gateway.QueryStatus(ctx, reference)
		p, err := s.ApplyStatusEvent(ctx, ev)
		if err != nil {
			if errors.Is(err, domain.ErrPaymentNotFound) {
				// Reset won the race; nothing left to poll for.
				return
			}
			s.logger.Printf("status poll apply failed reference=%s err=%v", reference, err)
		} else if p.Status.Terminal() {
			return
		}

		if attempt >= s.schedule.MaxAttempts {
			s.expire(ctx, reference)
			return
		}
		timer.Reset(s.schedule.interval(attempt))
	}
}

// expire marks a payment failed with reason timeout after the polling budget
// runs out. Soft-terminal: the webhook path can still upgrade it to success.
func (s *PaymentService) expire(ctx context.Context, reference string) {
	lock := s.refLock(reference)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.repo.Get(ctx, reference)
	if err != nil {
		return
	}
	if p.Status.Terminal() {
		return
	}
	p.Status = domain.PaymentStatusFailed
	p.PendingReason = ""
	p.FailureReason = domain.FailureTimeout
	p.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, p); err != nil {
		s.logger.Printf("timeout update failed reference=%s err=%v", reference, err)
		return
	}
	s.forget(reference)
	s.logger.Printf("polling budget exhausted reference=%s attempts=%d", reference, s.schedule.MaxAttempts)
}

func (s *PaymentService) cancelPolling(reference string) {
	s.mu.Lock()
	h, ok := s.polls[reference]
	if ok {
		delete(s.polls, reference)
	}
	s.mu.Unlock()
	if ok {
		h.cancel()
	}
}

// forget cancels polling and drops the per-reference lock entry once no
// further transitions are expected, so the locks map does not grow for the
// life of the process. A late event mints a fresh lock; the store re-read
// under it keeps the transition idempotent either way.
func (s *PaymentService) forget(reference string) {
	s.mu.Lock()
	h, ok := s.polls[reference]
	if ok {
		delete(s.polls, reference)
	}
	delete(s.locks, reference)
	s.mu.Unlock()
	if ok {
		h.cancel()
	}
}

// refLock serializes state transitions per reference, so webhook deliveries
// for distinct references never block one another.
func (s *PaymentService) refLock(reference string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[reference]
	if !ok {
		l = &sync.Mutex{}
		s.locks[reference] = l
	}
	return l
}

// NewReference mints an external reference for a new attempt.
func NewReference() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "CHAN" + suffix[:10]
}
