package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusInitiating PaymentStatus = "initiating"
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusSuccess    PaymentStatus = "success"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// Terminal reports whether no further transition is expected for the attempt.
// A failed payment can still be upgraded by a late success confirmation.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed
}

// PendingReason sub-classifies a pending payment for user messaging only;
// it never drives control flow.
type PendingReason string

const (
	PendingQueued      PendingReason = "queued"
	PendingAwaitingPin PendingReason = "awaiting_pin"
	PendingProcessing  PendingReason = "processing"
)

type FailureReason string

const (
	FailureInvalidInput FailureReason = "invalid_input"
	FailureInitiation   FailureReason = "initiation_error"
	FailureGateway      FailureReason = "gateway_failed"
	FailureTimeout      FailureReason = "timeout"
)

// Payment represents one purchase attempt. Reference is the single
// correlation key: both the polling and webhook paths look payments up by it.
// The buyer-facing request fields are immutable once submitted; a retry is a
// new Payment with a fresh reference.
type Payment struct {
	ID                string
	Reference         string
	ExternalReference string
	CheckoutRequestID string
	Amount            int
	Currency          string
	CustomerName      string
	PhoneNumber       string
	Status            PaymentStatus
	PendingReason     PendingReason
	FailureReason     FailureReason
	ProviderReference string
	// TicketIssued guards exactly-once issuance for this reference.
	TicketIssued bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
