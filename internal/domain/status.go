package domain

import (
	"strings"
	"time"
)

type EventSource string

const (
	SourcePoll    EventSource = "poll"
	SourceWebhook EventSource = "webhook"
)

// TransactionDetails carries the gateway's view of the transaction as
// delivered by a webhook. It lets a success callback for a reference this
// instance never tracked be adopted into the store.
type TransactionDetails struct {
	GatewayID    string
	Amount       int
	Currency     string
	CustomerName string
	PhoneNumber  string
}

// StatusEvent is the one shape both ingestion paths reduce to before the
// orchestrator sees them.
type StatusEvent struct {
	Reference         string
	RawStatus         string
	ProviderReference string
	Source            EventSource
	ObservedAt        time.Time
	Transaction       *TransactionDetails
}

// NormalizeStatus maps the gateway's status vocabulary onto the local
// payment status. Both the polling and webhook paths normalize through this
// single function so the two channels can never diverge on what a raw
// status means.
func NormalizeStatus(raw string) (PaymentStatus, PendingReason) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "COMPLETED":
		return PaymentStatusSuccess, ""
	case "FAILED", "CANCELLED":
		return PaymentStatusFailed, ""
	case "QUEUED":
		return PaymentStatusPending, PendingQueued
	case "PENDING":
		return PaymentStatusPending, PendingAwaitingPin
	case "PROCESSING":
		return PaymentStatusPending, PendingProcessing
	default:
		// Unknown vocabulary stays pending; prematurely failing a payment
		// the buyer may have completed is the worse outcome.
		return PaymentStatusPending, PendingProcessing
	}
}
