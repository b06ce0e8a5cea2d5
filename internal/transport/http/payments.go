package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/metacodeltd/mookh-tickets/internal/app"
	"github.com/metacodeltd/mookh-tickets/internal/domain"
)

// PaymentStarter is the minimal interface needed to initiate a payment.
type PaymentStarter interface {
	Start(ctx context.Context, in app.StartPaymentInput) (domain.Payment, error)
}

// PaymentReader reads payment status snapshots.
type PaymentReader interface {
	Status(ctx context.Context, reference string) (app.StatusSnapshot, error)
}

// PaymentRetrier starts a fresh attempt from a failed payment.
type PaymentRetrier interface {
	Retry(ctx context.Context, reference string) (domain.Payment, error)
}

// PaymentCloser discards an abandoned attempt.
type PaymentCloser interface {
	Reset(ctx context.Context, reference string) error
}

// TicketReader fetches the issued ticket for a reference.
type TicketReader interface {
	Get(ctx context.Context, reference string) (domain.Ticket, error)
}

type initiatePaymentRequest struct {
	Amount       int    `json:"amount"`
	Currency     string `json:"currency"`
	CustomerName string `json:"customer_name"`
	PhoneNumber  string `json:"phone_number"`
	Reference    string `json:"reference"`
}

func (r initiatePaymentRequest) validate() error {
	if r.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if strings.TrimSpace(r.CustomerName) == "" {
		return domain.ErrCustomerNameRequired
	}
	if strings.TrimSpace(r.PhoneNumber) == "" {
		return domain.ErrInvalidPhone
	}
	return nil
}

type paymentResponse struct {
	Reference         string `json:"reference"`
	ExternalReference string `json:"external_reference"`
	CheckoutRequestID string `json:"checkout_request_id,omitempty"`
	Status            string `json:"status"`
	PendingReason     string `json:"pending_reason,omitempty"`
	FailureReason     string `json:"failure_reason,omitempty"`
}

func toPaymentResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		Reference:         p.Reference,
		ExternalReference: p.ExternalReference,
		CheckoutRequestID: p.CheckoutRequestID,
		Status:            string(p.Status),
		PendingReason:     string(p.PendingReason),
		FailureReason:     string(p.FailureReason),
	}
}

// HandleInitiatePayment returns an HTTP handler for starting a payment.
func HandleInitiatePayment(svc PaymentStarter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req initiatePaymentRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if err := req.validate(); err != nil {
			writeValidationError(w, err)
			return
		}

		payment, err := svc.Start(r.Context(), app.StartPaymentInput{
			Amount:       req.Amount,
			Currency:     req.Currency,
			CustomerName: req.CustomerName,
			PhoneNumber:  req.PhoneNumber,
			Reference:    req.Reference,
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidPhone),
				errors.Is(err, domain.ErrInvalidAmount),
				errors.Is(err, domain.ErrCustomerNameRequired):
				writeValidationError(w, err)
			case errors.Is(err, domain.ErrDuplicateReference):
				writeError(w, http.StatusConflict, codeInvalidRequestBody, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		// An initiation failure is persisted so the buyer can retry, but the
		// gateway never accepted the push.
		if payment.Status == domain.PaymentStatusFailed {
			writeJSON(w, http.StatusBadGateway, toPaymentResponse(payment))
			return
		}
		writeJSON(w, http.StatusCreated, toPaymentResponse(payment))
	}
}

func writeValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPhone):
		writeError(w, http.StatusBadRequest, codeInvalidPhoneNumber, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, codeInvalidAmount, err.Error())
	case errors.Is(err, domain.ErrCustomerNameRequired):
		writeError(w, http.StatusBadRequest, codeCustomerNameRequired, err.Error())
	default:
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
	}
}

type statusSnapshotResponse struct {
	Reference         string  `json:"reference"`
	Status            string  `json:"status"`
	PendingReason     string  `json:"pending_reason,omitempty"`
	FailureReason     string  `json:"failure_reason,omitempty"`
	ProviderReference string  `json:"provider_reference,omitempty"`
	Message           string  `json:"message"`
	Progress          float64 `json:"progress"`
	TicketIssued      bool    `json:"ticket_issued"`
}

type ticketResponse struct {
	TicketID   string    `json:"ticket_id"`
	Reference  string    `json:"reference"`
	HolderName string    `json:"holder_name"`
	Gate       string    `json:"gate"`
	Section    string    `json:"section"`
	Row        int       `json:"row"`
	CreatedAt  time.Time `json:"created_at"`
}

// HandlePayment routes the per-reference operations:
//
//	GET    /payments/{reference}/status
//	GET    /payments/{reference}/ticket
//	POST   /payments/{reference}/retry
//	DELETE /payments/{reference}
func HandlePayment(reader PaymentReader, retrier PaymentRetrier, closer PaymentCloser, tickets TicketReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference, action, ok := parsePaymentPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch {
		case r.Method == http.MethodGet && action == "status":
			handlePaymentStatus(w, r, reader, reference)
		case r.Method == http.MethodGet && action == "ticket":
			handlePaymentTicket(w, r, tickets, reference)
		case r.Method == http.MethodPost && action == "retry":
			handlePaymentRetry(w, r, retrier, reference)
		case r.Method == http.MethodDelete && action == "":
			handlePaymentReset(w, r, closer, reference)
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

func handlePaymentStatus(w http.ResponseWriter, r *http.Request, reader PaymentReader, reference string) {
	snap, err := reader.Status(r.Context(), reference)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			writeError(w, http.StatusNotFound, codePaymentNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, statusSnapshotResponse{
		Reference:         snap.Payment.Reference,
		Status:            string(snap.Payment.Status),
		PendingReason:     string(snap.Payment.PendingReason),
		FailureReason:     string(snap.Payment.FailureReason),
		ProviderReference: snap.Payment.ProviderReference,
		Message:           snap.Message,
		Progress:          snap.Progress,
		TicketIssued:      snap.Payment.TicketIssued,
	})
}

func handlePaymentTicket(w http.ResponseWriter, r *http.Request, tickets TicketReader, reference string) {
	ticket, err := tickets.Get(r.Context(), reference)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			writeError(w, http.StatusNotFound, codeTicketNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, ticketResponse{
		TicketID:   ticket.TicketID,
		Reference:  ticket.Reference,
		HolderName: ticket.HolderName,
		Gate:       ticket.Gate,
		Section:    ticket.Section,
		Row:        ticket.Row,
		CreatedAt:  ticket.CreatedAt,
	})
}

func handlePaymentRetry(w http.ResponseWriter, r *http.Request, retrier PaymentRetrier, reference string) {
	payment, err := retrier.Retry(r.Context(), reference)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPaymentNotFound):
			writeError(w, http.StatusNotFound, codePaymentNotFound, err.Error())
		case errors.Is(err, domain.ErrPaymentNotRetryable):
			writeError(w, http.StatusConflict, codePaymentNotRetryable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		}
		return
	}

	if payment.Status == domain.PaymentStatusFailed {
		writeJSON(w, http.StatusBadGateway, toPaymentResponse(payment))
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(payment))
}

func handlePaymentReset(w http.ResponseWriter, r *http.Request, closer PaymentCloser, reference string) {
	if err := closer.Reset(r.Context(), reference); err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			writeError(w, http.StatusNotFound, codePaymentNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parsePaymentPath splits /payments/{reference}[/{action}]. The callback
// route is handled elsewhere and never reaches this handler.
func parsePaymentPath(path string) (reference, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != "payments" || parts[1] == "" {
		return "", "", false
	}
	reference = parts[1]
	if len(parts) == 3 {
		action = parts[2]
		if action != "status" && action != "retry" && action != "ticket" {
			return "", "", false
		}
	}
	return reference, action, true
}
