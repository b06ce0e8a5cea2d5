package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/metacodeltd/mookh-tickets/internal/domain"
)

// StatusEventSink consumes gateway status events.
type StatusEventSink interface {
	ApplyStatusEvent(ctx context.Context, ev domain.StatusEvent) (domain.Payment, error)
}

const maxCallbackBody = 1 << 20

type callbackPayload struct {
	Event string `json:"event"`
	Data  struct {
		Transaction callbackTransaction `json:"transaction"`
	} `json:"data"`
	Timestamp string `json:"timestamp"`
}

type callbackTransaction struct {
	Reference         string  `json:"reference"`
	ExternalReference string  `json:"external_reference"`
	CheckoutRequestID string  `json:"CheckoutRequestID"`
	ProviderReference string  `json:"provider_reference"`
	Status            string  `json:"status"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
	CustomerName      string  `json:"customer_name"`
	PhoneNumber       string  `json:"phone_number"`
}

// HandleGatewayCallback receives asynchronous payment notifications from the
// gateway. The signature is an HMAC-SHA256 of the raw body, delivered as
// "sha256=<hex>" in X-Payhero-Signature. With no secret configured the check
// is skipped. After a verified payload is handed to the sink the response is
// always 200, so the gateway never retries a delivery we already consumed.
func HandleGatewayCallback(sink StatusEventSink, secret string, logger *log.Logger) http.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		if secret != "" && !verifySignature(body, r.Header.Get("X-Payhero-Signature"), secret) {
			writeError(w, http.StatusUnauthorized, codeAuthFailure, "invalid signature")
			return
		}

		var payload callbackPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		ev, ok := eventFromCallback(payload)
		if !ok {
			writeError(w, http.StatusBadRequest, codeReferenceRequired, "transaction reference missing")
			return
		}

		if _, err := sink.ApplyStatusEvent(r.Context(), ev); err != nil {
			// The delivery was authentic; a processing error is ours to
			// resolve, not the gateway's to retry.
			logger.Printf("callback apply failed reference=%s err=%v", ev.Reference, err)
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func verifySignature(body []byte, header, secret string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(strings.ToLower(sig)))
}

func eventFromCallback(payload callbackPayload) (domain.StatusEvent, bool) {
	tx := payload.Data.Transaction
	reference := tx.Reference
	if reference == "" {
		reference = tx.ExternalReference
	}
	if reference == "" {
		return domain.StatusEvent{}, false
	}

	raw := tx.Status
	if raw == "" {
		switch payload.Event {
		case "payment.completed":
			raw = "SUCCESS"
		case "payment.failed":
			raw = "FAILED"
		case "payment.pending":
			raw = "PENDING"
		}
	}

	observed := time.Now().UTC()
	if payload.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
			observed = ts
		}
	}

	return domain.StatusEvent{
		Reference:         reference,
		RawStatus:         raw,
		ProviderReference: tx.ProviderReference,
		Source:            domain.SourceWebhook,
		ObservedAt:        observed,
		Transaction: &domain.TransactionDetails{
			GatewayID:    tx.CheckoutRequestID,
			Amount:       int(tx.Amount),
			Currency:     tx.Currency,
			CustomerName: tx.CustomerName,
			PhoneNumber:  tx.PhoneNumber,
		},
	}, true
}
