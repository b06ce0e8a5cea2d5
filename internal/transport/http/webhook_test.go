package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/metacodeltd/mookh-tickets/internal/domain"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHandleGatewayCallback(t *testing.T) {
	t.Parallel()

	const secret = "whsec-test"
	completed := []byte(`{
		"event": "payment.completed",
		"data": {
			"transaction": {
				"reference": "REF123",
				"provider_reference": "SBC1XYZ",
				"status": "SUCCESS",
				"amount": 1500,
				"currency": "KES",
				"customer_name": "Jane Fan",
				"phone_number": "254712345678",
				"CheckoutRequestID": "ws_CO_1"
			}
		},
		"timestamp": "2026-03-01T19:30:00Z"
	}`)

	tests := []struct {
		name           string
		secret         string
		body           []byte
		signature      string
		method         string
		sinkErr        error
		expectedStatus int
		expectedEvent  *domain.StatusEvent
	}{
		{
			name:           "completed",
			secret:         secret,
			body:           completed,
			signature:      signBody(secret, completed),
			expectedStatus: http.StatusOK,
			expectedEvent: &domain.StatusEvent{
				Reference:         "REF123",
				RawStatus:         "SUCCESS",
				ProviderReference: "SBC1XYZ",
				Source:            domain.SourceWebhook,
			},
		},
		{
			name:           "bad signature",
			secret:         secret,
			body:           completed,
			signature:      "sha256=deadbeef",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "missing signature",
			secret:         secret,
			body:           completed,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "no secret configured skips verification",
			body:           completed,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid json",
			secret:         secret,
			body:           []byte(`{"event":`),
			signature:      signBody(secret, []byte(`{"event":`)),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing reference",
			secret:         secret,
			body:           []byte(`{"event":"payment.completed","data":{"transaction":{}}}`),
			signature:      signBody(secret, []byte(`{"event":"payment.completed","data":{"transaction":{}}}`)),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "sink error still acknowledged",
			secret:         secret,
			body:           completed,
			signature:      signBody(secret, completed),
			sinkErr:        errors.New("db down"),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "wrong method",
			secret:         secret,
			method:         http.MethodGet,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sink := &stubStatusSink{err: tt.sinkErr}
			method := tt.method
			if method == "" {
				method = http.MethodPost
			}
			req := httptest.NewRequest(method, "/payments/callback", bytes.NewReader(tt.body))
			if tt.signature != "" {
				req.Header.Set("X-Payhero-Signature", tt.signature)
			}
			rec := httptest.NewRecorder()

			HandleGatewayCallback(sink, tt.secret, nil).ServeHTTP(rec, req)

			if rec.Result().StatusCode != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, rec.Result().StatusCode, rec.Body.String())
			}

			if tt.expectedEvent != nil {
				if sink.applied == nil {
					t.Fatal("expected the sink to receive an event")
				}
				got := *sink.applied
				if got.Reference != tt.expectedEvent.Reference {
					t.Errorf("reference = %q, want %q", got.Reference, tt.expectedEvent.Reference)
				}
				if got.RawStatus != tt.expectedEvent.RawStatus {
					t.Errorf("raw status = %q, want %q", got.RawStatus, tt.expectedEvent.RawStatus)
				}
				if got.ProviderReference != tt.expectedEvent.ProviderReference {
					t.Errorf("provider reference = %q, want %q", got.ProviderReference, tt.expectedEvent.ProviderReference)
				}
				if got.Source != domain.SourceWebhook {
					t.Errorf("source = %q, want webhook", got.Source)
				}
				if got.Transaction == nil {
					t.Fatal("expected transaction details")
				}
				if got.Transaction.Amount != 1500 || got.Transaction.PhoneNumber != "254712345678" {
					t.Errorf("unexpected transaction details: %+v", got.Transaction)
				}
			}
			if tt.expectedStatus != http.StatusOK && sink.applied != nil {
				t.Error("sink must not receive events from rejected deliveries")
			}
		})
	}
}

func TestHandleGatewayCallbackEventNameFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		event string
		want  string
	}{
		{event: "payment.completed", want: "SUCCESS"},
		{event: "payment.failed", want: "FAILED"},
		{event: "payment.pending", want: "PENDING"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.event, func(t *testing.T) {
			t.Parallel()
			body := []byte(`{"event":"` + tt.event + `","data":{"transaction":{"reference":"REF9"}}}`)
			sink := &stubStatusSink{}
			req := httptest.NewRequest(http.MethodPost, "/payments/callback", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			HandleGatewayCallback(sink, "", nil).ServeHTTP(rec, req)

			if rec.Result().StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Result().StatusCode)
			}
			if sink.applied == nil {
				t.Fatal("expected the sink to receive an event")
			}
			if sink.applied.RawStatus != tt.want {
				t.Fatalf("raw status = %q, want %q", sink.applied.RawStatus, tt.want)
			}
		})
	}
}

type stubStatusSink struct {
	applied *domain.StatusEvent
	err     error
}

func (s *stubStatusSink) ApplyStatusEvent(_ context.Context, ev domain.StatusEvent) (domain.Payment, error) {
	s.applied = &ev
	return domain.Payment{}, s.err
}
