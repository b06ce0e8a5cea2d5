package domain

import "testing"

func TestNormalizeStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw        string
		wantStatus PaymentStatus
		wantReason PendingReason
	}{
		{raw: "SUCCESS", wantStatus: PaymentStatusSuccess},
		{raw: "COMPLETED", wantStatus: PaymentStatusSuccess},
		{raw: "success", wantStatus: PaymentStatusSuccess},
		{raw: " Completed ", wantStatus: PaymentStatusSuccess},
		{raw: "FAILED", wantStatus: PaymentStatusFailed},
		{raw: "CANCELLED", wantStatus: PaymentStatusFailed},
		{raw: "QUEUED", wantStatus: PaymentStatusPending, wantReason: PendingQueued},
		{raw: "PENDING", wantStatus: PaymentStatusPending, wantReason: PendingAwaitingPin},
		{raw: "PROCESSING", wantStatus: PaymentStatusPending, wantReason: PendingProcessing},
		{raw: "SOMETHING_NEW", wantStatus: PaymentStatusPending, wantReason: PendingProcessing},
		{raw: "", wantStatus: PaymentStatusPending, wantReason: PendingProcessing},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			status, reason := NormalizeStatus(tt.raw)
			if status != tt.wantStatus {
				t.Fatalf("NormalizeStatus(%q) status = %q, want %q", tt.raw, status, tt.wantStatus)
			}
			if reason != tt.wantReason {
				t.Fatalf("NormalizeStatus(%q) reason = %q, want %q", tt.raw, reason, tt.wantReason)
			}
		})
	}
}

func TestPaymentStatusTerminal(t *testing.T) {
	t.Parallel()

	if !PaymentStatusSuccess.Terminal() || !PaymentStatusFailed.Terminal() {
		t.Fatal("success and failed must be terminal")
	}
	if PaymentStatusInitiating.Terminal() || PaymentStatusPending.Terminal() {
		t.Fatal("non-final states must not be terminal")
	}
}
