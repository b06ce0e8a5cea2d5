package http

import (
	"encoding/json"
	"net/http"
)

const (
	codeMethodNotAllowed     = "method_not_allowed"
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeInvalidPhoneNumber   = "invalid_phone_number"
	codeInvalidAmount        = "invalid_amount"
	codeCustomerNameRequired = "customer_name_required"
	codeReferenceRequired    = "reference_required"
	codePaymentNotFound      = "payment_not_found"
	codePaymentNotRetryable  = "payment_not_retryable"
	codeInitiationFailed     = "payment_initiation_failed"
	codeTicketNotFound       = "ticket_not_found"
	codeAuthFailure          = "auth_failure"
	codeForbidden            = "forbidden"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
