package domain

import "errors"

var (
	ErrInvalidPhone         = errors.New("invalid phone number")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrCustomerNameRequired = errors.New("customer name required")
	ErrReferenceRequired    = errors.New("reference required")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrDuplicateReference   = errors.New("reference already exists")
	ErrPaymentNotRetryable  = errors.New("payment is not in a failed state")
	ErrTicketAlreadyIssued  = errors.New("ticket already issued")
	ErrTicketNotFound       = errors.New("ticket not found")
)
