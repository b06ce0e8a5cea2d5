package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/metacodeltd/mookh-tickets/internal/clock"
	"github.com/metacodeltd/mookh-tickets/internal/domain"
)

const (
	initiatePath = "/api/v2/payments"
	statusPath   = "/api/v2/transaction-status"
	provider     = "m-pesa"
)

var (
	ErrGatewayUnreachable = errors.New("gateway unreachable")
	ErrProtocolViolation  = errors.New("unexpected gateway response")
)

// RejectedError is a non-2xx answer from the gateway at initiation time.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway rejected request: %d %s", e.StatusCode, e.Message)
}

type Config struct {
	BaseURL     string
	AccountID   string
	ChannelID   int
	AuthToken   string // full Authorization header value, e.g. "Basic abc=="
	CallbackURL string
	Timeout     time.Duration
}

// Client wraps the gateway's two operations: initiate an STK push and query
// transaction status.
type Client struct {
	cfg    Config
	http   *http.Client
	clock  clock.Clock
	logger *log.Logger
}

func NewClient(cfg Config, clk clock.Clock, logger *log.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		clock:  clk,
		logger: logger,
	}
}

type InitiateRequest struct {
	Amount            int
	PhoneNumber       string
	CustomerName      string
	ExternalReference string
}

// Acceptance is the gateway's acknowledgment of a queued STK push. Reference
// is the gateway-issued transaction reference used for all status lookups.
type Acceptance struct {
	Reference         string
	CheckoutRequestID string
	RawStatus         string
}

type initiatePayload struct {
	Amount            int    `json:"amount"`
	PhoneNumber       string `json:"phone_number"`
	ChannelID         int    `json:"channel_id"`
	Provider          string `json:"provider"`
	ExternalReference string `json:"external_reference"`
	CustomerName      string `json:"customer_name"`
	CallbackURL       string `json:"callback_url,omitempty"`
}

type initiateResponse struct {
	Status            string `json:"status"`
	Reference         string `json:"reference"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	Message           string `json:"message"`
	ErrorMessage      string `json:"error_message"`
}

// Initiate submits an STK push request. Classification: transport failure is
// ErrGatewayUnreachable, a non-2xx answer is RejectedError, and a 2xx body
// missing the transaction identifiers is ErrProtocolViolation.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (Acceptance, error) {
	payload := initiatePayload{
		Amount:            req.Amount,
		PhoneNumber:       req.PhoneNumber,
		ChannelID:         c.cfg.ChannelID,
		Provider:          provider,
		ExternalReference: req.ExternalReference,
		CustomerName:      req.CustomerName,
		CallbackURL:       c.cfg.CallbackURL,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Acceptance{}, fmt.Errorf("encode initiate payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+initiatePath, bytes.NewReader(body))
	if err != nil {
		return Acceptance{}, fmt.Errorf("build initiate request: %w", err)
	}
	c.setHeaders(httpReq)

	c.logger.Printf("gateway initiate reference=%s phone=%s amount=%d",
		req.ExternalReference, maskPhone(req.PhoneNumber), req.Amount)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Acceptance{}, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Acceptance{}, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}

	var parsed initiateResponse
	parseErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := parsed.ErrorMessage
		if msg == "" {
			msg = parsed.Message
		}
		if msg == "" {
			msg = resp.Status
		}
		return Acceptance{}, &RejectedError{StatusCode: resp.StatusCode, Message: msg}
	}
	if parseErr != nil {
		return Acceptance{}, fmt.Errorf("%w: %v", ErrProtocolViolation, parseErr)
	}
	if parsed.Reference == "" || parsed.CheckoutRequestID == "" {
		return Acceptance{}, fmt.Errorf("%w: missing reference or CheckoutRequestID", ErrProtocolViolation)
	}

	status := parsed.Status
	if status == "" {
		status = "QUEUED"
	}
	return Acceptance{
		Reference:         parsed.Reference,
		CheckoutRequestID: parsed.CheckoutRequestID,
		RawStatus:         status,
	}, nil
}

type statusResponse struct {
	Status              string `json:"status"`
	ProviderReference   string `json:"provider_reference"`
	ThirdPartyReference string `json:"third_party_reference"`
	Message             string `json:"message"`
}

// QueryStatus looks up the current transaction status. It is fail-open: a
// transport error, non-2xx answer, or unparseable body comes back as a
// synthetic QUEUED event rather than a failure, so a transient glitch can
// never fail a payment the buyer may already have completed on their phone.
func (c *Client) QueryStatus(ctx context.Context, reference string) domain.StatusEvent {
	endpoint := c.cfg.BaseURL + statusPath + "?reference=" + url.QueryEscape(reference)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return c.pendingEvent(reference)
	}
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Printf("gateway status check failed reference=%s err=%v", reference, err)
		return c.pendingEvent(reference)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.logger.Printf("gateway status read failed reference=%s err=%v", reference, err)
		return c.pendingEvent(reference)
	}

	var parsed statusResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		c.logger.Printf("gateway status parse failed reference=%s err=%v", reference, err)
		return c.pendingEvent(reference)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Printf("gateway status check rejected reference=%s status=%d message=%s",
			reference, resp.StatusCode, parsed.Message)
		return c.pendingEvent(reference)
	}

	status := parsed.Status
	if status == "" {
		status = "PENDING"
	}
	providerRef := parsed.ProviderReference
	if providerRef == "" {
		providerRef = parsed.ThirdPartyReference
	}
	return domain.StatusEvent{
		Reference:         reference,
		RawStatus:         status,
		ProviderReference: providerRef,
		Source:            domain.SourcePoll,
		ObservedAt:        c.clock.Now(),
	}
}

func (c *Client) pendingEvent(reference string) domain.StatusEvent {
	return domain.StatusEvent{
		Reference:  reference,
		RawStatus:  "QUEUED",
		Source:     domain.SourcePoll,
		ObservedAt: c.clock.Now(),
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.cfg.AuthToken)
}

func maskPhone(phone string) string {
	if len(phone) < 8 {
		return "****"
	}
	return phone[:6] + "****" + phone[len(phone)-2:]
}
