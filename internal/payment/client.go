// Package payment talks to a Stripe-compatible card processor: creating and
// retrieving payment intents and decoding webhook events.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"coursegate/internal/config"
	"coursegate/internal/logger"
)

// Status is the normalized state of a payment intent
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Intent is a processor-side payment attempt
type Intent struct {
	ID             string
	ClientSecret   string
	Status         Status
	AmountCents    int64
	Currency       string
	FailureMessage string
	Metadata       map[string]string
}

// IntentParams describes a payment intent to create
type IntentParams struct {
	AmountCents    int64
	Currency       string
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// Error is returned for any processor failure. Retryable is set for
// timeouts, transport errors, rate limiting and 5xx responses.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment processor: %v", e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("payment processor: status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("payment processor: status %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transient processor failure
func IsRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable
}

// Client is a Stripe-compatible payment intents client
type Client struct {
	http *resty.Client
	log  *logger.Logger
}

const (
	retryWait    = 200 * time.Millisecond
	retryMaxWait = 2 * time.Second
)

// NewClient builds a client authenticated with the secret key of the
// configured mode.
func NewClient(cfg config.PaymentConfig, log *logger.Logger) (*Client, error) {
	key := cfg.SecretKey()
	if key == "" {
		mode := "live"
		if cfg.TestMode {
			mode = "test"
		}
		return nil, fmt.Errorf("payment %s secret key is not configured", mode)
	}

	hc := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: key,
		TokenType:   "Bearer",
	}))

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rc := resty.NewWithClient(hc).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return isRetryableStatus(r.StatusCode())
		})

	return &Client{http: rc, log: log}, nil
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

type intentResponse struct {
	ID               string            `json:"id"`
	ClientSecret     string            `json:"client_secret"`
	Status           string            `json:"status"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent creates a payment intent for the amount and currency given
func (c *Client) CreateIntent(ctx context.Context, p IntentParams) (*Intent, error) {
	form := map[string]string{
		"amount":                             strconv.FormatInt(p.AmountCents, 10),
		"currency":                           p.Currency,
		"automatic_payment_methods[enabled]": "true",
	}
	if p.Description != "" {
		form["description"] = p.Description
	}
	if p.ReceiptEmail != "" {
		form["receipt_email"] = p.ReceiptEmail
	}
	for k, v := range p.Metadata {
		form["metadata["+k+"]"] = v
	}

	req := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&intentResponse{}).
		SetError(&errorResponse{})
	if p.IdempotencyKey != "" {
		req.SetHeader("Idempotency-Key", p.IdempotencyKey)
	}

	resp, err := req.Post("/v1/payment_intents")
	intent, err := c.decode(resp, err)
	if err != nil {
		return nil, err
	}

	c.log.Info("payment intent created", "intent_id", intent.ID, "amount_cents", intent.AmountCents, "currency", intent.Currency)
	return intent, nil
}

// RetrieveIntent fetches the current state of a payment intent
func (c *Client) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&intentResponse{}).
		SetError(&errorResponse{}).
		Get("/v1/payment_intents/{id}")
	return c.decode(resp, err)
}

func (c *Client) decode(resp *resty.Response, err error) (*Intent, error) {
	if err != nil {
		return nil, &Error{Err: err, Retryable: !errors.Is(err, context.Canceled)}
	}

	if resp.IsError() {
		pe := &Error{
			StatusCode: resp.StatusCode(),
			Message:    http.StatusText(resp.StatusCode()),
			Retryable:  isRetryableStatus(resp.StatusCode()),
		}
		if body, ok := resp.Error().(*errorResponse); ok && body.Error.Message != "" {
			pe.Code = body.Error.Code
			pe.Message = body.Error.Message
		}
		c.log.Warn("payment processor returned error", "status", pe.StatusCode, "code", pe.Code, "message", pe.Message)
		return nil, pe
	}

	body, ok := resp.Result().(*intentResponse)
	if !ok || body.ID == "" {
		return nil, &Error{StatusCode: resp.StatusCode(), Message: "malformed payment intent response"}
	}

	intent := &Intent{
		ID:           body.ID,
		ClientSecret: body.ClientSecret,
		Status:       normalizeStatus(body.Status, body.LastPaymentError != nil),
		AmountCents:  body.Amount,
		Currency:     body.Currency,
		Metadata:     body.Metadata,
	}
	if body.LastPaymentError != nil {
		intent.FailureMessage = body.LastPaymentError.Message
	}
	return intent, nil
}

// normalizeStatus folds the processor's intent states into three. An intent
// asking for a new payment method after a declined attempt counts as failed.
func normalizeStatus(status string, hasPaymentError bool) Status {
	switch status {
	case "succeeded":
		return StatusSucceeded
	case "canceled":
		return StatusFailed
	case "requires_payment_method":
		if hasPaymentError {
			return StatusFailed
		}
		return StatusPending
	default:
		return StatusPending
	}
}
