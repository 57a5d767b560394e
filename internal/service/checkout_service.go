package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"coursegate/internal/logger"
	"coursegate/internal/models"
	"coursegate/internal/payment"
	"coursegate/internal/security"
)

// PaymentProcessor creates and looks up payment intents
type PaymentProcessor interface {
	CreateIntent(ctx context.Context, params payment.IntentParams) (*payment.Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*payment.Intent, error)
}

// EventDeduper remembers handled webhook event ids
type EventDeduper interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// CheckoutRequest starts a purchase for a user or a guest email
type CheckoutRequest struct {
	Principal models.Principal
	CourseID  int64
	Tier      models.Tier
}

// CheckoutSession is what a client needs to collect payment
type CheckoutSession struct {
	Purchase        *models.Purchase
	PaymentIntentID string
	ClientSecret    string
	AmountCents     int64
	Currency        string
}

// ConfirmOutcome reports the processor's verdict on a payment and the purchase
// it settled. Purchase is nil when no purchase was recorded for the payment.
type ConfirmOutcome struct {
	Status   payment.Status
	Purchase *models.Purchase
}

// CheckoutService drives a purchase from quote to confirmation against the
// payment processor.
type CheckoutService struct {
	access      *AccessService
	processor   PaymentProcessor
	deduper     EventDeduper
	log         *logger.Logger
	callTimeout time.Duration
}

// NewCheckoutService creates a new checkout service. callTimeout bounds each
// processor call.
func NewCheckoutService(access *AccessService, processor PaymentProcessor, deduper EventDeduper, callTimeout time.Duration, log *logger.Logger) *CheckoutService {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &CheckoutService{
		access:      access,
		processor:   processor,
		deduper:     deduper,
		log:         log.With("service", "CheckoutService"),
		callTimeout: callTimeout,
	}
}

// StartPurchase creates a payment intent for the course price and records a
// pending purchase for it. Buying a course already owned fails with
// ErrAlreadyPurchased before any charge is attempted.
func (s *CheckoutService) StartPurchase(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if err := validatePrincipal(req.Principal); err != nil {
		return nil, err
	}

	owned, err := s.access.HasCompletedAccess(ctx, req.Principal, req.CourseID)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, ErrAlreadyPurchased
	}

	quote, err := s.access.QuotePrice(ctx, req.CourseID, req.Tier)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	intent, err := s.processor.CreateIntent(callCtx, payment.IntentParams{
		AmountCents:  quote.AmountCents,
		Currency:     quote.Currency,
		Description:  quote.Course.Title,
		ReceiptEmail: models.NormalizeEmail(req.Principal.Email),
		Metadata: map[string]string{
			"course_id": strconv.FormatInt(req.CourseID, 10),
			"principal": req.Principal.Key(),
			"tier":      string(quote.Tier),
		},
		IdempotencyKey: security.NewIdempotencyKey(),
	})
	if err != nil {
		return nil, s.externalError("create intent", err)
	}

	rec, err := s.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{
		Principal:         req.Principal,
		CourseID:          req.CourseID,
		Tier:              quote.Tier,
		ExternalPaymentID: intent.ID,
	})
	if err != nil {
		return nil, err
	}

	return &CheckoutSession{
		Purchase:        rec,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		AmountCents:     quote.AmountCents,
		Currency:        quote.Currency,
	}, nil
}

// ConfirmPayment asks the processor for the state of a payment intent and
// applies it to the ledger. A payment with no recorded purchase is logged and
// reported with a nil Purchase.
func (s *CheckoutService) ConfirmPayment(ctx context.Context, paymentIntentID string) (*ConfirmOutcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	intent, err := s.processor.RetrieveIntent(callCtx, paymentIntentID)
	if err != nil {
		return nil, s.externalError("retrieve intent", err)
	}

	outcome := &ConfirmOutcome{Status: intent.Status}
	rec, err := s.apply(ctx, intent.ID, intent.Status)
	if errors.Is(err, ErrUnknownPayment) {
		s.log.Warn("payment confirmed without a recorded purchase", "payment_id", intent.ID, "status", intent.Status)
		return outcome, nil
	}
	if err != nil {
		return nil, err
	}
	outcome.Purchase = rec
	return outcome, nil
}

// HandleWebhookEvent applies a processor notification. Duplicate deliveries
// are ignored. An error means the event should be redelivered.
func (s *CheckoutService) HandleWebhookEvent(ctx context.Context, evt *payment.Event) error {
	if evt.Status == "" {
		s.log.Debug("ignoring webhook event", "event_id", evt.ID, "type", evt.Type)
		return nil
	}

	if s.deduper != nil {
		first, err := s.deduper.FirstSeen(ctx, evt.ID)
		if err != nil {
			s.log.Warn("webhook dedupe unavailable, processing anyway", "event_id", evt.ID, "error", err)
		} else if !first {
			s.log.Info("duplicate webhook event ignored", "event_id", evt.ID, "type", evt.Type)
			return nil
		}
	}

	_, err := s.apply(ctx, evt.IntentID, evt.Status)
	if errors.Is(err, ErrUnknownPayment) {
		s.log.Warn("webhook for unknown payment", "event_id", evt.ID, "payment_id", evt.IntentID, "type", evt.Type)
		return nil
	}
	if err != nil {
		if s.deduper != nil {
			if ferr := s.deduper.Forget(ctx, evt.ID); ferr != nil {
				s.log.Warn("failed to release webhook event", "event_id", evt.ID, "error", ferr)
			}
		}
		return err
	}

	s.log.Info("webhook event applied", "event_id", evt.ID, "payment_id", evt.IntentID, "status", evt.Status)
	return nil
}

func (s *CheckoutService) apply(ctx context.Context, paymentIntentID string, status payment.Status) (*models.Purchase, error) {
	switch status {
	case payment.StatusSucceeded:
		return s.access.ConfirmPurchase(ctx, paymentIntentID)
	case payment.StatusFailed:
		return s.access.FailPurchase(ctx, paymentIntentID)
	default:
		return s.access.PurchaseForPayment(ctx, paymentIntentID)
	}
}

func (s *CheckoutService) externalError(op string, err error) error {
	retryable := payment.IsRetryable(err)
	s.log.Error("payment processor call failed", "op", op, "retryable", retryable, "error", err)
	return &ExternalPaymentError{Op: op, Retryable: retryable, Err: err}
}
