package service

import (
	"errors"
	"fmt"
)

var (
	ErrAccessDenied       = errors.New("access denied")
	ErrAlreadyPurchased   = errors.New("course already purchased")
	ErrInvalidCourse      = errors.New("course not found")
	ErrInvalidLesson      = errors.New("lesson not found")
	ErrUnknownPayment     = errors.New("no purchase recorded for payment")
	ErrExternalPayment    = errors.New("payment processor unavailable")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("authentication required")
)

// ErrInvalidTier is returned for a price tier the course does not offer. It
// also matches ErrInvalidCourse.
var ErrInvalidTier error = invalidTierError{}

type invalidTierError struct{}

func (invalidTierError) Error() string {
	return "price tier not offered for this course"
}

func (invalidTierError) Is(target error) bool {
	return target == ErrInvalidCourse
}

// ExternalPaymentError wraps a payment processor failure. It matches
// ErrExternalPayment with errors.Is.
type ExternalPaymentError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *ExternalPaymentError) Error() string {
	return fmt.Sprintf("payment processor %s failed: %v", e.Op, e.Err)
}

func (e *ExternalPaymentError) Unwrap() error {
	return e.Err
}

func (e *ExternalPaymentError) Is(target error) bool {
	return target == ErrExternalPayment
}
