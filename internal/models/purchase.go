package models

import (
	"fmt"
	"strings"
	"time"
)

// PurchaseStatus is the lifecycle state of a purchase record
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
)

// Principal identifies who owns a purchase: a registered user, or a guest
// known only by email. A registered user takes precedence when both are set.
type Principal struct {
	UserID int64
	Email  string
}

// UserPrincipal returns a principal for a registered user
func UserPrincipal(userID int64) Principal {
	return Principal{UserID: userID}
}

// GuestPrincipal returns a principal for an unauthenticated buyer
func GuestPrincipal(email string) Principal {
	return Principal{Email: email}
}

// IsGuest reports whether the principal has no user account
func (p Principal) IsGuest() bool {
	return p.UserID <= 0
}

// Valid reports whether the principal identifies anyone
func (p Principal) Valid() bool {
	return p.UserID > 0 || NormalizeEmail(p.Email) != ""
}

// Key is the ownership key stored on purchase rows. Purchases are unique per
// (Key, course).
func (p Principal) Key() string {
	if p.UserID > 0 {
		return fmt.Sprintf("user:%d", p.UserID)
	}
	return "email:" + NormalizeEmail(p.Email)
}

func (p Principal) String() string {
	return p.Key()
}

// NormalizeEmail lowercases and trims an address for comparison
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Purchase is the ledger entry tying a principal to a course. UserID is zero
// for a guest purchase that has not been linked to an account yet.
type Purchase struct {
	ID                int64          `json:"id"`
	PrincipalKey      string         `json:"-"`
	UserID            int64          `json:"user_id,omitempty"`
	Email             string         `json:"email,omitempty"`
	CourseID          int64          `json:"course_id"`
	AmountCents       int64          `json:"amount_cents"`
	Currency          string         `json:"currency"`
	Status            PurchaseStatus `json:"status"`
	IsPremium         bool           `json:"is_premium"`
	ExternalPaymentID string         `json:"external_payment_id,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// GrantsAccess reports whether the record unlocks its course
func (p *Purchase) GrantsAccess() bool {
	return p.Status == PurchaseCompleted
}

// IsGuest reports whether the purchase still belongs to an email-only principal
func (p *Purchase) IsGuest() bool {
	return p.UserID <= 0 && IsGuestKey(p.PrincipalKey)
}

// IsGuestKey reports whether a stored principal key belongs to a guest
func IsGuestKey(key string) bool {
	return strings.HasPrefix(key, "email:")
}

// Tier returns the tier the purchase was priced at
func (p *Purchase) Tier() Tier {
	if p.IsPremium {
		return TierPremium
	}
	return TierStandard
}
