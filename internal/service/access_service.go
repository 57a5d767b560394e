package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"coursegate/internal/database"
	"coursegate/internal/logger"
	"coursegate/internal/models"
	"coursegate/internal/repository"
	"coursegate/internal/validation"
)

// ContentStore looks up catalog data. Both methods return nil, nil when the
// item does not exist.
type ContentStore interface {
	GetCourse(ctx context.Context, courseID int64) (*models.Course, error)
	GetLesson(ctx context.Context, lessonID int64) (*models.Lesson, error)
}

// ProvisionedAccount is the result of resolving a buyer's email to an account.
// Password is only set when the account was created by this call.
type ProvisionedAccount struct {
	User     *models.User
	Created  bool
	Password string
}

// AccountProvisioner finds or creates the account for a guest buyer's email
type AccountProvisioner interface {
	ResolveOrCreate(ctx context.Context, email string) (*ProvisionedAccount, error)
}

// Notifier delivers buyer-facing messages. Failures never affect a purchase.
type Notifier interface {
	SendAccountCreated(ctx context.Context, toEmail, name, password string) error
	SendPurchaseConfirmation(ctx context.Context, toEmail, name string, course *models.Course) error
}

// PurchaseAttempt describes a payment that has been started for a course
type PurchaseAttempt struct {
	Principal         models.Principal
	CourseID          int64
	Tier              models.Tier
	ExternalPaymentID string
}

// Quote is the price a principal would pay for a course right now
type Quote struct {
	Course      *models.Course
	Tier        models.Tier
	AmountCents int64
	Currency    string
}

// AccessService owns the purchase ledger and answers whether a principal may
// open a course.
type AccessService struct {
	db            *database.DB
	purchases     *repository.PurchaseRepository
	content       ContentStore
	accounts      AccountProvisioner
	notifier      Notifier
	log           *logger.Logger
	now           func() time.Time
	notifyTimeout time.Duration
	pending       sync.WaitGroup
}

// NewAccessService creates a new access service
func NewAccessService(db *database.DB, purchases *repository.PurchaseRepository, content ContentStore, accounts AccountProvisioner, notifier Notifier, log *logger.Logger) *AccessService {
	return &AccessService{
		db:            db,
		purchases:     purchases,
		content:       content,
		accounts:      accounts,
		notifier:      notifier,
		log:           log.With("service", "AccessService"),
		now:           func() time.Time { return time.Now().UTC() },
		notifyTimeout: 30 * time.Second,
	}
}

// HasCompletedAccess reports whether the principal holds a completed purchase
// for the course. Pending and failed records never grant access.
func (s *AccessService) HasCompletedAccess(ctx context.Context, principal models.Principal, courseID int64) (bool, error) {
	if !principal.Valid() || courseID <= 0 {
		return false, nil
	}
	return s.purchases.HasCompleted(ctx, principal, courseID)
}

// QuotePrice resolves the price of a course tier
func (s *AccessService) QuotePrice(ctx context.Context, courseID int64, tier models.Tier) (*Quote, error) {
	course, err := s.content.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load course: %w", err)
	}
	if course == nil {
		return nil, ErrInvalidCourse
	}

	if tier == "" {
		tier = models.TierStandard
	}
	amount, ok := course.PriceFor(tier)
	if !ok {
		return nil, ErrInvalidTier
	}

	return &Quote{Course: course, Tier: tier, AmountCents: amount, Currency: course.Currency}, nil
}

// RecordPurchaseAttempt stores a pending purchase for a started payment. The
// price is locked from the catalog now. A pending or failed record for the
// same principal and course is replaced; a completed one is never touched.
func (s *AccessService) RecordPurchaseAttempt(ctx context.Context, attempt PurchaseAttempt) (*models.Purchase, error) {
	if err := validatePrincipal(attempt.Principal); err != nil {
		return nil, err
	}
	if attempt.ExternalPaymentID == "" {
		return nil, validation.Errors{"external_payment_id": "is required"}
	}

	quote, err := s.QuotePrice(ctx, attempt.CourseID, attempt.Tier)
	if err != nil {
		return nil, err
	}

	owned, err := s.HasCompletedAccess(ctx, attempt.Principal, attempt.CourseID)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, ErrAlreadyPurchased
	}

	stored, err := s.purchases.Upsert(ctx, &models.Purchase{
		PrincipalKey:      attempt.Principal.Key(),
		UserID:            attempt.Principal.UserID,
		Email:             attempt.Principal.Email,
		CourseID:          attempt.CourseID,
		AmountCents:       quote.AmountCents,
		Currency:          quote.Currency,
		Status:            models.PurchasePending,
		IsPremium:         quote.Tier == models.TierPremium,
		ExternalPaymentID: attempt.ExternalPaymentID,
		CreatedAt:         s.now(),
		UpdatedAt:         s.now(),
	})
	if err != nil {
		return nil, err
	}

	if stored.GrantsAccess() {
		return nil, ErrAlreadyPurchased
	}
	if stored.ExternalPaymentID != attempt.ExternalPaymentID {
		s.log.Warn("purchase attempt superseded by a concurrent attempt",
			"principal", stored.PrincipalKey,
			"course_id", stored.CourseID,
			"payment_id", attempt.ExternalPaymentID,
			"current_payment_id", stored.ExternalPaymentID,
		)
	}

	s.log.Info("purchase attempt recorded",
		"principal", stored.PrincipalKey,
		"course_id", stored.CourseID,
		"payment_id", stored.ExternalPaymentID,
		"amount_cents", stored.AmountCents,
	)
	return stored, nil
}

// ConfirmPurchase marks the purchase for a succeeded payment completed. It is
// idempotent: confirming a completed purchase returns it unchanged. A guest
// purchase is linked to the account for its email, creating one if needed.
func (s *AccessService) ConfirmPurchase(ctx context.Context, externalPaymentID string) (*models.Purchase, error) {
	rec, err := s.purchases.GetByExternalID(ctx, externalPaymentID, false)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrUnknownPayment
	}
	if rec.GrantsAccess() {
		return rec, nil
	}

	var account *ProvisionedAccount
	if rec.IsGuest() {
		account, err = s.accounts.ResolveOrCreate(ctx, rec.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to provision account for guest purchase: %w", err)
		}
	}

	var (
		confirmed    *models.Purchase
		transitioned bool
	)
	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		repo := s.purchases.WithTx(tx)

		cur, err := repo.GetByExternalID(ctx, externalPaymentID, true)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrUnknownPayment
		}
		if cur.GrantsAccess() {
			confirmed = cur
			return nil
		}

		now := s.now()
		if account != nil && cur.IsGuest() {
			if err := s.linkGuestPurchase(ctx, repo, cur, account.User.ID, now); err != nil {
				return err
			}
		}

		n, err := repo.MarkCompleted(ctx, externalPaymentID, now)
		if err != nil {
			return err
		}
		transitioned = n > 0

		confirmed, err = repo.GetByExternalID(ctx, externalPaymentID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	if confirmed == nil {
		return nil, ErrUnknownPayment
	}

	if transitioned {
		s.log.Info("purchase completed",
			"purchase_id", confirmed.ID,
			"principal", confirmed.PrincipalKey,
			"course_id", confirmed.CourseID,
			"payment_id", externalPaymentID,
		)
		s.notifyCompletion(confirmed, account)
	}
	return confirmed, nil
}

// linkGuestPurchase moves a guest purchase onto the user's principal key. If
// the user already owns the course the guest row keeps its key and only
// records the user id, so the uniqueness of (principal, course) holds.
func (s *AccessService) linkGuestPurchase(ctx context.Context, repo *repository.PurchaseRepository, guest *models.Purchase, userID int64, now time.Time) error {
	userKey := models.UserPrincipal(userID).Key()

	existing, err := repo.GetByPrincipalCourse(ctx, userKey, guest.CourseID)
	if err != nil {
		return err
	}
	if existing != nil && existing.GrantsAccess() {
		s.log.Warn("guest payment for a course the account already owns",
			"user_id", userID,
			"course_id", guest.CourseID,
			"payment_id", guest.ExternalPaymentID,
		)
		return repo.SetUserID(ctx, guest.ID, userID, now)
	}
	if existing != nil {
		if err := repo.DeleteOpen(ctx, userKey, guest.CourseID); err != nil {
			return err
		}
	}

	if _, err := repo.LinkToUser(ctx, guest.ID, userID, now); err != nil {
		return err
	}
	return nil
}

// FailPurchase marks the pending purchase for a failed payment as failed.
// Completed purchases are left as they are.
func (s *AccessService) FailPurchase(ctx context.Context, externalPaymentID string) (*models.Purchase, error) {
	n, err := s.purchases.MarkFailed(ctx, externalPaymentID, s.now())
	if err != nil {
		return nil, err
	}

	rec, err := s.purchases.GetByExternalID(ctx, externalPaymentID, false)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrUnknownPayment
	}

	if n > 0 {
		s.log.Info("purchase failed", "purchase_id", rec.ID, "course_id", rec.CourseID, "payment_id", externalPaymentID)
	}
	return rec, nil
}

// GrantFreeAccess records a completed zero-amount purchase. Granting a course
// the principal already owns returns the existing purchase.
func (s *AccessService) GrantFreeAccess(ctx context.Context, principal models.Principal, courseID int64) (*models.Purchase, error) {
	if err := validatePrincipal(principal); err != nil {
		return nil, err
	}

	course, err := s.content.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load course: %w", err)
	}
	if course == nil {
		return nil, ErrInvalidCourse
	}

	existing, err := s.purchases.FindCompleted(ctx, principal, courseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	stored, err := s.purchases.Upsert(ctx, &models.Purchase{
		PrincipalKey: principal.Key(),
		UserID:       principal.UserID,
		Email:        principal.Email,
		CourseID:     courseID,
		AmountCents:  0,
		Currency:     course.Currency,
		Status:       models.PurchaseCompleted,
		CreatedAt:    s.now(),
		UpdatedAt:    s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("free access granted", "principal", stored.PrincipalKey, "course_id", courseID)
	return stored, nil
}

// RevokeAccess deletes the principal's completed purchases for a course and
// returns how many were removed. Lesson progress is retained.
func (s *AccessService) RevokeAccess(ctx context.Context, principal models.Principal, courseID int64) (int64, error) {
	if err := validatePrincipal(principal); err != nil {
		return 0, err
	}

	n, err := s.purchases.DeleteCompleted(ctx, principal, courseID)
	if err != nil {
		return 0, err
	}
	s.log.Info("access revoked", "principal", principal.Key(), "course_id", courseID, "removed", n)
	return n, nil
}

// PurchaseForPayment returns the purchase recorded for a payment intent
func (s *AccessService) PurchaseForPayment(ctx context.Context, externalPaymentID string) (*models.Purchase, error) {
	rec, err := s.purchases.GetByExternalID(ctx, externalPaymentID, false)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrUnknownPayment
	}
	return rec, nil
}

// ListPurchases returns a user's purchases, newest first
func (s *AccessService) ListPurchases(ctx context.Context, userID int64) ([]*models.Purchase, error) {
	return s.purchases.ListForUser(ctx, userID)
}

// ExpireStalePending fails pending purchases untouched for longer than ttl
func (s *AccessService) ExpireStalePending(ctx context.Context, ttl time.Duration) (int64, error) {
	now := s.now()
	n, err := s.purchases.ExpireStale(ctx, now.Add(-ttl), now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired stale pending purchases", "count", n, "ttl", ttl.String())
	}
	return n, nil
}

// Wait blocks until in-flight notifications have finished
func (s *AccessService) Wait() {
	s.pending.Wait()
}

func (s *AccessService) notifyCompletion(p *models.Purchase, account *ProvisionedAccount) {
	if s.notifier == nil {
		return
	}

	email := p.Email
	name := ""
	if account != nil {
		email = account.User.Email
		name = account.User.Name
	}
	if email == "" {
		return
	}

	if account != nil && account.Created {
		password := account.Password
		s.notifyAsync("account_created", func(ctx context.Context) error {
			return s.notifier.SendAccountCreated(ctx, email, name, password)
		})
	}

	courseID := p.CourseID
	s.notifyAsync("purchase_confirmation", func(ctx context.Context) error {
		course, err := s.content.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		if course == nil {
			return ErrInvalidCourse
		}
		return s.notifier.SendPurchaseConfirmation(ctx, email, name, course)
	})
}

func (s *AccessService) notifyAsync(kind string, send func(ctx context.Context) error) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		if err := send(ctx); err != nil {
			s.log.Warn("notification failed", "kind", kind, "error", err)
		}
	}()
}

func validatePrincipal(p models.Principal) error {
	if p.UserID > 0 {
		return nil
	}
	if err := validation.ValidateEmail(p.Email); err != nil {
		return err
	}
	return nil
}
