package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursegate/internal/models"
	"coursegate/internal/repository"
	"coursegate/internal/testutil"
)

func TestQuotePrice(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	q, err := f.access.QuotePrice(ctx, f.course.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.TierStandard, q.Tier)
	assert.Equal(t, int64(1000), q.AmountCents)
	assert.Equal(t, "usd", q.Currency)

	q, err = f.access.QuotePrice(ctx, f.course.ID, models.TierPremium)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), q.AmountCents)

	_, err = f.access.QuotePrice(ctx, f.course.ID, "gold")
	assert.ErrorIs(t, err, ErrInvalidTier)
	assert.ErrorIs(t, err, ErrInvalidCourse, "an unoffered tier is an invalid course purchase")
	assert.NotErrorIs(t, ErrInvalidCourse, ErrInvalidTier)

	_, err = f.access.QuotePrice(ctx, 9999, "")
	assert.ErrorIs(t, err, ErrInvalidCourse)
}

func TestRecordPurchaseAttemptLocksPrice(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.db, "buyer@example.com", "password123", false)

	p, err := f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{
		Principal:         models.UserPrincipal(user.ID),
		CourseID:          f.course.ID,
		Tier:              models.TierPremium,
		ExternalPaymentID: "pi_1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PurchasePending, p.Status)
	assert.Equal(t, int64(2000), p.AmountCents)
	assert.True(t, p.IsPremium)
	assert.Equal(t, user.ID, p.UserID)

	owned, err := f.access.HasCompletedAccess(ctx, models.UserPrincipal(user.ID), f.course.ID)
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestRecordPurchaseAttemptValidation(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	_, err := f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{
		Principal:         models.GuestPrincipal("not-an-email"),
		CourseID:          f.course.ID,
		ExternalPaymentID: "pi_1",
	})
	assert.Error(t, err)

	_, err = f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{
		Principal: models.GuestPrincipal("guest@example.com"),
		CourseID:  f.course.ID,
	})
	assert.Error(t, err)

	_, err = f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{
		Principal:         models.GuestPrincipal("guest@example.com"),
		CourseID:          9999,
		ExternalPaymentID: "pi_1",
	})
	assert.ErrorIs(t, err, ErrInvalidCourse)
}

func TestRecordPurchaseAttemptReplacesOpenAttempt(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.db, "buyer@example.com", "password123", false)
	principal := models.UserPrincipal(user.ID)

	first, err := f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{Principal: principal, CourseID: f.course.ID, ExternalPaymentID: "pi_old"})
	require.NoError(t, err)

	second, err := f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{Principal: principal, CourseID: f.course.ID, ExternalPaymentID: "pi_new"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "one row per principal and course")
	assert.Equal(t, "pi_new", second.ExternalPaymentID)

	// The superseded payment no longer maps to a purchase.
	_, err = f.access.ConfirmPurchase(ctx, "pi_old")
	assert.ErrorIs(t, err, ErrUnknownPayment)

	p, err := f.access.ConfirmPurchase(ctx, "pi_new")
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCompleted, p.Status)
	f.access.Wait()
}

func TestRecordPurchaseAttemptAfterFailure(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	principal := models.GuestPrincipal("guest@example.com")

	_, err := f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{Principal: principal, CourseID: f.course.ID, ExternalPaymentID: "pi_1"})
	require.NoError(t, err)
	failed, err := f.access.FailPurchase(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseFailed, failed.Status)

	retry, err := f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{Principal: principal, CourseID: f.course.ID, ExternalPaymentID: "pi_2"})
	require.NoError(t, err)
	assert.Equal(t, models.PurchasePending, retry.Status)
}

func TestRecordPurchaseAttemptWhenOwned(t *testing.T) {
	f := newFixture(t, 100)
	user := testutil.SeedUser(t, f.db, "buyer@example.com", "password123", false)
	principal := models.UserPrincipal(user.ID)
	f.buy(t, principal, "pi_1")

	_, err := f.access.RecordPurchaseAttempt(context.Background(), PurchaseAttempt{Principal: principal, CourseID: f.course.ID, ExternalPaymentID: "pi_2"})
	assert.ErrorIs(t, err, ErrAlreadyPurchased)
}

func TestConfirmPurchaseIsIdempotent(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.db, "buyer@example.com", "password123", false)
	principal := models.UserPrincipal(user.ID)
	first := f.buy(t, principal, "pi_1")
	assert.Equal(t, models.PurchaseCompleted, first.Status)

	again, err := f.access.ConfirmPurchase(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, models.PurchaseCompleted, again.Status)

	owned, err := f.access.HasCompletedAccess(ctx, principal, f.course.ID)
	require.NoError(t, err)
	assert.True(t, owned)

	_, err = f.access.ConfirmPurchase(ctx, "pi_missing")
	assert.ErrorIs(t, err, ErrUnknownPayment)
}

func TestConcurrentConfirmationsCompleteOnce(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.db, "buyer@example.com", "password123", false)

	_, err := f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{
		Principal:         models.UserPrincipal(user.ID),
		CourseID:          f.course.ID,
		ExternalPaymentID: "pi_1",
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.access.ConfirmPurchase(ctx, "pi_1")
		}(i)
	}
	wg.Wait()
	f.access.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	// The user principal carries no email, so nothing is sent; the point is
	// that exactly one row exists and it is completed.
	all, err := repository.NewPurchaseRepository(f.db).ListForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.PurchaseCompleted, all[0].Status)
}

func TestFailPurchaseNeverDowngrades(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.db, "buyer@example.com", "password123", false)
	principal := models.UserPrincipal(user.ID)
	f.buy(t, principal, "pi_1")

	p, err := f.access.FailPurchase(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCompleted, p.Status)

	owned, err := f.access.HasCompletedAccess(ctx, principal, f.course.ID)
	require.NoError(t, err)
	assert.True(t, owned)

	_, err = f.access.FailPurchase(ctx, "pi_missing")
	assert.ErrorIs(t, err, ErrUnknownPayment)
}

func TestGrantFreeAccess(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.db, "buyer@example.com", "password123", false)
	principal := models.UserPrincipal(user.ID)

	p, err := f.access.GrantFreeAccess(ctx, principal, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCompleted, p.Status)
	assert.Zero(t, p.AmountCents)

	again, err := f.access.GrantFreeAccess(ctx, principal, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)

	_, err = f.access.GrantFreeAccess(ctx, principal, 9999)
	assert.ErrorIs(t, err, ErrInvalidCourse)
}

func TestGrantFreeAccessReplacesPendingAttempt(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	principal := models.GuestPrincipal("guest@example.com")

	pending, err := f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{Principal: principal, CourseID: f.course.ID, ExternalPaymentID: "pi_1"})
	require.NoError(t, err)

	granted, err := f.access.GrantFreeAccess(ctx, principal, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, granted.ID)
	assert.Equal(t, models.PurchaseCompleted, granted.Status)
	assert.Empty(t, granted.ExternalPaymentID)
}

func TestRevokeAccess(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	principal := models.GuestPrincipal("Guest@Example.com")

	_, err := f.access.GrantFreeAccess(ctx, principal, f.course.ID)
	require.NoError(t, err)

	owned, err := f.access.HasCompletedAccess(ctx, models.GuestPrincipal("guest@example.com"), f.course.ID)
	require.NoError(t, err)
	assert.True(t, owned, "guest emails are compared normalized")

	n, err := f.access.RevokeAccess(ctx, principal, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	owned, err = f.access.HasCompletedAccess(ctx, principal, f.course.ID)
	require.NoError(t, err)
	assert.False(t, owned)

	n, err = f.access.RevokeAccess(ctx, principal, f.course.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHasCompletedAccessInvalidInput(t *testing.T) {
	f := newFixture(t, 100)

	owned, err := f.access.HasCompletedAccess(context.Background(), models.Principal{}, f.course.ID)
	require.NoError(t, err)
	assert.False(t, owned)

	owned, err = f.access.HasCompletedAccess(context.Background(), models.UserPrincipal(1), 0)
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestGuestPurchaseCreatesAccount(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	p := f.buy(t, models.GuestPrincipal("New.Buyer@Example.com"), "pi_1")
	assert.Equal(t, models.PurchaseCompleted, p.Status)
	require.NotZero(t, p.UserID)
	assert.Equal(t, models.UserPrincipal(p.UserID).Key(), p.PrincipalKey)

	user, err := repository.NewUserRepository(f.db).GetUserByEmail(ctx, "new.buyer@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, user.ID, p.UserID)

	owned, err := f.access.HasCompletedAccess(ctx, models.UserPrincipal(user.ID), f.course.ID)
	require.NoError(t, err)
	assert.True(t, owned)

	assert.ElementsMatch(t, []string{"account_created", "purchase_confirmation"}, f.notifier.kinds())
	for _, sent := range f.notifier.sent {
		assert.Equal(t, "new.buyer@example.com", sent.to)
		if sent.kind == "account_created" {
			assert.Len(t, sent.password, 16)
		}
	}
}

func TestGuestPurchaseLinksExistingAccount(t *testing.T) {
	f := newFixture(t, 100)
	user := testutil.SeedUser(t, f.db, "member@example.com", "password123", false)

	p := f.buy(t, models.GuestPrincipal("member@example.com"), "pi_1")
	assert.Equal(t, user.ID, p.UserID)
	assert.Equal(t, []string{"purchase_confirmation"}, f.notifier.kinds(), "no account email for an existing user")
}

func TestGuestAttemptForCourseAccountOwns(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.db, "member@example.com", "password123", false)
	guest := models.GuestPrincipal("member@example.com")
	owned := f.buy(t, models.UserPrincipal(user.ID), "pi_user")

	has, err := f.access.HasCompletedAccess(ctx, models.GuestPrincipal("Member@Example.com"), f.course.ID)
	require.NoError(t, err)
	assert.True(t, has, "the account's purchase covers its email")

	_, err = f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{
		Principal:         guest,
		CourseID:          f.course.ID,
		ExternalPaymentID: "pi_guest",
	})
	assert.ErrorIs(t, err, ErrAlreadyPurchased)

	granted, err := f.access.GrantFreeAccess(ctx, guest, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, owned.ID, granted.ID)

	rec, err := f.access.PurchaseForPayment(ctx, "pi_guest")
	assert.ErrorIs(t, err, ErrUnknownPayment)
	assert.Nil(t, rec)
}

func TestGuestPaymentSettlingAfterAccountPurchase(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.db, "member@example.com", "password123", false)

	// The guest checkout started before the account bought the course.
	_, err := f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{
		Principal:         models.GuestPrincipal("member@example.com"),
		CourseID:          f.course.ID,
		ExternalPaymentID: "pi_guest",
	})
	require.NoError(t, err)
	owned := f.buy(t, models.UserPrincipal(user.ID), "pi_user")

	guest, err := f.access.ConfirmPurchase(ctx, "pi_guest")
	require.NoError(t, err)
	f.access.Wait()
	assert.Equal(t, models.PurchaseCompleted, guest.Status)
	assert.Equal(t, user.ID, guest.UserID)
	assert.NotEqual(t, owned.ID, guest.ID)
	assert.True(t, models.IsGuestKey(guest.PrincipalKey), "guest row keeps its key when the user already owns the course")

	n, err := f.access.RevokeAccess(ctx, models.UserPrincipal(user.ID), f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "revoking a user removes linked guest purchases too")

	has, err := f.access.HasCompletedAccess(ctx, models.GuestPrincipal("member@example.com"), f.course.ID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGuestPurchaseReplacesUsersOpenAttempt(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.db, "member@example.com", "password123", false)

	_, err := f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{
		Principal:         models.UserPrincipal(user.ID),
		CourseID:          f.course.ID,
		ExternalPaymentID: "pi_user",
	})
	require.NoError(t, err)

	guest := f.buy(t, models.GuestPrincipal("member@example.com"), "pi_guest")
	assert.Equal(t, models.UserPrincipal(user.ID).Key(), guest.PrincipalKey)

	list, err := f.access.ListPurchases(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "pi_guest", list[0].ExternalPaymentID)
}

func TestNotificationFailureDoesNotAffectPurchase(t *testing.T) {
	f := newFixture(t, 100)
	f.notifier.err = assert.AnError

	p := f.buy(t, models.GuestPrincipal("guest@example.com"), "pi_1")
	assert.Equal(t, models.PurchaseCompleted, p.Status)
}

func TestExpireStalePending(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	_, err := f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{
		Principal:         models.GuestPrincipal("slow@example.com"),
		CourseID:          f.course.ID,
		ExternalPaymentID: "pi_slow",
	})
	require.NoError(t, err)
	f.buy(t, models.GuestPrincipal("fast@example.com"), "pi_fast")

	n, err := f.access.ExpireStalePending(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh attempts are kept")

	later := time.Now().UTC().Add(2 * time.Hour)
	f.access.now = func() time.Time { return later }

	n, err = f.access.ExpireStalePending(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	slow, err := f.access.PurchaseForPayment(ctx, "pi_slow")
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseFailed, slow.Status)

	fast, err := f.access.PurchaseForPayment(ctx, "pi_fast")
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseCompleted, fast.Status)
}
