package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coursegate/internal/database"
	"coursegate/internal/logger"
	"coursegate/internal/models"
	"coursegate/internal/payment"
	"coursegate/internal/repository"
	"coursegate/internal/security"
	"coursegate/internal/testutil"
)

type sentEmail struct {
	kind     string
	to       string
	password string
	courseID int64
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (n *recordingNotifier) SendAccountCreated(_ context.Context, toEmail, _, password string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEmail{kind: "account_created", to: toEmail, password: password})
	return n.err
}

func (n *recordingNotifier) SendPurchaseConfirmation(_ context.Context, toEmail, _ string, course *models.Course) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEmail{kind: "purchase_confirmation", to: toEmail, courseID: course.ID})
	return n.err
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var kinds []string
	for _, s := range n.sent {
		kinds = append(kinds, s.kind)
	}
	return kinds
}

// fakeProcessor hands out sequential intent ids and reports whatever status
// the test stores for an intent.
type fakeProcessor struct {
	mu       sync.Mutex
	next     int
	statuses map[string]payment.Status
	created  []payment.IntentParams
	err      error
	delay    time.Duration
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{statuses: make(map[string]payment.Status)}
}

func (p *fakeProcessor) CreateIntent(ctx context.Context, params payment.IntentParams) (*payment.Intent, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.next++
	id := fmt.Sprintf("pi_%d", p.next)
	p.statuses[id] = payment.StatusPending
	p.created = append(p.created, params)
	return &payment.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       payment.StatusPending,
		AmountCents:  params.AmountCents,
		Currency:     params.Currency,
	}, nil
}

func (p *fakeProcessor) RetrieveIntent(ctx context.Context, id string) (*payment.Intent, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	status, ok := p.statuses[id]
	if !ok {
		return nil, &payment.Error{StatusCode: 404, Code: "resource_missing", Message: "no such payment_intent"}
	}
	return &payment.Intent{ID: id, Status: status}, nil
}

func (p *fakeProcessor) settle(id string, status payment.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[id] = status
}

func (p *fakeProcessor) wait(ctx context.Context) error {
	if p.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(p.delay):
		return nil
	case <-ctx.Done():
		return &payment.Error{Message: "request timed out", Retryable: true, Err: ctx.Err()}
	}
}

type fixture struct {
	db       *database.DB
	access   *AccessService
	progress *ProgressService
	accounts *AccountService
	checkout *CheckoutService
	notifier *recordingNotifier
	payments *fakeProcessor
	course   *models.Course
}

// newFixture wires the services over a fresh database holding one course with
// lessons of the given durations, priced at 1000 cents.
func newFixture(t *testing.T, durations ...int) *fixture {
	t.Helper()

	db := testutil.OpenDB(t)
	log := logger.NewNop()

	tokens, err := security.NewTokenIssuer("test-secret-test-secret-test-secret", time.Hour)
	require.NoError(t, err)

	courses := repository.NewCourseRepository(db)
	accounts := NewAccountService(repository.NewUserRepository(db), tokens, log)
	notifier := &recordingNotifier{}
	access := NewAccessService(db, repository.NewPurchaseRepository(db), courses, accounts, notifier, log)
	progress := NewProgressService(repository.NewProgressRepository(db), courses, access, log)
	processor := newFakeProcessor()

	return &fixture{
		db:       db,
		access:   access,
		progress: progress,
		accounts: accounts,
		checkout: NewCheckoutService(access, processor, nil, time.Second, log),
		notifier: notifier,
		payments: processor,
		course:   testutil.SeedCourse(t, db, 1000, durations...),
	}
}

func (f *fixture) lesson(i int) models.Lesson {
	return f.course.Lessons()[i]
}

// buy records and confirms a purchase of the fixture course
func (f *fixture) buy(t *testing.T, principal models.Principal, paymentID string) *models.Purchase {
	t.Helper()

	ctx := context.Background()
	_, err := f.access.RecordPurchaseAttempt(ctx, PurchaseAttempt{
		Principal:         principal,
		CourseID:          f.course.ID,
		ExternalPaymentID: paymentID,
	})
	require.NoError(t, err)

	p, err := f.access.ConfirmPurchase(ctx, paymentID)
	require.NoError(t, err)
	f.access.Wait()
	return p
}
