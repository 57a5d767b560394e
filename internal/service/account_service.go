package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coursegate/internal/credentials"
	"coursegate/internal/logger"
	"coursegate/internal/models"
	"coursegate/internal/repository"
	"coursegate/internal/security"
	"coursegate/internal/validation"

	"golang.org/x/sync/singleflight"
)

var ErrEmailTaken = errors.New("email already taken")

// LoginResult carries the bearer token issued on login
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// AccountService handles authentication and account provisioning
type AccountService struct {
	users  *repository.UserRepository
	tokens *security.TokenIssuer
	log    *logger.Logger

	provisioning singleflight.Group
}

// NewAccountService creates a new account service
func NewAccountService(users *repository.UserRepository, tokens *security.TokenIssuer, log *logger.Logger) *AccountService {
	return &AccountService{
		users:  users,
		tokens: tokens,
		log:    log.With("service", "AccountService"),
	}
}

// Login checks credentials and issues a bearer token
func (s *AccountService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !security.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.IsAdmin)
	if err != nil {
		return nil, err
	}

	s.log.Info("user logged in", "user_id", user.ID)
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Authenticate resolves a bearer token to its user
func (s *AccountService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrUnauthenticated
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// ResolveOrCreate returns the account for email, creating one with a
// generated password when none exists. Safe to call concurrently for the
// same email; only one caller sees Created.
func (s *AccountService) ResolveOrCreate(ctx context.Context, email string) (*ProvisionedAccount, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}

	leader := false
	v, err, _ := s.provisioning.Do(models.NormalizeEmail(email), func() (any, error) {
		leader = true
		return s.resolveOrCreate(ctx, email)
	})
	if err != nil {
		return nil, err
	}
	account := v.(*ProvisionedAccount)
	if !leader && account.Created {
		// Callers that joined an in-flight creation get the account without
		// the one-time password.
		return &ProvisionedAccount{User: account.User}, nil
	}
	return account, nil
}

func (s *AccountService) resolveOrCreate(ctx context.Context, email string) (*ProvisionedAccount, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user != nil {
		return &ProvisionedAccount{User: user}, nil
	}

	password, err := credentials.GeneratePassword()
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err = s.users.CreateUser(ctx, email, hash, credentials.DisplayNameFromEmail(email), false)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		// Another process created the account first.
		existing, getErr := s.users.GetUserByEmail(ctx, email)
		if getErr != nil {
			return nil, fmt.Errorf("failed to get user: %w", getErr)
		}
		if existing != nil {
			return &ProvisionedAccount{User: existing}, nil
		}
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("account created for guest buyer", "user_id", user.ID)
	return &ProvisionedAccount{User: user, Created: true, Password: password}, nil
}

// CreateAccount registers a user with a chosen password
func (s *AccountService) CreateAccount(ctx context.Context, email, password, name string, isAdmin bool) (*models.User, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if name == "" {
		name = credentials.DisplayNameFromEmail(email)
	}
	user, err := s.users.CreateUser(ctx, email, hash, name, isAdmin)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return nil, ErrEmailTaken
	}
	return user, err
}
