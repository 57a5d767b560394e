package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursegate/internal/security"
	"coursegate/internal/testutil"
	"coursegate/internal/validation"
)

func TestLoginAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.SeedUser(t, f.db, "member@example.com", "password123", true)

	res, err := f.accounts.Login(ctx, "Member@Example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.User.ID)
	assert.NotEmpty(t, res.Token)

	got, err := f.accounts.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.True(t, got.IsAdmin)

	_, err = f.accounts.Login(ctx, "member@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.accounts.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.accounts.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthenticateRejectsOtherIssuerSecret(t *testing.T) {
	f := newFixture(t)
	user := testutil.SeedUser(t, f.db, "member@example.com", "password123", false)

	other, err := security.NewTokenIssuer("some-other-secret", time.Hour)
	require.NoError(t, err)
	token, _, err := other.Issue(user.ID, true)
	require.NoError(t, err)

	_, err = f.accounts.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.accounts.ResolveOrCreate(ctx, "New@Example.com")
	require.NoError(t, err)
	assert.True(t, created.Created)
	assert.Equal(t, "new@example.com", created.User.Email)
	assert.Len(t, created.Password, 16)
	assert.True(t, security.CheckPassword(created.Password, created.User.PasswordHash))

	again, err := f.accounts.ResolveOrCreate(ctx, "new@example.com")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Empty(t, again.Password)
	assert.Equal(t, created.User.ID, again.User.ID)

	_, err = f.accounts.ResolveOrCreate(ctx, "nope")
	var verrs validation.Errors
	assert.True(t, errors.As(err, &verrs))
}

func TestResolveOrCreateConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 4)
	errs := make([]error, 4)
	created := make([]bool, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acct, err := f.accounts.ResolveOrCreate(ctx, "race@example.com")
			errs[i] = err
			if err == nil {
				ids[i] = acct.User.ID
				created[i] = acct.Created
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	n := 0
	for _, c := range created {
		if c {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestCreateAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.accounts.CreateAccount(ctx, "jane.doe@example.com", "password123", "", false)
	require.NoError(t, err)
	assert.NotEmpty(t, user.Name)

	_, err = f.accounts.CreateAccount(ctx, "JANE.DOE@example.com", "password123", "Jane", false)
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = f.accounts.CreateAccount(ctx, "short@example.com", "short", "", false)
	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs, "password")
}
