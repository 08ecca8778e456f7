package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ghostworks/api/internal/apperr"
)

func TestCreateUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.credentials.CreateUser(ctx, CreateUserInput{
		Email:     "  Alice@Example.COM ",
		Password:  testPassword,
		FirstName: "Alice",
	})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", user.Email)
	require.True(t, user.IsActive)
	require.NotContains(t, string(user.PasswordHash), testPassword)
	require.Equal(t, "Alice", user.DisplayName())

	_, err = env.credentials.CreateUser(ctx, CreateUserInput{Email: "ALICE@example.com", Password: testPassword})
	require.ErrorIs(t, err, apperr.ErrDuplicateEmail)

	_, err = env.credentials.CreateUser(ctx, CreateUserInput{Email: "bob@example.com", Password: "password"})
	require.ErrorIs(t, err, apperr.ErrWeakPassword)

	_, err = env.credentials.CreateUser(ctx, CreateUserInput{Email: "nobody", Password: testPassword})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestVerifyCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "carol@example.com")

	got, err := env.credentials.VerifyCredentials(ctx, "Carol@Example.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	_, wrongPassword := env.credentials.VerifyCredentials(ctx, "carol@example.com", "Wrong-Passw0rd!")
	_, unknownEmail := env.credentials.VerifyCredentials(ctx, "dave@example.com", testPassword)
	require.ErrorIs(t, wrongPassword, apperr.ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, apperr.ErrInvalidCredentials)
	require.Equal(t, wrongPassword.Error(), unknownEmail.Error())

	require.NoError(t, env.credentials.DeactivateUser(ctx, user.ID))
	_, err = env.credentials.VerifyCredentials(ctx, "carol@example.com", testPassword)
	require.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "erin@example.com")

	err := env.credentials.ChangePassword(ctx, user.ID, "Not-The-0ne!", "N3w-Password!")
	require.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	err = env.credentials.ChangePassword(ctx, user.ID, testPassword, "weak")
	require.ErrorIs(t, err, apperr.ErrWeakPassword)

	require.NoError(t, env.credentials.ChangePassword(ctx, user.ID, testPassword, "N3w-Password!"))
	_, err = env.credentials.VerifyCredentials(ctx, user.Email, "N3w-Password!")
	require.NoError(t, err)

	require.NoError(t, env.credentials.MarkVerified(ctx, user.ID))
	got, err := env.credentials.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, got.IsVerified)
}
