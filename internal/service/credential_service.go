package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/ids"
	"ghostworks/api/internal/models"
	"ghostworks/api/internal/security"
)

type CredentialService struct {
	users  UserStore
	hasher *security.PasswordHasher
	policy security.PasswordPolicy
	log    zerolog.Logger
}

func NewCredentialService(users UserStore, hasher *security.PasswordHasher, policy security.PasswordPolicy, log zerolog.Logger) *CredentialService {
	return &CredentialService{
		users:  users,
		hasher: hasher,
		policy: policy,
		log:    log,
	}
}

type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *CredentialService) CreateUser(ctx context.Context, input CreateUserInput) (models.User, error) {
	email := normalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return models.User{}, apperr.InvalidInput("a valid email is required")
	}
	if err := s.policy.Check(input.Password); err != nil {
		return models.User{}, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.users.Create(ctx, models.User{
		ID:           ids.NewUUID().String(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    optional(input.FirstName),
		LastName:     optional(input.LastName),
		IsActive:     true,
	})
	if err != nil {
		return models.User{}, err
	}

	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

// VerifyCredentials performs exactly one hash comparison whether or not the
// account exists, and answers every failure with the same error.
func (s *CredentialService) VerifyCredentials(ctx context.Context, email, password string) (models.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			s.hasher.VerifyDummy(password)
			return models.User{}, apperr.ErrInvalidCredentials
		}
		return models.User{}, err
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
		return models.User{}, apperr.ErrInvalidCredentials
	}
	if !ok || !user.IsActive {
		return models.User{}, apperr.ErrInvalidCredentials
	}
	return user, nil
}

func (s *CredentialService) GetUser(ctx context.Context, id string) (models.User, error) {
	return s.users.GetByID(ctx, id)
}

// VerifyPassword re-checks the password of a signed-in user before a
// sensitive change.
func (s *CredentialService) VerifyPassword(ctx context.Context, userID, password string) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		return models.User{}, apperr.ErrInvalidCredentials
	}
	return user, nil
}

func (s *CredentialService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if _, err := s.VerifyPassword(ctx, userID, current); err != nil {
		return err
	}
	if err := s.policy.Check(next); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	s.log.Info().Str("user_id", userID).Msg("password changed")
	return nil
}

func (s *CredentialService) MarkVerified(ctx context.Context, userID string) error {
	if err := s.users.MarkVerified(ctx, userID); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Msg("email verified")
	return nil
}

// DeactivateUser disables login. The row and its memberships are kept.
func (s *CredentialService) DeactivateUser(ctx context.Context, userID string) error {
	if err := s.users.Deactivate(ctx, userID); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Msg("user deactivated")
	return nil
}
