package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/models"
	"ghostworks/api/internal/security"
)

// AuthService composes credentials and sessions into the login flows
// exposed over HTTP.
type AuthService struct {
	credentials *CredentialService
	sessions    *SessionService
	memberships *MembershipService
	log         zerolog.Logger
}

func NewAuthService(credentials *CredentialService, sessions *SessionService, memberships *MembershipService, log zerolog.Logger) *AuthService {
	return &AuthService{
		credentials: credentials,
		sessions:    sessions,
		memberships: memberships,
		log:         log,
	}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type AuthResult struct {
	Pair
	User models.User
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	user, err := s.credentials.CreateUser(ctx, CreateUserInput{
		Email:     input.Email,
		Password:  input.Password,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	})
	if err != nil {
		return AuthResult{}, err
	}

	pair, err := s.sessions.IssueInitialSession(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Pair: pair, User: user}, nil
}

type LoginInput struct {
	Email    string
	Password string
	// WorkspaceID optionally scopes the new session right away.
	WorkspaceID string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	user, err := s.credentials.VerifyCredentials(ctx, input.Email, input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	var pair Pair
	if input.WorkspaceID != "" {
		pair, err = s.sessions.IssueScopedSession(ctx, user, input.WorkspaceID)
	} else {
		pair, err = s.sessions.IssueInitialSession(ctx, user)
	}
	if err != nil {
		return AuthResult{}, err
	}

	s.log.Info().Str("user_id", user.ID).Str("tenant_id", input.WorkspaceID).Msg("user logged in")
	return AuthResult{Pair: pair, User: user}, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	pair, err := s.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		return AuthResult{}, err
	}
	user, err := s.credentials.GetUser(ctx, pair.Claims.UserID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Pair: pair, User: user}, nil
}

// SwitchWorkspace issues a session scoped to tenantID and retires the
// caller's current lineage.
func (s *AuthService) SwitchWorkspace(ctx context.Context, claims security.Claims, tenantID string) (AuthResult, error) {
	user, err := s.credentials.GetUser(ctx, claims.UserID)
	if err != nil {
		return AuthResult{}, err
	}

	pair, err := s.sessions.IssueScopedSession(ctx, user, tenantID)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.sessions.Revoke(ctx, claims.Family); err != nil {
		s.log.Warn().Err(err).Str("family", claims.Family).Msg("revoke previous lineage failed")
	}

	s.log.Info().Str("user_id", user.ID).Str("tenant_id", tenantID).Msg("workspace switched")
	return AuthResult{Pair: pair, User: user}, nil
}

func (s *AuthService) Logout(ctx context.Context, claims security.Claims) error {
	return s.sessions.Revoke(ctx, claims.Family)
}

type Verification struct {
	Token           string
	ExpiresAt       time.Time
	AlreadyVerified bool
}

// RequestVerification issues an email verification token for the caller.
// Delivering it by mail is left to the caller.
func (s *AuthService) RequestVerification(ctx context.Context, claims security.Claims) (Verification, error) {
	user, err := s.credentials.GetUser(ctx, claims.UserID)
	if err != nil {
		return Verification{}, err
	}
	if user.IsVerified {
		return Verification{AlreadyVerified: true}, nil
	}

	token, expires, err := s.sessions.IssueVerification(user.ID)
	if err != nil {
		return Verification{}, err
	}
	s.log.Info().Str("user_id", user.ID).Time("expires_at", expires).Msg("verification token issued")
	return Verification{Token: token, ExpiresAt: expires}, nil
}

// VerifyEmail marks the caller verified. The token must have been issued
// to the same user.
func (s *AuthService) VerifyEmail(ctx context.Context, claims security.Claims, token string) (Verification, error) {
	vc, err := s.sessions.ParseVerification(token)
	if err != nil {
		return Verification{}, err
	}
	if vc.UserID != claims.UserID {
		return Verification{}, apperr.ErrTokenInvalid
	}

	user, err := s.credentials.GetUser(ctx, claims.UserID)
	if err != nil {
		return Verification{}, err
	}
	if user.IsVerified {
		return Verification{AlreadyVerified: true}, nil
	}
	if err := s.credentials.MarkVerified(ctx, user.ID); err != nil {
		return Verification{}, err
	}
	return Verification{}, nil
}

// Deactivate soft-deletes the caller's account after re-checking the
// password and ends the current lineage. A user who is the only Owner of a
// workspace must hand it over first.
func (s *AuthService) Deactivate(ctx context.Context, claims security.Claims, password string) error {
	if _, err := s.credentials.VerifyPassword(ctx, claims.UserID, password); err != nil {
		return err
	}

	sole, err := s.memberships.SoleOwnerTenants(ctx, claims.UserID)
	if err != nil {
		return err
	}
	if len(sole) > 0 {
		return apperr.ErrLastOwnerProtected
	}

	if err := s.credentials.DeactivateUser(ctx, claims.UserID); err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, claims.Family); err != nil {
		s.log.Warn().Err(err).Str("family", claims.Family).Msg("revoke lineage after deactivation failed")
	}
	return nil
}
