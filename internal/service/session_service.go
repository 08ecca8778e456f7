package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/ids"
	"ghostworks/api/internal/ledger"
	"ghostworks/api/internal/metrics"
	"ghostworks/api/internal/models"
	"ghostworks/api/internal/security"
)

// Pair is an access/refresh token pair from one lineage.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Claims           security.Claims
}

type SessionService struct {
	signer      *security.TokenSigner
	ledger      RotationLedger
	users       UserStore
	memberships MembershipStore
	log         zerolog.Logger
}

func NewSessionService(signer *security.TokenSigner, ledger RotationLedger, users UserStore, memberships MembershipStore, log zerolog.Logger) *SessionService {
	return &SessionService{
		signer:      signer,
		ledger:      ledger,
		users:       users,
		memberships: memberships,
		log:         log,
	}
}

// IssueInitialSession starts a new lineage with no workspace selected.
func (s *SessionService) IssueInitialSession(ctx context.Context, user models.User) (Pair, error) {
	return s.startLineage(ctx, user.ID, "", nil)
}

// IssueScopedSession starts a new lineage bound to tenantID with the
// caller's current role.
func (s *SessionService) IssueScopedSession(ctx context.Context, user models.User, tenantID string) (Pair, error) {
	m, err := s.memberships.Get(ctx, tenantID, user.ID)
	if err != nil {
		return Pair{}, err
	}
	role := m.Role
	return s.startLineage(ctx, user.ID, tenantID, &role)
}

func (s *SessionService) startLineage(ctx context.Context, userID, tenantID string, role *models.Role) (Pair, error) {
	family := ids.New()
	refreshID := ids.New()

	if err := s.ledger.Register(ctx, family, refreshID); err != nil {
		return Pair{}, apperr.Unavailable(err)
	}
	return s.sign(userID, tenantID, role, family, refreshID)
}

func (s *SessionService) sign(userID, tenantID string, role *models.Role, family, refreshID string) (Pair, error) {
	access := security.Claims{
		UserID:           userID,
		TenantID:         tenantID,
		Role:             role,
		Type:             security.TokenAccess,
		Family:           family,
		RegisteredClaims: jwt.RegisteredClaims{ID: ids.New()},
	}
	accessToken, accessExp, err := s.signer.Sign(access)
	if err != nil {
		return Pair{}, err
	}

	refresh := access
	refresh.Type = security.TokenRefresh
	refresh.RegisteredClaims = jwt.RegisteredClaims{ID: refreshID}
	refreshToken, refreshExp, err := s.signer.Sign(refresh)
	if err != nil {
		return Pair{}, err
	}

	access.ExpiresAt = jwt.NewNumericDate(accessExp)
	return Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		Claims:           access,
	}, nil
}

// Refresh rotates a refresh token. The workspace role is read again from
// the membership store, so role changes take effect at the next refresh;
// a membership that disappeared yields an unscoped pair. Store reads run
// before the rotation so a failed read leaves the presented token usable.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (Pair, error) {
	claims, err := s.signer.Parse(refreshToken, security.TokenRefresh)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues(refreshResult(err)).Inc()
		return Pair{}, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil && !errors.Is(err, apperr.ErrUserNotFound) {
		return Pair{}, err
	}
	if err != nil || !user.IsActive {
		metrics.TokenRefreshTotal.WithLabelValues("inactive").Inc()
		s.revokeQuietly(ctx, claims.Family)
		return Pair{}, apperr.ErrTokenInvalid
	}

	tenantID := ""
	var role *models.Role
	membershipGone := false
	if claims.TenantID != "" {
		m, err := s.memberships.Get(ctx, claims.TenantID, claims.UserID)
		switch {
		case err == nil:
			tenantID = claims.TenantID
			role = &m.Role
		case errors.Is(err, apperr.ErrNotAMember):
			membershipGone = true
		default:
			return Pair{}, err
		}
	}

	nextID := ids.New()
	result, err := s.ledger.Rotate(ctx, claims.Family, claims.ID, nextID)
	if err != nil {
		return Pair{}, apperr.Unavailable(err)
	}
	metrics.TokenRefreshTotal.WithLabelValues(result.String()).Inc()

	switch result {
	case ledger.Rotated:
	case ledger.Reused:
		s.log.Warn().
			Str("user_id", claims.UserID).
			Str("family", claims.Family).
			Str("jti", claims.ID).
			Msg("refresh token reuse detected, lineage revoked")
		return Pair{}, apperr.ErrTokenReused
	default:
		return Pair{}, apperr.ErrTokenInvalid
	}

	if membershipGone {
		s.log.Info().
			Str("user_id", claims.UserID).
			Str("tenant_id", claims.TenantID).
			Msg("membership gone, refreshing without workspace")
	}
	return s.sign(claims.UserID, tenantID, role, claims.Family, nextID)
}

func refreshResult(err error) string {
	if errors.Is(err, apperr.ErrTokenExpired) {
		return "expired"
	}
	return "invalid"
}

// Validate checks signature, type and expiry of an access token. It does
// not consult any store.
func (s *SessionService) Validate(accessToken string) (*security.Claims, error) {
	return s.signer.Parse(accessToken, security.TokenAccess)
}

// IssueVerification signs an email verification token for userID.
func (s *SessionService) IssueVerification(userID string) (string, time.Time, error) {
	return s.signer.Sign(security.Claims{
		UserID:           userID,
		Type:             security.TokenVerify,
		RegisteredClaims: jwt.RegisteredClaims{ID: ids.New()},
	})
}

func (s *SessionService) ParseVerification(token string) (*security.Claims, error) {
	return s.signer.Parse(token, security.TokenVerify)
}

func (s *SessionService) Revoke(ctx context.Context, family string) error {
	if err := s.ledger.Revoke(ctx, family); err != nil {
		return apperr.Unavailable(err)
	}
	return nil
}

func (s *SessionService) IsRevoked(ctx context.Context, family string) (bool, error) {
	revoked, err := s.ledger.IsRevoked(ctx, family)
	if err != nil {
		return false, apperr.Unavailable(err)
	}
	return revoked, nil
}

func (s *SessionService) revokeQuietly(ctx context.Context, family string) {
	if err := s.ledger.Revoke(ctx, family); err != nil {
		s.log.Error().Err(err).Str("family", family).Msg("revoke lineage failed")
	}
}

func (s *SessionService) AccessTTL() time.Duration  { return s.signer.AccessTTL() }
func (s *SessionService) RefreshTTL() time.Duration { return s.signer.RefreshTTL() }
