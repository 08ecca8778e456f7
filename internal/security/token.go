package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/config"
	"ghostworks/api/internal/models"
)

type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
	// TokenVerify proves control of the account email. It belongs to no
	// lineage.
	TokenVerify TokenType = "verify"
)

const VerificationTTL = 24 * time.Hour

// Claims is shared by access and refresh tokens. TenantID and Role are
// set only for workspace-scoped sessions; Family identifies the refresh
// lineage the token belongs to.
type Claims struct {
	UserID   string       `json:"uid"`
	TenantID string       `json:"tid,omitempty"`
	Role     *models.Role `json:"role,omitempty"`
	Type     TokenType    `json:"typ"`
	Family   string       `json:"fam"`
	jwt.RegisteredClaims
}

func (c Claims) Scoped() bool {
	return c.TenantID != "" && c.Role != nil
}

type TokenSigner struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	leeway        time.Duration
	now           func() time.Time
}

func NewTokenSigner(cfg config.SecurityConfig) *TokenSigner {
	return &TokenSigner{
		accessSecret:  []byte(cfg.JWTAccessSecret),
		refreshSecret: []byte(cfg.JWTRefreshSecret),
		accessTTL:     cfg.JWTAccessTTL,
		refreshTTL:    cfg.JWTRefreshTTL,
		leeway:        cfg.ClockSkew,
		now:           time.Now,
	}
}

func (s *TokenSigner) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenSigner) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenSigner) secret(typ TokenType) ([]byte, time.Duration, error) {
	switch typ {
	case TokenAccess:
		return s.accessSecret, s.accessTTL, nil
	case TokenRefresh:
		return s.refreshSecret, s.refreshTTL, nil
	case TokenVerify:
		return s.accessSecret, VerificationTTL, nil
	}
	return nil, 0, fmt.Errorf("unknown token type %q", typ)
}

// Sign fills issued-at, expiry and subject on claims and returns the
// compact token with its expiry.
func (s *TokenSigner) Sign(claims Claims) (string, time.Time, error) {
	secret, ttl, err := s.secret(claims.Type)
	if err != nil {
		return "", time.Time{}, err
	}

	now := s.now()
	expires := now.Add(ttl)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expires)
	claims.Subject = claims.UserID

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign jwt: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies signature, expiry (with leeway) and token type.
func (s *TokenSigner) Parse(tokenStr string, typ TokenType) (*Claims, error) {
	secret, _, err := s.secret(typ)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(s.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.ErrTokenExpired
		}
		return nil, &apperr.Error{Kind: apperr.KindTokenInvalid, Message: apperr.ErrTokenInvalid.Message, Err: err}
	}
	if !token.Valid || claims.Type != typ || claims.UserID == "" || claims.ID == "" {
		return nil, apperr.ErrTokenInvalid
	}
	if claims.Family == "" && typ != TokenVerify {
		return nil, apperr.ErrTokenInvalid
	}
	if claims.Role != nil && !claims.Role.Valid() {
		return nil, apperr.ErrTokenInvalid
	}
	return claims, nil
}
