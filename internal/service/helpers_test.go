package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"ghostworks/api/internal/config"
	"ghostworks/api/internal/ledger"
	"ghostworks/api/internal/models"
	"ghostworks/api/internal/repository/memory"
	"ghostworks/api/internal/security"
)

const testPassword = "Sup3r-Secret!"

var (
	_ UserStore       = (*memory.Users)(nil)
	_ TenantStore     = (*memory.Tenants)(nil)
	_ MembershipStore = (*memory.Memberships)(nil)
)

type testEnv struct {
	db          *memory.DB
	redis       *miniredis.Miniredis
	credentials *CredentialService
	tenants     *TenantService
	memberships *MembershipService
	sessions    *SessionService
	auth        *AuthService
	signer      *security.TokenSigner
	rotations   *ledger.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := zerolog.New(io.Discard)
	db := memory.New()

	hasher, err := security.NewPasswordHasher(security.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	signer := security.NewTokenSigner(config.SecurityConfig{
		JWTAccessSecret:  "test-access-secret-test-access-secret",
		JWTRefreshSecret: "test-refresh-secret-test-refresh-secr",
		JWTAccessTTL:     15 * time.Minute,
		JWTRefreshTTL:    24 * time.Hour,
		ClockSkew:        5 * time.Second,
	})

	credentials := NewCredentialService(db.Users(), hasher, security.NewPasswordPolicy(8), log)
	memberships := NewMembershipService(db.Memberships(), db.Tenants(), db.Users(), log)
	rotations := ledger.New(client, 24*time.Hour, time.Second)
	sessions := NewSessionService(signer, rotations, db.Users(), db.Memberships(), log)

	return &testEnv{
		db:          db,
		redis:       mr,
		credentials: credentials,
		tenants:     NewTenantService(db.Tenants(), log),
		memberships: memberships,
		sessions:    sessions,
		auth:        NewAuthService(credentials, sessions, memberships, log),
		signer:      signer,
		rotations:   rotations,
	}
}

func (e *testEnv) createUser(t *testing.T, email string) models.User {
	t.Helper()
	user, err := e.credentials.CreateUser(context.Background(), CreateUserInput{Email: email, Password: testPassword})
	require.NoError(t, err)
	return user
}

func (e *testEnv) createTenant(t *testing.T, slug string, owner models.User) models.Tenant {
	t.Helper()
	tenant, err := e.tenants.CreateTenant(context.Background(), CreateTenantInput{Name: slug, Slug: slug}, owner.ID)
	require.NoError(t, err)
	return tenant
}

func (e *testEnv) membership(t *testing.T, tenantID, userID string) models.Membership {
	t.Helper()
	m, err := e.memberships.GetMembership(context.Background(), tenantID, userID)
	require.NoError(t, err)
	return m
}
