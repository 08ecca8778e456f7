package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestDecodeDefaults(t *testing.T) {
	cfg, err := decode(newTestViper())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, 15*time.Minute, cfg.Security.JWTAccessTTL)
	require.Equal(t, 7*24*time.Hour, cfg.Security.JWTRefreshTTL)
	require.Equal(t, 5*time.Second, cfg.Security.ClockSkew)
	require.Equal(t, "tenant_app", cfg.Postgres.TenantRole)
	require.Equal(t, "/api/v1/auth/refresh", cfg.Cookies.RefreshPath)
	require.Equal(t, 5, cfg.RateLimit.AuthRequestsPerMinute)
	require.False(t, cfg.SecureCookies())
	require.Equal(t, 30*time.Second, cfg.Postgres.HealthCheckPeriod)
	require.Equal(t, 10*time.Second, cfg.Postgres.ConnectTimeout)
	require.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)
	require.Equal(t, 20, cfg.Redis.PoolSize)
	require.True(t, cfg.HTTP.SecurityHeaders)
	require.Equal(t, 365*24*time.Hour, cfg.HTTP.HSTSMaxAge)
	require.False(t, cfg.HTTP.TrustRequestID)

	// development fills throwaway signing secrets
	require.Len(t, cfg.Security.JWTAccessSecret, 64)
	require.NotEqual(t, cfg.Security.JWTAccessSecret, cfg.Security.JWTRefreshSecret)
}

func TestDecodeProductionRequiresSecrets(t *testing.T) {
	v := newTestViper()
	v.Set("environment", "production")

	_, err := decode(v)
	require.Error(t, err)
	require.Contains(t, err.Error(), "jwtaccesssecret")
	require.Contains(t, err.Error(), "postgres.dsn")
}

func TestDecodeProduction(t *testing.T) {
	v := newTestViper()
	v.Set("environment", "production")
	v.Set("postgres.dsn", "postgres://app@db/ghostworks")
	v.Set("security.jwtaccesssecret", "a-very-long-access-secret-value-0001")
	v.Set("security.jwtrefreshsecret", "a-very-long-refresh-secret-value-001")
	v.Set("security.jwtaccessttl", "5m")
	v.Set("allowcorsorigins", "https://app.example.com, https://admin.example.com")

	cfg, err := decode(v)
	require.NoError(t, err)
	require.True(t, cfg.SecureCookies())
	require.Equal(t, 5*time.Minute, cfg.Security.JWTAccessTTL)
	require.Len(t, cfg.AllowCORSOrigins, 2)
}

func TestValidateRejectsSharedSecret(t *testing.T) {
	v := newTestViper()
	v.Set("security.jwtaccesssecret", "same")
	v.Set("security.jwtrefreshsecret", "same")

	_, err := decode(v)
	require.ErrorContains(t, err, "must differ")
}

func TestSecureCookiesOverride(t *testing.T) {
	v := newTestViper()
	v.Set("cookies.secure", true)

	cfg, err := decode(v)
	require.NoError(t, err)
	require.True(t, cfg.SecureCookies())
}

func TestValidateRejectsZeroConnectTimeout(t *testing.T) {
	v := newTestViper()
	v.Set("postgres.connecttimeout", "0s")

	_, err := decode(v)
	require.ErrorContains(t, err, "connecttimeout")
}
