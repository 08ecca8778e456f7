package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host              string
	Port              int
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	// TrustRequestID keeps an inbound X-Request-Id, for deployments behind
	// a proxy that assigns one.
	TrustRequestID  bool
	SecurityHeaders bool
	HSTSMaxAge      time.Duration
	CSP             string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	// TenantRole is assumed with SET LOCAL ROLE inside tenant-scoped
	// transactions so row-level security applies even to the table owner.
	TenantRole        string
	MigrateOnStart    bool
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
	ApplicationName   string
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	OpTimeout      time.Duration
	DialTimeout    time.Duration
	PoolSize       int
	MinIdleConns   int
	ConnectTimeout time.Duration
}

type SecurityConfig struct {
	JWTAccessSecret   string
	JWTRefreshSecret  string
	JWTAccessTTL      time.Duration
	JWTRefreshTTL     time.Duration
	ClockSkew         time.Duration
	CheckRevocation   bool
	PasswordMinLength int
	Argon2Time        uint32
	Argon2Memory      uint32
	Argon2Threads     uint8
}

type CookieConfig struct {
	Domain      string
	Secure      *bool
	RefreshPath string
}

type RateLimitConfig struct {
	Enabled               bool
	RequestsPerMinute     int
	AuthRequestsPerMinute int
}

type WorkerConfig struct {
	Stream         string
	Group          string
	Consumer       string
	ClaimInterval  time.Duration
	AuditRetention time.Duration
}

type AppConfig struct {
	Environment      string
	LogLevel         string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Security         SecurityConfig
	Cookies          CookieConfig
	RateLimit        RateLimitConfig
	Worker           WorkerConfig
	AllowCORSOrigins []string
}

func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "test"
}

// SecureCookies reports whether auth cookies carry the Secure attribute.
// An explicit cookies.secure setting wins over the environment default.
func (c *AppConfig) SecureCookies() bool {
	if c.Cookies.Secure != nil {
		return *c.Cookies.Secure
	}
	return !c.IsDevelopment()
}

func (c *AppConfig) Validate() error {
	var errs []error
	if c.Security.JWTAccessTTL <= 0 {
		errs = append(errs, errors.New("security.jwtaccessttl must be positive"))
	}
	if c.Security.JWTRefreshTTL <= c.Security.JWTAccessTTL {
		errs = append(errs, errors.New("security.jwtrefreshttl must exceed security.jwtaccessttl"))
	}
	if c.Security.PasswordMinLength < 8 {
		errs = append(errs, errors.New("security.passwordminlength must be at least 8"))
	}
	if c.Postgres.ConnectTimeout <= 0 || c.Redis.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("postgres.connecttimeout and redis.connecttimeout must be positive"))
	}
	if c.Security.JWTAccessSecret != "" && c.Security.JWTAccessSecret == c.Security.JWTRefreshSecret {
		errs = append(errs, errors.New("access and refresh secrets must differ"))
	}

	if !c.IsDevelopment() {
		if len(c.Security.JWTAccessSecret) < 32 {
			errs = append(errs, errors.New("security.jwtaccesssecret must be at least 32 bytes"))
		}
		if len(c.Security.JWTRefreshSecret) < 32 {
			errs = append(errs, errors.New("security.jwtrefreshsecret must be at least 32 bytes"))
		}
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required"))
		}
	}
	return errors.Join(errs...)
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("GHOSTWORKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.IsDevelopment() {
		if err := fillEphemeralSecrets(&cfg.Security); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// fillEphemeralSecrets generates per-process signing secrets when none are
// configured. Tokens do not survive a restart in that mode.
func fillEphemeralSecrets(sec *SecurityConfig) error {
	for _, secret := range []*string{&sec.JWTAccessSecret, &sec.JWTRefreshSecret} {
		if *secret != "" {
			continue
		}
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("generate secret: %w", err)
		}
		*secret = hex.EncodeToString(buf)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.readheadertimeout", "5s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.maxheaderbytes", 1<<20)
	v.SetDefault("http.trustrequestid", false)
	v.SetDefault("http.securityheaders", true)
	v.SetDefault("http.hstsmaxage", "8760h") // 1 year
	v.SetDefault("http.csp", "default-src 'none'; frame-ancestors 'none'")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.querytimeout", "5s")
	v.SetDefault("postgres.tenantrole", "tenant_app")
	v.SetDefault("postgres.migrateonstart", true)
	v.SetDefault("postgres.healthcheckperiod", "30s")
	v.SetDefault("postgres.connecttimeout", "10s")
	v.SetDefault("postgres.applicationname", "ghostworks-api")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.optimeout", "2s")
	v.SetDefault("redis.dialtimeout", "5s")
	v.SetDefault("redis.poolsize", 20)
	v.SetDefault("redis.minidleconns", 2)
	v.SetDefault("redis.connecttimeout", "5s")

	v.SetDefault("security.jwtaccesssecret", "")
	v.SetDefault("security.jwtrefreshsecret", "")
	v.SetDefault("security.jwtaccessttl", "15m")
	v.SetDefault("security.jwtrefreshttl", "168h") // 7 days
	v.SetDefault("security.clockskew", "5s")
	v.SetDefault("security.checkrevocation", true)
	v.SetDefault("security.passwordminlength", 8)
	v.SetDefault("security.argon2time", 3)
	v.SetDefault("security.argon2memory", 64*1024)
	v.SetDefault("security.argon2threads", 2)

	v.SetDefault("cookies.domain", "")
	_ = v.BindEnv("cookies.secure")
	v.SetDefault("cookies.refreshpath", "/api/v1/auth/refresh")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requestsperminute", 60)
	v.SetDefault("ratelimit.authrequestsperminute", 5)

	v.SetDefault("worker.stream", "auth:events")
	v.SetDefault("worker.group", "auth-workers")
	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "30s")
	v.SetDefault("worker.auditretention", "2160h") // 90 days

	v.SetDefault("allowcorsorigins", []string{})
}
