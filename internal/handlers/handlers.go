package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ghostworks/api/internal/audit"
	"ghostworks/api/internal/config"
	"ghostworks/api/internal/ledger"
	"ghostworks/api/internal/metrics"
	"ghostworks/api/internal/middleware"
	"ghostworks/api/internal/models"
	"ghostworks/api/internal/ratelimit"
	"ghostworks/api/internal/repository"
	"ghostworks/api/internal/security"
	"ghostworks/api/internal/service"
)

const (
	bucketAuth = "auth"
	bucketAPI  = "api"
)

// Stores are the persistence backends behind the services.
type Stores struct {
	Users       service.UserStore
	Tenants     service.TenantStore
	Memberships service.MembershipStore
}

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	db          *pgxpool.Pool
	cache       *redis.Client
	credentials *service.CredentialService
	tenants     *service.TenantService
	memberships *service.MembershipService
	sessions    *service.SessionService
	auth        *service.AuthService
	artifacts   *repository.ArtifactRepository
	limiter     *ratelimit.Limiter
	recorder    *audit.Recorder
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, cfg *config.AppConfig) (HandlerSet, error) {
	timeout := cfg.Postgres.QueryTimeout
	return newHandlerSet(log, db, cache, cfg, Stores{
		Users:       repository.NewUserRepository(db, timeout),
		Tenants:     repository.NewTenantRepository(db, timeout),
		Memberships: repository.NewMembershipRepository(db, timeout),
	})
}

func newHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, cfg *config.AppConfig, stores Stores) (HandlerSet, error) {
	hasher, err := security.NewPasswordHasher(security.ParamsFromConfig(cfg.Security))
	if err != nil {
		return HandlerSet{}, err
	}

	credentials := service.NewCredentialService(stores.Users, hasher, security.NewPasswordPolicy(cfg.Security.PasswordMinLength), log)
	sessions := service.NewSessionService(
		security.NewTokenSigner(cfg.Security),
		ledger.New(cache, cfg.Security.JWTRefreshTTL, cfg.Redis.OpTimeout),
		stores.Users,
		stores.Memberships,
		log,
	)

	memberships := service.NewMembershipService(stores.Memberships, stores.Tenants, stores.Users, log)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cache, cfg.Redis.OpTimeout)
	}

	return HandlerSet{
		log:         log,
		cfg:         cfg,
		db:          db,
		cache:       cache,
		credentials: credentials,
		tenants:     service.NewTenantService(stores.Tenants, log),
		memberships: memberships,
		sessions:    sessions,
		auth:        service.NewAuthService(credentials, sessions, memberships, log),
		artifacts:   repository.NewArtifactRepository(),
		limiter:     limiter,
		recorder:    audit.NewRecorder(log, cache, cfg.Worker.Stream, cfg.Redis.OpTimeout),
	}, nil
}

func (h HandlerSet) rateLimit(bucket string, limit int) gin.HandlerFunc {
	if h.limiter == nil {
		return middleware.RateLimit(nil, bucket, limit, h.log)
	}
	return middleware.RateLimit(h.limiter, bucket, limit, h.log)
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")

	authn := middleware.Authenticate(h.sessions, h.cfg.Security.CheckRevocation)
	apiLimit := h.rateLimit(bucketAPI, h.cfg.RateLimit.RequestsPerMinute)
	gate := middleware.Tenant(h.memberships, h.recorder)
	member := middleware.RequireRole(models.RoleMember, h.recorder)
	admin := middleware.RequireRole(models.RoleAdmin, h.recorder)
	owner := middleware.RequireRole(models.RoleOwner, h.recorder)
	tx := middleware.TenantTx(h.db, h.cfg.Postgres.TenantRole, h.cfg.Postgres.QueryTimeout, h.log)

	{
		auth := v1.Group("/auth")
		public := auth.Group("", h.rateLimit(bucketAuth, h.cfg.RateLimit.AuthRequestsPerMinute))
		public.POST("/register", h.SignUp)
		public.POST("/login", h.Login)
		public.POST("/refresh", h.Refresh)

		protected := auth.Group("", authn, apiLimit)
		protected.POST("/logout", h.Logout)
		protected.GET("/me", h.Me)
		protected.POST("/password", h.ChangePassword)
		protected.POST("/verify-email/request", h.RequestEmailVerification)
		protected.POST("/verify-email", h.VerifyEmail)
		protected.POST("/deactivate", h.DeactivateAccount)
	}

	authed := v1.Group("", authn, apiLimit)
	authed.POST("/workspaces", h.CreateWorkspace)
	authed.GET("/workspaces", h.ListWorkspaces)
	authed.POST("/workspaces/:workspace_id/switch", h.SwitchWorkspace)

	current := authed.Group("/workspace", gate)
	current.GET("", member, h.GetWorkspace)
	current.GET("/artifacts", member, tx, h.ListArtifacts)
	current.POST("/artifacts", member, tx, h.CreateArtifact)
	current.GET("/artifacts/:artifact_id", member, tx, h.GetArtifact)
	current.DELETE("/artifacts/:artifact_id", admin, tx, h.DeleteArtifact)

	ws := authed.Group("/workspaces/:workspace_id", gate)
	ws.GET("", member, h.GetWorkspace)
	ws.PUT("", admin, h.UpdateWorkspace)
	ws.DELETE("", owner, h.DeleteWorkspace)
	ws.GET("/members", member, h.ListMembers)
	ws.POST("/members", admin, h.InviteMember)
	ws.PUT("/members/:user_id/role", member, h.ChangeMemberRole)
	ws.DELETE("/members/:user_id", member, h.RemoveMember)
	ws.GET("/artifacts", member, tx, h.ListArtifacts)
	ws.POST("/artifacts", member, tx, h.CreateArtifact)
	ws.GET("/artifacts/:artifact_id", member, tx, h.GetArtifact)
	ws.DELETE("/artifacts/:artifact_id", admin, tx, h.DeleteArtifact)
}

// RegisterMetrics exposes the Prometheus registry on the root router.
func RegisterMetrics(engine *gin.Engine) {
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))
}
