package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/ids"
	"ghostworks/api/internal/models"
)

type TenantService struct {
	tenants TenantStore
	log     zerolog.Logger
}

func NewTenantService(tenants TenantStore, log zerolog.Logger) *TenantService {
	return &TenantService{tenants: tenants, log: log}
}

type CreateTenantInput struct {
	Name        string
	Slug        string
	Description string
	Plan        models.Plan
}

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a slug from a display name.
func Slugify(name string) string {
	slug := slugInvalidChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 100 {
		slug = strings.TrimRight(slug[:100], "-")
	}
	return slug
}

// CreateTenant creates the workspace and makes creatorUserID its Owner in
// the same transaction.
func (s *TenantService) CreateTenant(ctx context.Context, input CreateTenantInput, creatorUserID string) (models.Tenant, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > 255 {
		return models.Tenant{}, apperr.InvalidInput("workspace name must be 1-255 characters")
	}

	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if !models.ValidSlug(slug) {
		return models.Tenant{}, apperr.InvalidInput("slug must be 1-100 characters of a-z, 0-9 and -")
	}

	plan := input.Plan
	if plan == "" {
		plan = models.PlanFree
	}
	if !plan.Valid() {
		return models.Tenant{}, apperr.InvalidInput("unknown plan")
	}

	tenant, err := s.tenants.CreateWithOwner(ctx,
		models.Tenant{
			ID:          ids.NewUUID().String(),
			Slug:        slug,
			Name:        name,
			Description: optional(input.Description),
			Settings:    map[string]any{},
			Plan:        plan,
			IsActive:    true,
		},
		models.Membership{
			ID:     ids.NewUUID().String(),
			UserID: creatorUserID,
			Role:   models.RoleOwner,
		},
	)
	if err != nil {
		return models.Tenant{}, err
	}

	s.log.Info().
		Str("tenant_id", tenant.ID).
		Str("slug", tenant.Slug).
		Str("owner_id", creatorUserID).
		Msg("workspace created")
	return tenant, nil
}

func (s *TenantService) GetTenant(ctx context.Context, id string) (models.Tenant, error) {
	return s.tenants.GetByID(ctx, id)
}

func (s *TenantService) UpdateSettings(ctx context.Context, tenantID string, upd models.TenantUpdate) (models.Tenant, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" || len(name) > 255 {
			return models.Tenant{}, apperr.InvalidInput("workspace name must be 1-255 characters")
		}
		upd.Name = &name
	}
	if upd.Plan != nil && !upd.Plan.Valid() {
		return models.Tenant{}, apperr.InvalidInput("unknown plan")
	}
	return s.tenants.Update(ctx, tenantID, upd)
}

func (s *TenantService) ListForUser(ctx context.Context, userID string) ([]models.TenantSummary, error) {
	return s.tenants.ListForUser(ctx, userID)
}

func (s *TenantService) DeleteTenant(ctx context.Context, tenantID string) error {
	if err := s.tenants.Delete(ctx, tenantID); err != nil {
		return err
	}
	s.log.Warn().Str("tenant_id", tenantID).Msg("workspace deleted")
	return nil
}
