package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ghostworks/api/internal/middleware"
	"ghostworks/api/internal/models"
	"ghostworks/api/internal/service"
)

type workspaceResponse struct {
	ID          string         `json:"id"`
	Slug        string         `json:"slug"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Settings    map[string]any `json:"settings"`
	Plan        models.Plan    `json:"plan"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Role        *models.Role   `json:"role,omitempty"`
	MemberCount *int           `json:"memberCount,omitempty"`
}

func newWorkspaceResponse(t models.Tenant) workspaceResponse {
	settings := t.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	return workspaceResponse{
		ID:          t.ID,
		Slug:        t.Slug,
		Name:        t.Name,
		Description: t.Description,
		Settings:    settings,
		Plan:        t.Plan,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

type createWorkspaceRequest struct {
	Name        string      `json:"name" binding:"required"`
	Slug        string      `json:"slug"`
	Description string      `json:"description"`
	Plan        models.Plan `json:"plan"`
}

func (h HandlerSet) CreateWorkspace(c *gin.Context) {
	var req createWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	claims, _ := middleware.ClaimsFrom(c)
	tenant, err := h.tenants.CreateTenant(c.Request.Context(), service.CreateTenantInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Plan:        req.Plan,
	}, claims.UserID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	resp := newWorkspaceResponse(tenant)
	role := models.RoleOwner
	resp.Role = &role
	c.JSON(http.StatusCreated, resp)
}

func (h HandlerSet) ListWorkspaces(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	summaries, err := h.tenants.ListForUser(c.Request.Context(), claims.UserID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	resp := make([]workspaceResponse, 0, len(summaries))
	for _, s := range summaries {
		item := newWorkspaceResponse(s.Tenant)
		role, count := s.Role, s.MemberCount
		item.Role = &role
		item.MemberCount = &count
		resp = append(resp, item)
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": resp})
}

// GetWorkspace serves both the current workspace and an explicit one; the
// tenant gate has already resolved which.
func (h HandlerSet) GetWorkspace(c *gin.Context) {
	scope, _ := middleware.ScopeFrom(c)
	tenant, err := h.tenants.GetTenant(c.Request.Context(), scope.TenantID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	resp := newWorkspaceResponse(tenant)
	resp.Role = &scope.Role
	c.JSON(http.StatusOK, resp)
}

type updateWorkspaceRequest struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Settings    map[string]any `json:"settings"`
	Plan        *models.Plan   `json:"plan"`
}

func (h HandlerSet) UpdateWorkspace(c *gin.Context) {
	var req updateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	scope, _ := middleware.ScopeFrom(c)
	tenant, err := h.tenants.UpdateSettings(c.Request.Context(), scope.TenantID, models.TenantUpdate{
		Name:        req.Name,
		Description: req.Description,
		Settings:    req.Settings,
		Plan:        req.Plan,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	resp := newWorkspaceResponse(tenant)
	resp.Role = &scope.Role
	c.JSON(http.StatusOK, resp)
}

func (h HandlerSet) DeleteWorkspace(c *gin.Context) {
	scope, _ := middleware.ScopeFrom(c)
	if err := h.tenants.DeleteTenant(c.Request.Context(), scope.TenantID); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SwitchWorkspace replaces the caller's session with one scoped to the
// path workspace. Membership is checked when the new session is issued.
func (h HandlerSet) SwitchWorkspace(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	result, err := h.auth.SwitchWorkspace(c.Request.Context(), *claims, c.Param("workspace_id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	h.sendAuthResponse(c, http.StatusOK, result)
}
