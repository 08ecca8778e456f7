package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ghostworks/api/internal/middleware"
	"ghostworks/api/internal/models"
)

type memberResponse struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Email     string      `json:"email,omitempty"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func newMemberResponse(m models.Membership) memberResponse {
	return memberResponse{
		ID:        m.ID,
		UserID:    m.UserID,
		Email:     m.Email,
		Role:      m.Role,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// acting is the caller's membership as resolved by the tenant gate. The
// membership service re-reads it under lock before deciding.
func acting(scope middleware.Scope) models.Membership {
	return models.Membership{TenantID: scope.TenantID, UserID: scope.UserID, Role: scope.Role, IsActive: true}
}

func (h HandlerSet) ListMembers(c *gin.Context) {
	scope, _ := middleware.ScopeFrom(c)
	members, err := h.memberships.ListMembers(c.Request.Context(), scope.TenantID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	resp := make([]memberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, newMemberResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"members": resp})
}

type inviteRequest struct {
	Email string      `json:"email" binding:"required,email"`
	Role  models.Role `json:"role"`
}

func (h HandlerSet) InviteMember(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	scope, _ := middleware.ScopeFrom(c)
	m, err := h.memberships.Invite(c.Request.Context(), scope.TenantID, req.Email, req.Role, acting(scope))
	if err != nil {
		middleware.AbortWithDenial(c, h.recorder, scope, err)
		return
	}
	c.JSON(http.StatusCreated, newMemberResponse(m))
}

type changeRoleRequest struct {
	Role *models.Role `json:"role" binding:"required"`
}

func (h HandlerSet) ChangeMemberRole(c *gin.Context) {
	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	scope, _ := middleware.ScopeFrom(c)
	m, err := h.memberships.ChangeRole(c.Request.Context(), scope.TenantID, c.Param("user_id"), *req.Role, acting(scope))
	if err != nil {
		middleware.AbortWithDenial(c, h.recorder, scope, err)
		return
	}
	c.JSON(http.StatusOK, newMemberResponse(m))
}

func (h HandlerSet) RemoveMember(c *gin.Context) {
	scope, _ := middleware.ScopeFrom(c)
	if err := h.memberships.RemoveMember(c.Request.Context(), scope.TenantID, c.Param("user_id"), acting(scope)); err != nil {
		middleware.AbortWithDenial(c, h.recorder, scope, err)
		return
	}
	c.Status(http.StatusNoContent)
}
