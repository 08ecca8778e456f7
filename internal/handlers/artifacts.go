package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/ids"
	"ghostworks/api/internal/middleware"
	"ghostworks/api/internal/models"
)

const (
	defaultArtifactPage = 50
	maxArtifactPage     = 200
)

type artifactResponse struct {
	ID        string    `json:"id"`
	CreatedBy string    `json:"createdBy"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func newArtifactResponse(a models.Artifact) artifactResponse {
	return artifactResponse{
		ID:        a.ID,
		CreatedBy: a.CreatedBy,
		Name:      a.Name,
		Content:   a.Content,
		CreatedAt: a.CreatedAt,
	}
}

func (h HandlerSet) ListArtifacts(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultArtifactPage)
	if err != nil || limit < 1 || limit > maxArtifactPage {
		middleware.AbortWithError(c, apperr.InvalidInput("limit must be between 1 and 200"))
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		middleware.AbortWithError(c, apperr.InvalidInput("offset must not be negative"))
		return
	}

	items, err := h.artifacts.List(c.Request.Context(), limit, offset)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	resp := make([]artifactResponse, 0, len(items))
	for _, a := range items {
		resp = append(resp, newArtifactResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": resp})
}

type createArtifactRequest struct {
	Name    string `json:"name" binding:"required,max=255"`
	Content string `json:"content"`
}

func (h HandlerSet) CreateArtifact(c *gin.Context) {
	var req createArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	scope, _ := middleware.ScopeFrom(c)
	created, err := h.artifacts.Create(c.Request.Context(), models.Artifact{
		ID:        ids.NewUUID().String(),
		TenantID:  scope.TenantID,
		CreatedBy: scope.UserID,
		Name:      req.Name,
		Content:   req.Content,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if err := middleware.CommitTenantTx(c); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newArtifactResponse(created))
}

func (h HandlerSet) GetArtifact(c *gin.Context) {
	id := c.Param("artifact_id")
	if !ids.ValidUUID(id) {
		middleware.AbortWithError(c, apperr.ErrNotFound)
		return
	}

	a, err := h.artifacts.Get(c.Request.Context(), id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newArtifactResponse(a))
}

func (h HandlerSet) DeleteArtifact(c *gin.Context) {
	id := c.Param("artifact_id")
	if !ids.ValidUUID(id) {
		middleware.AbortWithError(c, apperr.ErrNotFound)
		return
	}

	if err := h.artifacts.Delete(c.Request.Context(), id); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if err := middleware.CommitTenantTx(c); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
