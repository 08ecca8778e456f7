package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/middleware"
	"ghostworks/api/internal/models"
	"ghostworks/api/internal/service"
)

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type authResponse struct {
	AccessToken      string            `json:"accessToken"`
	RefreshToken     string            `json:"refreshToken"`
	AccessExpiresAt  time.Time         `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time         `json:"refreshExpiresAt"`
	User             userResponse      `json:"user"`
	Workspace        *workspaceContext `json:"workspace,omitempty"`
}

type workspaceContext struct {
	ID   string      `json:"id"`
	Role models.Role `json:"role"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FirstName   *string   `json:"firstName,omitempty"`
	LastName    *string   `json:"lastName,omitempty"`
	DisplayName string    `json:"displayName"`
	IsVerified  bool      `json:"isVerified"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.DisplayName(),
		IsVerified:  u.IsVerified,
		CreatedAt:   u.CreatedAt,
	}
}

func badRequest(c *gin.Context, err error) {
	middleware.AbortWithError(c, apperr.InvalidInput(err.Error()))
}

func (h HandlerSet) SignUp(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	h.sendAuthResponse(c, http.StatusCreated, result)
}

type loginRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	WorkspaceID string `json:"workspaceId"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		WorkspaceID: req.WorkspaceID,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	h.sendAuthResponse(c, http.StatusOK, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh takes the token from the JSON body or, for browser clients, from
// the refresh cookie.
func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.RefreshToken == "" {
		if cookie, err := c.Cookie(refreshCookie); err == nil {
			req.RefreshToken = cookie
		}
	}
	if req.RefreshToken == "" {
		middleware.AbortWithError(c, apperr.New(apperr.KindTokenInvalid, "missing refresh token"))
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnavailable {
			h.clearSessionCookies(c)
		}
		middleware.AbortWithError(c, err)
		return
	}

	h.sendAuthResponse(c, http.StatusOK, result)
}

func (h HandlerSet) Logout(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	if err := h.auth.Logout(c.Request.Context(), *claims); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	h.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) Me(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	user, err := h.credentials.GetUser(c.Request.Context(), claims.UserID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	resp := gin.H{"user": newUserResponse(user)}
	if claims.Scoped() {
		resp["workspace"] = workspaceContext{ID: claims.TenantID, Role: *claims.Role}
	}
	c.JSON(http.StatusOK, resp)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	claims, _ := middleware.ClaimsFrom(c)
	if err := h.credentials.ChangePassword(c.Request.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type verificationResponse struct {
	Message           string     `json:"message"`
	AlreadyVerified   bool       `json:"alreadyVerified"`
	VerificationToken string     `json:"verificationToken,omitempty"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
}

// RequestEmailVerification issues a verification token. It is echoed in the
// response only in development; delivery elsewhere belongs to the mailer.
func (h HandlerSet) RequestEmailVerification(c *gin.Context) {
	claims, _ := middleware.ClaimsFrom(c)
	v, err := h.auth.RequestVerification(c.Request.Context(), *claims)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	if v.AlreadyVerified {
		c.JSON(http.StatusOK, verificationResponse{Message: "email already verified", AlreadyVerified: true})
		return
	}
	resp := verificationResponse{Message: "verification requested"}
	if h.cfg.IsDevelopment() {
		resp.VerificationToken = v.Token
		resp.ExpiresAt = &v.ExpiresAt
	}
	c.JSON(http.StatusAccepted, resp)
}

type verifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h HandlerSet) VerifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	claims, _ := middleware.ClaimsFrom(c)
	v, err := h.auth.VerifyEmail(c.Request.Context(), *claims, req.Token)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	msg := "email verified"
	if v.AlreadyVerified {
		msg = "email already verified"
	}
	c.JSON(http.StatusOK, verificationResponse{Message: msg, AlreadyVerified: v.AlreadyVerified})
}

type deactivateRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) DeactivateAccount(c *gin.Context) {
	var req deactivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	claims, _ := middleware.ClaimsFrom(c)
	if err := h.auth.Deactivate(c.Request.Context(), *claims, req.Password); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	h.clearSessionCookies(c)
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) sendAuthResponse(c *gin.Context, status int, result service.AuthResult) {
	h.setSessionCookies(c, result.Pair)

	resp := authResponse{
		AccessToken:      result.AccessToken,
		RefreshToken:     result.RefreshToken,
		AccessExpiresAt:  result.AccessExpiresAt,
		RefreshExpiresAt: result.RefreshExpiresAt,
		User:             newUserResponse(result.User),
	}
	if result.Claims.Scoped() {
		resp.Workspace = &workspaceContext{ID: result.Claims.TenantID, Role: *result.Claims.Role}
	}
	c.JSON(status, resp)
}
