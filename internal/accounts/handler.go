// Package accounts serves sign-up, sign-in, password reset and the caller's
// own profile.
package accounts

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/greenway-eco/backend/internal/apperr"
	"github.com/greenway-eco/backend/internal/directory"
	"github.com/greenway-eco/backend/internal/identity"
	"github.com/greenway-eco/backend/internal/middleware"
	"github.com/greenway-eco/backend/internal/models"
	"github.com/greenway-eco/backend/internal/session"
	"github.com/greenway-eco/backend/pkg/response"
)

// Provider is the account service used by the handler.
type Provider interface {
	CreateAccount(ctx context.Context, email, password, displayName string) (*identity.Credential, error)
	Authenticate(ctx context.Context, email, password string) (*identity.Credential, error)
	Refresh(ctx context.Context, token string) (*identity.Credential, error)
	IssueToken(ctx context.Context, userID string) (*identity.Credential, error)
	SetRoleClaim(ctx context.Context, userID string, role models.Role) error
	DeleteAccount(ctx context.Context, userID string) error
	SendPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// Profiles is the identity directory used by the handler.
type Profiles interface {
	FetchProfile(ctx context.Context, role models.Role, userID string) (*models.Person, error)
	SaveProfile(ctx context.Context, p *models.Person) error
	Rename(ctx context.Context, role models.Role, userID, name string) error
	RemoveProfile(ctx context.Context, role models.Role, userID string) error
}

// SignupRequest is the body for POST /auth/signup.
type SignupRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
	Role        string `json:"role"` // user or owner, defaults to user
}

// SigninRequest is the body for POST /auth/signin.
type SigninRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest is the optional body for POST /auth/refresh.
type RefreshRequest struct {
	Token string `json:"token"`
}

// ResetRequest is the body for POST /auth/reset-password.
type ResetRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetConfirmRequest is the body for POST /auth/reset-password/confirm.
type ResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ProfileUpdateRequest is the body for PATCH /profile.
type ProfileUpdateRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

// ProfileResponse is the caller's profile. Incomplete is set when no
// directory record exists and the view was built from the session.
type ProfileResponse struct {
	models.Person
	Label      string `json:"role_label"`
	Incomplete bool   `json:"incomplete,omitempty"`
}

// Handler handles account and profile endpoints.
type Handler struct {
	provider      Provider
	profiles      Profiles
	secureCookies bool
	cookieMaxAge  int
	logger        *zap.Logger
}

// NewHandler creates an accounts handler. cookieMaxAge is in seconds.
func NewHandler(provider Provider, profiles Profiles, secureCookies bool, cookieMaxAge int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		provider:      provider,
		profiles:      profiles,
		secureCookies: secureCookies,
		cookieMaxAge:  cookieMaxAge,
		logger:        logger,
	}
}

func (h *Handler) setSession(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(session.CookieName, token, h.cookieMaxAge, "/", "", h.secureCookies, true)
}

func (h *Handler) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(session.CookieName, "", -1, "/", "", h.secureCookies, true)
}

func signupRole(s string) (models.Role, bool) {
	if strings.TrimSpace(s) == "" {
		return models.RoleUser, true
	}
	r := models.ParseRole(s)
	for _, allowed := range models.SignupRoles {
		if r == allowed {
			return r, true
		}
	}
	return "", false
}

func writeProviderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, identity.ErrEmailExists):
		response.Conflict(c, err.Error())
	case errors.Is(err, identity.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, response.Body{Success: false, Error: err.Error(), Field: "email"})
	case errors.Is(err, identity.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, response.Body{Success: false, Error: err.Error(), Field: "password"})
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrInvalidToken):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, identity.ErrInvalidResetToken):
		response.BadRequest(c, err.Error())
	case errors.Is(err, identity.ErrResetUnavailable):
		response.ServiceUnavailable(c, err.Error())
	default:
		response.ServiceUnavailable(c, "account service unavailable, try again")
	}
}

// Signup handles POST /auth/signup. The requested role only picks the
// profile partition and the claim to request; the returned token is issued
// after the claim is set.
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	role, ok := signupRole(req.Role)
	if !ok {
		c.JSON(http.StatusBadRequest, response.Body{Success: false, Error: "role must be user or owner", Field: "role"})
		return
	}
	ctx := c.Request.Context()

	cred, err := h.provider.CreateAccount(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		if !errors.Is(err, identity.ErrEmailExists) && !errors.Is(err, identity.ErrInvalidEmail) && !errors.Is(err, identity.ErrWeakPassword) {
			h.logger.Error("create account failed", zap.Error(err))
		}
		writeProviderError(c, err)
		return
	}

	person, err := models.NewPerson(cred.UserID, strings.TrimSpace(req.DisplayName), cred.Email, role)
	if err != nil {
		h.rollbackSignup(ctx, cred.UserID, "")
		c.JSON(http.StatusBadRequest, response.Body{Success: false, Error: err.Error(), Field: "display_name"})
		return
	}
	if err := h.profiles.SaveProfile(ctx, person); err != nil {
		h.logger.Error("save profile failed", zap.String("user_id", cred.UserID), zap.Error(err))
		h.rollbackSignup(ctx, cred.UserID, "")
		response.ServiceUnavailable(c, "account could not be created, try again")
		return
	}
	if err := h.provider.SetRoleClaim(ctx, cred.UserID, role); err != nil {
		h.logger.Error("set role claim failed", zap.String("user_id", cred.UserID), zap.Error(err))
		h.rollbackSignup(ctx, cred.UserID, role)
		response.ServiceUnavailable(c, "account could not be created, try again")
		return
	}
	issued, err := h.provider.IssueToken(ctx, cred.UserID)
	if err != nil {
		h.logger.Error("issue token failed", zap.String("user_id", cred.UserID), zap.Error(err))
		h.rollbackSignup(ctx, cred.UserID, role)
		response.ServiceUnavailable(c, "account could not be created, try again")
		return
	}
	cred = issued
	h.logger.Info("signup complete", zap.String("user_id", cred.UserID), zap.String("role", string(role)))
	h.setSession(c, cred.Token)
	response.Created(c, cred)
}

// rollbackSignup removes a half-created account. A non-empty role also
// removes the saved profile.
func (h *Handler) rollbackSignup(ctx context.Context, userID string, role models.Role) {
	if role != "" {
		if err := h.profiles.RemoveProfile(ctx, role, userID); err != nil {
			h.logger.Error("signup rollback: remove profile failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if err := h.provider.DeleteAccount(ctx, userID); err != nil {
		h.logger.Error("signup rollback: delete account failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// Signin handles POST /auth/signin.
func (h *Handler) Signin(c *gin.Context) {
	var req SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cred, err := h.provider.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidCredentials) {
			h.logger.Error("authenticate failed", zap.Error(err))
		}
		writeProviderError(c, err)
		return
	}
	h.setSession(c, cred.Token)
	response.OK(c, cred)
}

// Refresh handles POST /auth/refresh. The token comes from the body, the
// bearer header or the session cookie, in that order.
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	_ = c.ShouldBindJSON(&req)
	token := strings.TrimSpace(req.Token)
	if token == "" {
		token = session.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		token, _ = c.Cookie(session.CookieName)
	}
	if token == "" {
		response.Unauthorized(c, "sign in required")
		return
	}
	cred, err := h.provider.Refresh(c.Request.Context(), token)
	if err != nil {
		writeProviderError(c, err)
		return
	}
	h.setSession(c, cred.Token)
	response.OK(c, cred)
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	h.clearSession(c)
	response.NoContent(c)
}

// RequestReset handles POST /auth/reset-password. The answer does not reveal
// whether the email is registered.
func (h *Handler) RequestReset(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.provider.SendPasswordReset(c.Request.Context(), req.Email); err != nil {
		if !errors.Is(err, identity.ErrResetUnavailable) {
			h.logger.Error("password reset request failed", zap.Error(err))
		}
		writeProviderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, response.Body{Success: true, Data: gin.H{"message": "if the email is registered, a reset link is on its way"}})
}

// ConfirmReset handles POST /auth/reset-password/confirm.
func (h *Handler) ConfirmReset(c *gin.Context) {
	var req ResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.provider.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		writeProviderError(c, err)
		return
	}
	response.OK(c, gin.H{"message": "password updated"})
}

// GetProfile handles GET /profile. A missing directory record yields a
// view built from the session instead of an error.
func (h *Handler) GetProfile(c *gin.Context) {
	caller, _ := middleware.CurrentIdentity(c)
	p, err := h.profiles.FetchProfile(c.Request.Context(), caller.Role, caller.UserID)
	if err != nil {
		if !errors.Is(err, directory.ErrNotFound) {
			h.logger.Warn("fetch profile failed", zap.String("user_id", caller.UserID), zap.Error(err))
		}
		response.OK(c, ProfileResponse{
			Person:     models.Person{UserID: caller.UserID, DisplayName: caller.Email, Email: caller.Email, Role: caller.Role},
			Label:      caller.Role.Info().Label,
			Incomplete: true,
		})
		return
	}
	response.OK(c, ProfileResponse{Person: *p, Label: p.Role.Info().Label})
}

// UpdateProfile handles PATCH /profile.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	caller, _ := middleware.CurrentIdentity(c)
	err := h.profiles.Rename(c.Request.Context(), caller.Role, caller.UserID, req.DisplayName)
	switch {
	case err == nil:
	case errors.Is(err, directory.ErrEmptyName):
		response.Error(c, apperr.Validation("display_name", "display_name is required"))
		return
	case errors.Is(err, directory.ErrNotFound):
		response.Error(c, apperr.NotFound("profile not found"))
		return
	default:
		h.logger.Error("rename profile failed", zap.String("user_id", caller.UserID), zap.Error(err))
		response.Error(c, apperr.Service("profile could not be updated", err))
		return
	}
	h.GetProfile(c)
}

// DeleteProfile handles DELETE /profile: the account goes first, then the
// directory record. Listings the caller owns are kept.
func (h *Handler) DeleteProfile(c *gin.Context) {
	caller, _ := middleware.CurrentIdentity(c)
	ctx := c.Request.Context()
	if err := h.provider.DeleteAccount(ctx, caller.UserID); err != nil {
		h.logger.Error("delete account failed", zap.String("user_id", caller.UserID), zap.Error(err))
		response.Error(c, apperr.Service("account could not be deleted", err))
		return
	}
	if err := h.profiles.RemoveProfile(ctx, caller.Role, caller.UserID); err != nil {
		h.logger.Error("account deleted but profile removal failed",
			zap.String("user_id", caller.UserID),
			zap.String("partition", caller.Role.Info().Partition),
			zap.Error(err),
		)
		h.clearSession(c)
		response.Error(c, apperr.Service("account deleted, profile cleanup pending", err))
		return
	}
	h.logger.Info("account deleted", zap.String("user_id", caller.UserID))
	h.clearSession(c)
	response.NoContent(c)
}
