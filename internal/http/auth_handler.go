package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bookcycle-auth/internal/domain"
	"bookcycle-auth/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints de autenticación
// y recuperación de credenciales.
type AuthHandler struct {
	logger   *zap.Logger
	authServ *service.AuthService
	credServ *service.CredentialService
	jwtServ  *service.JWTService
}

func NewAuthHandler(logger *zap.Logger, authServ *service.AuthService, credServ *service.CredentialService, jwtServ *service.JWTService) *AuthHandler {
	return &AuthHandler{
		logger:   logger,
		authServ: authServ,
		credServ: credServ,
		jwtServ:  jwtServ,
	}
}

// Login maneja POST /auth/login.
// Email inexistente y contraseña incorrecta responden exactamente igual:
// mismo status, mismo mensaje.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.authServ.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect email or password"})
		case errors.Is(err, service.ErrLoginThrottled):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "login temporarily blocked to protect your account"})
		case errors.Is(err, service.ErrAccountSuspended):
			c.JSON(http.StatusForbidden, gin.H{"error": "account access temporarily suspended"})
		default:
			h.logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not login"})
		}
		return
	}

	tokens, err := h.issueTokens(user)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "tokens": tokens})
}

// ChangePassword maneja PUT /auth/password. Requiere token válido y la
// contraseña vigente; la identidad sale de los claims, nunca de estado
// ambiente.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required,min=6,max=32"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid change password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be between 6 and 32 characters"})
		return
	}

	user, err := h.credServ.ChangePasswordWithOldPassword(c.Request.Context(), claims.UserID, req.OldPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect password"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			// Incluye ErrPasswordPolicy: si llegó hasta acá es un bug
			// nuestro, el binding de arriba debió rechazarlo.
			h.logger.Error("change password failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not change password"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ForgotPassword maneja POST /auth/password/forgot. A diferencia del
// login, responde distinto cuando el email no existe; decisión de
// producto heredada.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid forgot password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.credServ.RequestPasswordRecovery(c.Request.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many recovery requests"})
		default:
			h.logger.Error("password recovery request failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not request recovery"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "an email with recovery instructions is on its way"})
}

// ConfirmRecoveryCode maneja POST /auth/password/confirm-code.
// Sólo verifica vigencia; no consume el código.
func (h *AuthHandler) ConfirmRecoveryCode(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid confirm code request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.credServ.ConfirmRecoveryCode(c.Request.Context(), req.Code)
	if err != nil {
		h.respondRecoveryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ResetPassword maneja PUT /auth/password/reset: confirma el código y
// cambia la contraseña en un solo paso. El cambio consume el código.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Code        string `json:"code" binding:"required"`
		NewPassword string `json:"new_password" binding:"required,min=6,max=32"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid reset password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be between 6 and 32 characters"})
		return
	}

	user, err := h.credServ.ConfirmRecoveryCode(c.Request.Context(), req.Code)
	if err != nil {
		h.respondRecoveryError(c, err)
		return
	}

	changed, err := h.credServ.ChangePassword(c.Request.Context(), user.ID, req.NewPassword)
	if err != nil {
		h.logger.Error("reset password failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not reset password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": changed})
}

// RefreshToken maneja POST /auth/refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if h.jwtServ == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
		return
	}
	tokens, err := h.jwtServ.RefreshPair(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid logout request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if h.jwtServ == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
		return
	}
	_ = h.jwtServ.RevokeRefresh(req.RefreshToken)
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) respondRecoveryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRecoveryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "code not found"})
	case errors.Is(err, service.ErrRecoveryExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "wrong or expired code, please request a new one"})
	default:
		h.logger.Error("confirm recovery code failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not confirm code"})
	}
}

func (h *AuthHandler) issueTokens(user domain.User) (service.TokenPair, error) {
	if h.jwtServ == nil {
		return service.TokenPair{}, errors.New("jwt not configured")
	}
	return h.jwtServ.GeneratePair(user)
}
