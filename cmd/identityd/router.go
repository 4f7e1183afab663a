package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/merchkit/identity"
	"github.com/merchkit/identity/permission"
	"github.com/merchkit/identity/store"
)

const principalKey = "principal"

func newRouter(engine *identity.Engine, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), clientIP())

	h := handlers{engine: engine, logger: logger}

	v1 := router.Group("/v1")
	{
		v1.POST("/register", h.register)
		v1.POST("/verify-email", h.verifyEmail)
		v1.POST("/resend-verification", h.resendVerification)
		v1.POST("/login", h.login)
		v1.POST("/2fa/verify", h.verifyTwoFactor)
		v1.POST("/refresh", h.refresh)
		v1.POST("/password-reset/request", h.requestPasswordReset)
		v1.POST("/password-reset/confirm", h.resetPassword)
	}

	authed := v1.Group("", h.requireAuth)
	{
		authed.GET("/me", h.me)
		authed.POST("/logout", h.logout)
		authed.POST("/2fa/enable", h.enableTwoFactor)
		authed.POST("/2fa/disable", h.disableTwoFactor)
	}

	admin := authed.Group("/identities", h.requirePermission(permission.Require(permission.UserManage)))
	{
		admin.POST("/:id/permissions/:perm", h.grantPermission)
		admin.DELETE("/:id/permissions/:perm", h.revokePermission)
		admin.DELETE("/:id", h.deleteIdentity)
	}

	return router
}

// clientIP propagates the caller's address into the engine context so
// it lands on audit events.
func clientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(identity.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

type handlers struct {
	engine *identity.Engine
	logger *zap.Logger
}

func (h handlers) requireAuth(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	principal, err := h.engine.Authenticate(c.Request.Context(), token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Set(principalKey, principal)
	c.Next()
}

func (h handlers) requirePermission(req permission.Requirement) gin.HandlerFunc {
	var resolver permission.Resolver
	return func(c *gin.Context) {
		principal := principalFrom(c)
		if principal == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := resolver.Authorize(principal.Permissions.Claims(), req); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) *identity.Principal {
	value, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	principal, _ := value.(*identity.Principal)
	return principal
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}

func (h handlers) register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		FullName string `json:"full_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.engine.Register(c.Request.Context(), identity.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"identity_id": result.IdentityID})
}

func (h handlers) verifyEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.engine.VerifyEmail(c.Request.Context(), req.Email, req.Code); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h handlers) resendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.engine.ResendVerification(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h handlers) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Code     string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.engine.Login(c.Request.Context(), req.Email, req.Password, req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}

	if result.TwoFactorPending {
		c.JSON(http.StatusOK, gin.H{
			"two_factor_pending": true,
			"method":             string(result.Method),
		})
		return
	}
	c.JSON(http.StatusOK, tokenBody(result.AccessToken, result.RefreshToken))
}

func (h handlers) verifyTwoFactor(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.engine.VerifyTwoFactor(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenBody(result.AccessToken, result.RefreshToken))
}

func (h handlers) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	pair, err := h.engine.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenBody(pair.AccessToken, pair.RefreshToken))
}

func (h handlers) logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	principal := principalFrom(c)
	if err := h.engine.Logout(c.Request.Context(), principal.IdentityID, req.RefreshToken); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h handlers) requestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.engine.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h handlers) resetPassword(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required"`
		Code        string `json:"code" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.engine.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h handlers) me(c *gin.Context) {
	principal := principalFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"identity_id": principal.IdentityID,
		"email":       principal.Email,
		"permissions": principal.Permissions.Claims(),
	})
}

func (h handlers) enableTwoFactor(c *gin.Context) {
	var req struct {
		Method string `json:"method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	principal := principalFrom(c)
	if err := h.engine.EnableTwoFactor(c.Request.Context(), principal.IdentityID, store.TwoFactorMethod(req.Method)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h handlers) disableTwoFactor(c *gin.Context) {
	principal := principalFrom(c)
	if err := h.engine.DisableTwoFactor(c.Request.Context(), principal.IdentityID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h handlers) grantPermission(c *gin.Context) {
	err := h.engine.GrantPermission(c.Request.Context(), c.Param("id"), permission.Permission(c.Param("perm")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h handlers) revokePermission(c *gin.Context) {
	err := h.engine.RevokePermission(c.Request.Context(), c.Param("id"), permission.Permission(c.Param("perm")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h handlers) deleteIdentity(c *gin.Context) {
	if err := h.engine.DeleteIdentity(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail maps engine sentinels to HTTP statuses. Anything unmapped is a
// backend failure: logged with detail, surfaced without it.
func (h handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, identity.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrWeakPassword),
		errors.Is(err, identity.ErrTwoFactorMethod),
		errors.Is(err, permission.ErrUnknownPermission):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, identity.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, identity.ErrCodeInvalid):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, identity.ErrAlreadyVerified):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, identity.ErrIdentityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func tokenBody(access, refresh string) gin.H {
	return gin.H{
		"access_token":  access,
		"refresh_token": refresh,
	}
}
