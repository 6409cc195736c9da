package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/transport/http/middleware"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/usecase"
)

// TwoFactorHandler exposes enrollment and challenge endpoints.
type TwoFactorHandler struct {
	security *usecase.SecurityFacade
}

// NewTwoFactorHandler constructs a two-factor handler.
func NewTwoFactorHandler(security *usecase.SecurityFacade) *TwoFactorHandler {
	return &TwoFactorHandler{security: security}
}

// RegisterRoutes binds 2FA routes. Challenge routes require a session bearer token.
func (h *TwoFactorHandler) RegisterRoutes(r *gin.RouterGroup, sessionMiddleware gin.HandlerFunc) {
	if r == nil {
		return
	}

	r.POST("/enable", h.Enable)
	r.POST("/disable", h.Disable)
	r.GET("/status/:user_id", h.Status)

	challenge := r.Group("")
	if sessionMiddleware != nil {
		challenge.Use(sessionMiddleware)
	}
	challenge.POST("/send-code", h.SendCode)
	challenge.POST("/verify-code", h.VerifyCode)
}

// Enable enrolls a user in two-factor authentication.
func (h *TwoFactorHandler) Enable(c *gin.Context) {
	var req EnableTwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id and method are required"))
		return
	}

	method, ok := domain.ParseTwoFactorMethod(req.Method)
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unsupported method"))
		return
	}

	result, err := h.security.EnableTwoFactor(c.Request.Context(), usecase.EnrollRequest{
		OwnerID: req.UserID,
		Method:  method,
		Phone:   req.PhoneNumber,
		Email:   req.Email,
	})
	if err != nil {
		RespondWithDomainError(c, err, "failed to enable two-factor authentication")
		return
	}

	resp := newTwoFactorStatus(result.Status)
	resp.ProvisioningURI = result.ProvisioningURI
	c.JSON(http.StatusOK, resp)
}

// Disable turns two-factor authentication off.
func (h *TwoFactorHandler) Disable(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id is required"))
		return
	}

	if err := h.security.DisableTwoFactor(c.Request.Context(), req.UserID); err != nil {
		RespondWithDomainError(c, err, "failed to disable two-factor authentication")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "two-factor authentication disabled"})
}

// Status returns the masked enrollment.
func (h *TwoFactorHandler) Status(c *gin.Context) {
	status, err := h.security.TwoFactorStatus(c.Request.Context(), strings.TrimSpace(c.Param("user_id")))
	if err != nil {
		RespondWithDomainError(c, err, "failed to load two-factor status")
		return
	}
	c.JSON(http.StatusOK, newTwoFactorStatus(*status))
}

// SendCode issues a code to the owner of the bearer session.
func (h *TwoFactorHandler) SendCode(c *gin.Context) {
	token, ok := middleware.GetSessionToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "session required"))
		return
	}

	var req SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "method is required"))
		return
	}
	method, ok := domain.ParseTwoFactorMethod(req.Method)
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unsupported method"))
		return
	}

	issued, err := h.security.RequestChallenge(c.Request.Context(), token, method)
	if err != nil {
		RespondWithDomainError(c, err, "failed to send verification code")
		return
	}

	c.JSON(http.StatusOK, SendCodeResponse{
		Method:      string(issued.Method),
		Destination: issued.MaskedDestination,
		ExpiresAt:   issued.ExpiresAt,
	})
}

// VerifyCode checks a code for the owner of the bearer session.
func (h *TwoFactorHandler) VerifyCode(c *gin.Context) {
	token, ok := middleware.GetSessionToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "session required"))
		return
	}

	var req VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "code is required"))
		return
	}

	result, err := h.security.VerifyChallenge(c.Request.Context(), token, req.Code)
	if err != nil {
		RespondWithDomainError(c, err, "failed to verify code")
		return
	}
	c.JSON(http.StatusOK, VerifyCodeResponse{Authenticated: result.Authenticated})
}
