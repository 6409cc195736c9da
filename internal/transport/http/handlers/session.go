package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/transport/http/middleware"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/usecase"
)

// SessionHandler exposes login and session management endpoints.
type SessionHandler struct {
	security *usecase.SecurityFacade
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(security *usecase.SecurityFacade) *SessionHandler {
	return &SessionHandler{security: security}
}

// RegisterRoutes binds session routes to the provided router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	if r == nil {
		return
	}

	login := append([]gin.HandlerFunc{}, loginMiddlewares...)
	r.POST("/login", append(login, h.Login)...)
	r.POST("/validate", h.ValidateSession)
	r.POST("/logout", h.Logout)
	r.GET("/active/:user_id", h.ListActive)
	r.GET("/stats", h.Stats)
}

// Login records the credential outcome and opens a session when it succeeded.
func (h *SessionHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id is required"))
		return
	}

	ip := strings.TrimSpace(req.IPAddress)
	if ip == "" {
		ip = c.ClientIP()
	}
	success := req.CredentialsValid == nil || *req.CredentialsValid

	result, err := h.security.Login(c.Request.Context(), usecase.LoginRequest{
		Identity: req.UserID,
		IP:       ip,
		Success:  success,
	})
	if err != nil {
		RespondWithDomainError(c, err, "failed to log in")
		return
	}

	if !result.Authenticated {
		resp := NewErrorResponse(c, "invalid credentials")
		resp.Code = "invalid_credentials"
		if result.Attempt != nil && result.Attempt.Blocked {
			resp.Error = "too many failed attempts, ip blocked"
			resp.Code = "blocked"
			resp.BlockedUntil = result.Attempt.BlockedUntil
			if result.Attempt.BlockedUntil != nil {
				c.Header("Retry-After", retryAfter(*result.Attempt.BlockedUntil))
			}
			middleware.SetErrorCode(c, resp.Code)
			c.JSON(http.StatusTooManyRequests, resp)
			return
		}
		remaining := result.RemainingAttempts()
		resp.RemainingAttempts = &remaining
		middleware.SetErrorCode(c, resp.Code)
		c.JSON(http.StatusUnauthorized, resp)
		return
	}

	session := result.Session
	c.JSON(http.StatusOK, LoginResponse{
		SessionToken: session.Token,
		UserID:       session.OwnerID,
		IPAddress:    session.IP,
		CreatedAt:    session.CreatedAt,
		RequiresMFA:  result.RequiresMFA,
	})
}

// ValidateSession checks and refreshes a session token.
func (h *SessionHandler) ValidateSession(c *gin.Context) {
	var req SessionTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session_token is required"))
		return
	}

	validation, err := h.security.ValidateSession(c.Request.Context(), req.SessionToken)
	if err != nil {
		RespondWithDomainError(c, err, "failed to validate session")
		return
	}

	c.JSON(http.StatusOK, SessionValidateResponse{
		Valid:       validation.Valid,
		UserID:      validation.OwnerID,
		IPAddress:   validation.IP,
		MFAVerified: validation.MFAVerified,
		ExpiresAt:   validation.ExpiresAt,
	})
}

// Logout terminates a session.
func (h *SessionHandler) Logout(c *gin.Context) {
	var req SessionTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session_token is required"))
		return
	}

	if err := h.security.Logout(c.Request.Context(), req.SessionToken); err != nil {
		RespondWithDomainError(c, err, "failed to log out")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// ListActive lists a user's active sessions with truncated tokens.
func (h *SessionHandler) ListActive(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))

	views, err := h.security.ActiveSessions(c.Request.Context(), userID)
	if err != nil {
		RespondWithDomainError(c, err, "failed to list sessions")
		return
	}

	sessions := make([]SessionPayload, 0, len(views))
	for _, view := range views {
		sessions = append(sessions, newSessionPayload(view))
	}
	c.JSON(http.StatusOK, SessionListResponse{UserID: userID, Sessions: sessions, Total: len(sessions)})
}

// Stats summarises sessions and IP blocks.
func (h *SessionHandler) Stats(c *gin.Context) {
	stats, err := h.security.SessionStats(c.Request.Context())
	if err != nil {
		RespondWithDomainError(c, err, "failed to load session stats")
		return
	}

	c.JSON(http.StatusOK, SessionStatsResponse{
		ActiveSessions:     stats.ActiveSessions,
		ExpiredSessions:    stats.ExpiredSessions,
		TerminatedSessions: stats.TerminatedSessions,
		UniqueUsers:        stats.DistinctOwners,
		BlockedIPs:         stats.BlockedIPs,
	})
}
