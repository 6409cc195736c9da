package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

// SessionValidator resolves an opaque session token into its owner.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*domain.SessionValidation, error)
}

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func abortUnauthorized(c *gin.Context, code domain.ErrorCode, msg string) {
	SetErrorCode(c, string(code))
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Error:   msg,
		Code:    string(code),
		TraceID: GetTraceID(c),
	})
}

// RequireSession validates the bearer session token and stores its owner on the context.
// Validation refreshes the session's activity like any other validate call.
func RequireSession(validator SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, domain.CodeInvalidArgument, "missing authorization header")
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			abortUnauthorized(c, domain.CodeInvalidArgument, "invalid authorization format: expected 'Bearer <token>'")
			return
		}

		token = strings.TrimSpace(token)
		if token == "" {
			abortUnauthorized(c, domain.CodeInvalidArgument, "missing session token")
			return
		}

		validation, err := validator.ValidateSession(c.Request.Context(), token)
		if err != nil {
			code := domain.CodeOf(err)
			switch code {
			case domain.CodeNotFound, domain.CodeExpired, domain.CodeInvalidArgument:
				abortUnauthorized(c, code, err.Error())
			default:
				_ = c.Error(err)
				SetErrorCode(c, string(domain.CodeInternal))
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Error:   "session validation failed",
					Code:    string(domain.CodeInternal),
					TraceID: GetTraceID(c),
				})
			}
			return
		}

		c.Set(SessionTokenKey, token)
		c.Set(UserIDKey, validation.OwnerID)
		GetRequestContext(c).UserID = validation.OwnerID

		c.Next()
	}
}

// GetSessionToken returns the bearer token validated by RequireSession.
func GetSessionToken(c *gin.Context) (string, bool) {
	token := c.GetString(SessionTokenKey)
	return token, token != ""
}

// GetAuthenticatedUserID retrieves the session owner from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	return id, id != ""
}
