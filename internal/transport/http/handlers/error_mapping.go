package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/transport/http/middleware"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			resp := NewErrorResponse(c, cs.Message)
			resp.Code = string(domain.CodeOf(err))
			middleware.SetErrorCode(c, resp.Code)
			c.JSON(cs.Status, resp)
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// specific outcomes first: they share a class with a broader sentinel below
var domainCases = []ErrorCase{
	{Err: domain.ErrChallengeLocked, Status: http.StatusLocked},
	{Err: domain.ErrNotFound, Status: http.StatusNotFound},
	{Err: domain.ErrExpired, Status: http.StatusUnauthorized},
	{Err: domain.ErrBlocked, Status: http.StatusTooManyRequests},
	{Err: domain.ErrTooManySessions, Status: http.StatusConflict},
	{Err: domain.ErrInvalidCode, Status: http.StatusUnauthorized},
	{Err: domain.ErrNotEnabled, Status: http.StatusBadRequest},
	{Err: domain.ErrIntegrityViolation, Status: http.StatusConflict},
	{Err: domain.ErrInvalidArgument, Status: http.StatusBadRequest},
}

// RespondWithDomainError maps security outcomes to stable status codes. Unexpected
// failures are recorded on the gin context and answered with fallbackMessage.
func RespondWithDomainError(c *gin.Context, err error, fallbackMessage string) {
	for _, cs := range domainCases {
		if !errors.Is(err, cs.Err) {
			continue
		}

		var typed *domain.Error
		message := cs.Err.Error()
		if errors.As(err, &typed) {
			message = typed.Message
		}

		resp := NewErrorResponse(c, message)
		resp.Code = string(domain.CodeOf(err))

		var invalid *usecase.InvalidCodeError
		if errors.As(err, &invalid) {
			remaining := invalid.Remaining
			resp.Error = invalid.Error()
			resp.RemainingAttempts = &remaining
		}

		var blocked *usecase.BlockedError
		if errors.As(err, &blocked) {
			until := blocked.Until.UTC()
			resp.BlockedUntil = &until
			c.Header("Retry-After", retryAfter(until))
		}

		middleware.SetErrorCode(c, resp.Code)
		c.JSON(cs.Status, resp)
		return
	}

	_ = c.Error(err)
	resp := NewErrorResponse(c, fallbackMessage)
	resp.Code = string(domain.CodeInternal)
	middleware.SetErrorCode(c, resp.Code)
	c.JSON(http.StatusInternalServerError, resp)
}

func retryAfter(until time.Time) string {
	seconds := int(math.Ceil(time.Until(until).Seconds()))
	if seconds < 0 {
		seconds = 0
	}
	return strconv.Itoa(seconds)
}
