package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

type stubValidator struct {
	owner string
	err   error
	calls int
}

func (s *stubValidator) ValidateSession(_ context.Context, _ string) (*domain.SessionValidation, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.SessionValidation{Valid: true, OwnerID: s.owner}, nil
}

func newSessionRouter(v SessionValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(EnrichContext())
	router.GET("/me", RequireSession(v), func(c *gin.Context) {
		token, _ := GetSessionToken(c)
		userID, _ := GetAuthenticatedUserID(c)
		c.JSON(http.StatusOK, gin.H{"token": token, "user_id": userID})
	})
	return router
}

func TestRequireSessionStoresOwner(t *testing.T) {
	v := &stubValidator{owner: "alice"}
	router := newSessionRouter(v)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer tok-123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["token"] != "tok-123" || body["user_id"] != "alice" {
		t.Fatalf("unexpected context values: %v", body)
	}
}

func TestRequireSessionRejections(t *testing.T) {
	cases := []struct {
		name       string
		header     string
		err        error
		wantStatus int
		wantCode   string
		wantCalls  int
	}{
		{name: "missing header", wantStatus: http.StatusUnauthorized, wantCode: "invalid_argument"},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantCode: "invalid_argument"},
		{name: "empty token", header: "Bearer   ", wantStatus: http.StatusUnauthorized, wantCode: "invalid_argument"},
		{name: "unknown session", header: "Bearer gone", err: domain.ErrSessionNotFound, wantStatus: http.StatusUnauthorized, wantCode: "not_found", wantCalls: 1},
		{name: "expired session", header: "Bearer old", err: domain.ErrSessionExpired, wantStatus: http.StatusUnauthorized, wantCode: "expired", wantCalls: 1},
		{name: "store failure", header: "Bearer x", err: errors.New("connection refused"), wantStatus: http.StatusInternalServerError, wantCode: "internal", wantCalls: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := &stubValidator{err: tc.err}
			router := newSessionRouter(v)

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, resp.Code)
			}
			if resp.TraceID == "" {
				t.Fatalf("expected trace id in error response")
			}
			if v.calls != tc.wantCalls {
				t.Fatalf("expected %d validator calls, got %d", tc.wantCalls, v.calls)
			}
		})
	}
}
