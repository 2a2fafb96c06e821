package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorWrapping(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	appErr := NewInternalError("store failed", cause)
	wrapped := fmt.Errorf("analyze: %w", appErr)

	assert.ErrorIs(t, wrapped, cause)
	assert.ErrorIs(t, wrapped, &AppError{Type: ErrorTypeInternal, Code: "INTERNAL_ERROR"})
	assert.Same(t, appErr, AsAppError(wrapped))
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
	assert.Contains(t, appErr.Error(), "caused by")
}

func TestAsAppError(t *testing.T) {
	assert.Nil(t, AsAppError(nil))

	plain := AsAppError(stderrors.New("boom"))
	assert.Equal(t, ErrorTypeInternal, plain.Type)
	assert.Equal(t, "Unexpected error occurred", plain.Message)
}

func TestIsValidation(t *testing.T) {
	verr := NewValidationError("Code cannot be empty", map[string]interface{}{"field": "code"})

	assert.True(t, IsValidation(verr))
	assert.True(t, IsValidation(fmt.Errorf("wrap: %w", verr)))
	assert.False(t, IsValidation(NewNotFoundError("report")))
	assert.False(t, IsValidation(stderrors.New("x")))
	assert.Equal(t, http.StatusBadRequest, verr.StatusCode)
	assert.Equal(t, "code", verr.Details["field"])
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(time.Minute, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.IsAllowed("a"))
	assert.True(t, rl.IsAllowed("a"))
	assert.False(t, rl.IsAllowed("a"))
	assert.True(t, rl.IsAllowed("b"), "keys are independent")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.IsAllowed("a"), "window slid past old requests")

	now = now.Add(2 * time.Minute)
	rl.Prune()
	assert.Empty(t, rl.requests)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 1)
	h := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusNoContent, send("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("1.1.1.1"))
	assert.Equal(t, http.StatusNoContent, send("2.2.2.2"))
}

func TestValidationMiddleware(t *testing.T) {
	h := ValidationMiddleware(10)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	testCases := []struct {
		name        string
		method      string
		contentType string
		body        string
		want        int
	}{
		{"get passes", http.MethodGet, "", "", http.StatusOK},
		{"json post passes", http.MethodPost, "application/json; charset=utf-8", "{}", http.StatusOK},
		{"wrong content type", http.MethodPost, "text/plain", "{}", http.StatusBadRequest},
		{"too large", http.MethodPost, "application/json", strings.Repeat("a", 11), http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/", strings.NewReader(tc.body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			require.Equal(t, tc.want, rr.Code)
		})
	}
}
