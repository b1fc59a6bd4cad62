package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/dataset-search-api/oidc"
	"github.com/upb/dataset-search-api/utils"
	"go.uber.org/zap"
)

// MockTokenVerifier is a mock implementation of TokenVerifier
type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(ctx context.Context, token, vo string) (*oidc.Claims, error) {
	args := m.Called(ctx, token, vo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oidc.Claims), args.Error(1)
}

func decodeErrorResponse(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestRequireAuth(t *testing.T) {
	logger := zap.NewNop()

	t.Run("valid token allows request", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		middleware := NewAuthMiddleware(mockVerifier, "", logger)

		claims := &oidc.Claims{
			Subject: "user-123",
			Email:   "user@example.com",
			Groups:  []string{"readers"},
			VO:      "team-x",
		}

		mockVerifier.On("Verify", mock.Anything, "valid-token", "").Return(claims, nil)

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			extractedClaims := GetClaimsFromContext(r.Context())
			require.NotNil(t, extractedClaims)
			assert.Equal(t, "user-123", extractedClaims.Subject)
			assert.Equal(t, "team-x", extractedClaims.VO)

			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockVerifier.AssertExpectations(t)
	})

	t.Run("server side VO is passed to the verifier", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		middleware := NewAuthMiddleware(mockVerifier, "team-z", logger)

		mockVerifier.On("Verify", mock.Anything, "valid-token", "team-z").
			Return(&oidc.Claims{Subject: "user-123", VO: "team-z"}, nil)

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockVerifier.AssertExpectations(t)
	})

	t.Run("missing token returns 401 with challenge", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		middleware := NewAuthMiddleware(mockVerifier, "", logger)

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
		assert.Equal(t, "Authorization token is required", decodeErrorResponse(t, w).Message)
		mockVerifier.AssertNotCalled(t, "Verify")
	})

	t.Run("invalid authorization header format returns 401", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		middleware := NewAuthMiddleware(mockVerifier, "", logger)

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
		mockVerifier.AssertNotCalled(t, "Verify")
	})

	t.Run("verification failure returns 401 without detail", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		middleware := NewAuthMiddleware(mockVerifier, "", logger)

		reason := fmt.Errorf("%w: %w", oidc.ErrTokenInvalid, oidc.ErrIssuerMismatch)
		mockVerifier.On("Verify", mock.Anything, "bad-token", "").Return(nil, reason)

		handler := middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

		response := decodeErrorResponse(t, w)
		assert.Equal(t, "Invalid token", response.Message)
		assert.NotContains(t, w.Body.String(), "issuer")
		mockVerifier.AssertExpectations(t)
	})
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{name: "valid bearer token", header: "Bearer abc.def.ghi", expected: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc.def.ghi", expected: "abc.def.ghi"},
		{name: "surrounding whitespace", header: "Bearer   abc.def.ghi  ", expected: "abc.def.ghi"},
		{name: "empty header", header: "", expected: ""},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", expected: ""},
		{name: "scheme only", header: "Bearer", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			assert.Equal(t, tt.expected, extractBearerToken(req))
		})
	}
}
