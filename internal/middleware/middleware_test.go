package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentgrid/assessment-backend/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func token(t *testing.T, role service.Role, subject string) string {
	t.Helper()
	claims := service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

func TestRequireCandidate(t *testing.T) {
	auth := service.NewAuthService("secret")
	r := gin.New()
	r.GET("/me", RequireCandidate(auth), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).UserID())
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"garbage", "Bearer nope", http.StatusUnauthorized, "TOKEN_INVALID"},
		{"recruiter", "Bearer " + token(t, service.RoleRecruiter, "r-1"), http.StatusForbidden, "CANDIDATE_ACCESS_ONLY"},
		{"candidate", "Bearer " + token(t, service.RoleCandidate, "c-1"), http.StatusOK, "c-1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.body)
		})
	}
}

func TestRequireCandidateWSAuth_ReadsQueryToken(t *testing.T) {
	auth := service.NewAuthService("secret")
	r := gin.New()
	r.GET("/ws", RequireCandidateWSAuth(auth), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token="+token(t, service.RoleCandidate, "c-1"), nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimiter_PerCandidate(t *testing.T) {
	auth := service.NewAuthService("secret")
	rl := NewRateLimiter(2)
	r := gin.New()
	r.POST("/run", RequireCandidate(auth), rl.PerCandidate(), func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(subject string) int {
		req := httptest.NewRequest(http.MethodPost, "/run", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, service.RoleCandidate, subject))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusTooManyRequests, do("a"))
	assert.Equal(t, http.StatusOK, do("b"))
}

func TestSessionIDParam(t *testing.T) {
	r := gin.New()
	r.GET("/s/:session_id", SessionIDParam(), func(c *gin.Context) { c.String(http.StatusOK, GetSessionID(c).String()) })

	id := uuid.New()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/s/"+id.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id.String(), w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/s/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_ID")
}

func TestBrotli(t *testing.T) {
	big := strings.Repeat("verdict ", 512)
	r := gin.New()
	r.Use(Brotli(BrotliOptions{MinLength: 64, ExcludedPrefixes: []string{"/ws"}}))
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, big) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/ws/x", func(c *gin.Context) { c.String(http.StatusOK, big) })

	get := func(path, accept string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept-Encoding", accept)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := get("/big", "gzip, br")
	require.Equal(t, "br", w.Header().Get("Content-Encoding"))
	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, big, string(plain))

	w = get("/small", "br")
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())

	assert.Empty(t, get("/big", "br;q=0").Header().Get("Content-Encoding"))
	assert.Empty(t, get("/big", "gzip").Header().Get("Content-Encoding"))
	assert.Empty(t, get("/ws/x", "br").Header().Get("Content-Encoding"))
}

func TestCacheHeaders(t *testing.T) {
	r := gin.New()
	r.GET("/catalog", CacheControl(60), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/session", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/catalog", nil))
	assert.Equal(t, "public, max-age=60", w.Header().Get("Cache-Control"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/session", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
