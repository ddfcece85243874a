package middleware_test

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
	"github.com/stemsi/pisaprep/internal/config"
	"github.com/stemsi/pisaprep/internal/middleware"
	"github.com/stemsi/pisaprep/internal/response"
	"github.com/stemsi/pisaprep/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(auth *service.AuthService) *gin.Engine {
	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	r.GET("/api", middleware.RequireOwnerJWT(auth, "owner-1"), func(c *gin.Context) {
		c.String(http.StatusOK, middleware.GetClaims(c).OwnerID)
	})
	r.GET("/ws", middleware.RequireOwnerWSAuth(auth, "owner-1"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequireOwnerJWT(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "secret"})
	r := newAuthRouter(auth)

	owner, err := auth.IssueToken("owner-1", time.Hour)
	require.NoError(t, err)
	stranger, err := auth.IssueToken("owner-2", time.Hour)
	require.NoError(t, err)
	expired, err := auth.IssueToken("owner-1", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"owner token", "Bearer " + owner, http.StatusOK, ""},
		{"missing token", "", http.StatusUnauthorized, string(response.ErrTokenRequired)},
		{"malformed header", "Token " + owner, http.StatusUnauthorized, string(response.ErrTokenRequired)},
		{"another owner", "Bearer " + stranger, http.StatusForbidden, string(response.ErrOwnerMismatch)},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, string(response.ErrTokenExpired)},
		{"garbage", "Bearer nope", http.StatusUnauthorized, string(response.ErrTokenInvalid)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				assert.Contains(t, w.Body.String(), tt.code)
			} else {
				assert.Equal(t, "owner-1", w.Body.String())
			}
		})
	}
}

func TestRequireOwnerWSAuth_QueryToken(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "secret"})
	r := newAuthRouter(auth)

	token, err := auth.IssueToken("owner-1", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimiter_PerClient(t *testing.T) {
	r := gin.New()
	r.Use(middleware.NewRateLimiter(60, 2).Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2"))
}

func TestCompress(t *testing.T) {
	large := strings.Repeat("pisa ", 500)
	r := gin.New()
	r.Use(middleware.Compress(5, 1024))
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/large", nil)
	req.Header.Set("Accept-Encoding", "gzip, br;q=0.9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
	body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, large, string(body))

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/large", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, large, w.Body.String())
}
