package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/pisaprep/internal/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	r.GET("/ok", func(c *gin.Context) { response.Success(c, http.StatusOK, gin.H{"n": 1}) })
	r.GET("/fail", func(c *gin.Context) { response.Fail(c, http.StatusNotFound, response.ErrNotFound) })
	return r
}

func serve(t *testing.T, r *gin.Engine, path, reqID string) (*httptest.ResponseRecorder, response.Envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if reqID != "" {
		req.Header.Set(response.HeaderRequestID, reqID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestRequestID_ReusesWellFormedHeader(t *testing.T) {
	r := newEngine()

	w, env := serve(t, r, "/ok", "tap-42")
	assert.Equal(t, "tap-42", env.Metadata.RequestID)
	assert.Equal(t, "tap-42", w.Header().Get(response.HeaderRequestID))

	w, env = serve(t, r, "/ok", "bad id\twith spaces")
	assert.NotEqual(t, "bad id\twith spaces", env.Metadata.RequestID)
	assert.Len(t, env.Metadata.RequestID, 36)
	assert.Equal(t, env.Metadata.RequestID, w.Header().Get(response.HeaderRequestID))
}

func TestEnvelope_SuccessAndFailure(t *testing.T) {
	r := newEngine()

	_, env := serve(t, r, "/ok", "")
	assert.Nil(t, env.Error)
	assert.Equal(t, map[string]any{"n": float64(1)}, env.Data)
	ts, err := time.Parse(time.RFC3339, env.Metadata.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)

	w, env := serve(t, r, "/fail", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Nil(t, env.Data)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrNotFound, env.Error.Code)
	assert.Equal(t, response.GetMessage(response.ErrNotFound), env.Error.Message)
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, &response.Pagination{Page: 2, PerPage: 20, TotalItems: 41, TotalPages: 3}, response.NewPagination(2, 20, 41))
	assert.Equal(t, 0, response.NewPagination(1, 20, 0).TotalPages)
	assert.Equal(t, 0, response.NewPagination(1, 0, 5).TotalPages)
}
