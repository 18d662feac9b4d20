package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/bounce/internal/app"
	"github.com/dkeye/bounce/internal/app/accuracy"
	"github.com/dkeye/bounce/internal/core"
)

type fixedAccuracy map[core.SessionID]accuracy.Summary

func (f fixedAccuracy) Accuracy() map[core.SessionID]accuracy.Summary { return f }

func get(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestSessionsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := app.NewRegistry()
	s := app.NewSession(context.Background(), "", app.RoleOffer, nil, nil)
	reg.Add(s)

	w := get(t, SetupRouter(Deps{Registry: reg, Debug: true}), "/api/sessions")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var got []app.SessionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, s.ID, got[0].ID)
	assert.Equal(t, app.RoleOffer, got[0].Role)
	assert.Equal(t, "new", got[0].State)
}

func TestAccuracyEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	src := fixedAccuracy{"abc": {Matched: 3, Mean: 1.5}}
	r := SetupRouter(Deps{Accuracy: src, Debug: true})

	w := get(t, r, "/api/accuracy")
	require.Equal(t, http.StatusOK, w.Code)
	var all map[string]accuracy.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Equal(t, int64(3), all["abc"].Matched)

	w = get(t, r, "/api/accuracy/abc")
	require.Equal(t, http.StatusOK, w.Code)

	w = get(t, r, "/api/accuracy/zzz")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(t, SetupRouter(Deps{Debug: true}), "/api/accuracy")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestIDPropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := SetupRouter(Deps{Debug: true})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-1")
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
}
