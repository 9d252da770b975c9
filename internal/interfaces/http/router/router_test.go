package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type batchRoutes struct{}

func (batchRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/imports/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "request_id": c.GetString("request_id")})
	})
	rg.GET("/panic", func(c *gin.Context) { panic("boom") })
}

func newTestEngine(t *testing.T, cfg EngineConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	return NewRouter(engine).
		Health(func(c *gin.Context) { c.Status(http.StatusOK) }).
		Register(batchRoutes{}).
		Setup()
}

func TestRouter_Versioned(t *testing.T) {
	engine := newTestEngine(t, EngineConfig{ServiceName: "salesplan-test"})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/imports/b-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"b-1"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/imports/b-1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_APIVersionOption(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := NewRouter(gin.New(), WithAPIVersion("v2")).Register(batchRoutes{}).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/imports/b-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewEngine_LogsAndRecovers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	engine := newTestEngine(t, EngineConfig{ServiceName: "salesplan-test", Logger: zap.New(core)})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/panic", nil)
	req.Header.Set("X-Request-ID", "req-5")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "req-5", w.Header().Get("X-Request-ID"))
	require.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
	assert.Equal(t, "req-5", logs.FilterMessage("Panic recovered").All()[0].ContextMap()["request_id"])
}

func TestNewEngine_BadTrustedProxy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, err := NewEngine(EngineConfig{TrustedProxies: []string{"not-an-ip"}})
	assert.Error(t, err)
}
