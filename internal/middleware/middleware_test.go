package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SergeiKhy/brainplus-backend/internal/middleware"
	"github.com/SergeiKhy/brainplus-backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// TestRateLimiter_Middleware проверяет работу rate limiter по IP
func TestRateLimiter_Middleware(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: 5,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", okHandler)

	// Первые 5 запросов в пределах burst
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
}

// TestRateLimiter_IdentityKey проверяет лимит по анонимному идентификатору
func TestRateLimiter_IdentityKey(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Scope:             "identity",
		RequestsPerSecond: 2,
		BurstSize:         2,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	router := gin.New()
	router.Use(middleware.Identity(true), rl.MiddlewareWithKey(middleware.IdentityRateKey))
	router.POST("/test", okHandler)

	send := func(identity string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/test", nil)
		req.Header.Set(models.IdentityHeader, identity)
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("anon-1"))
	assert.Equal(t, http.StatusOK, send("anon-1"))
	assert.Equal(t, http.StatusTooManyRequests, send("anon-1"))

	// Другой идентификатор с того же IP не ограничен
	assert.Equal(t, http.StatusOK, send("anon-2"))
	assert.Equal(t, 2, rl.Len())
}

func TestIdentity_Required(t *testing.T) {
	router := gin.New()
	router.Use(middleware.Identity(true))
	router.POST("/test", func(c *gin.Context) {
		key, _ := middleware.IdentityFromContext(c)
		c.JSON(http.StatusOK, gin.H{"identity": key})
	})

	tests := []struct {
		name           string
		header         string
		expectedStatus int
		expectedBody   string
	}{
		{name: "без заголовка", header: "", expectedStatus: http.StatusBadRequest, expectedBody: "missing_identity"},
		{name: "только пробелы", header: "   ", expectedStatus: http.StatusBadRequest, expectedBody: "missing_identity"},
		{name: "валидный идентификатор", header: " anon-42 ", expectedStatus: http.StatusOK, expectedBody: `"identity":"anon-42"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/test", nil)
			if tt.header != "" {
				req.Header.Set(models.IdentityHeader, tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
		})
	}
}

func TestIdentity_Optional(t *testing.T) {
	router := gin.New()
	router.Use(middleware.Identity(false))
	router.POST("/test", func(c *gin.Context) {
		_, ok := middleware.IdentityFromContext(c)
		c.JSON(http.StatusOK, gin.H{"has_identity": ok})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/test", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"has_identity":false`)
}

// TestAPIKey_Middleware проверяет аутентификацию по API ключу
func TestAPIKey_Middleware(t *testing.T) {
	ak := middleware.NewAPIKey(map[string]string{
		"test-key-1": "ops",
		"test-key-2": "dashboard",
	})

	router := gin.New()
	router.Use(ak.Middleware())
	router.GET("/test", func(c *gin.Context) {
		name, _ := middleware.APIKeyName(c)
		c.JSON(http.StatusOK, gin.H{"key": name})
	})

	tests := []struct {
		name           string
		setup          func(r *http.Request)
		expectedStatus int
	}{
		{name: "без ключа", setup: func(r *http.Request) {}, expectedStatus: http.StatusUnauthorized},
		{name: "невалидный ключ", setup: func(r *http.Request) { r.Header.Set("X-API-Key", "nope") }, expectedStatus: http.StatusUnauthorized},
		{name: "ключ в заголовке", setup: func(r *http.Request) { r.Header.Set("X-API-Key", "test-key-1") }, expectedStatus: http.StatusOK},
		{name: "Bearer токен", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer test-key-2") }, expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/test", nil)
			tt.setup(req)
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestAPIKey_DisabledWithoutKeys(t *testing.T) {
	ak := middleware.NewAPIKey(nil)
	assert.False(t, ak.Enabled())

	router := gin.New()
	router.Use(ak.Middleware())
	router.GET("/test", okHandler)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(middleware.CORS([]string{"chrome-extension://abc"}))
	router.POST("/test", okHandler)

	t.Run("preflight разрешённого origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("OPTIONS", "/test", nil)
		req.Header.Set("Origin", "chrome-extension://abc")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "chrome-extension://abc", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), models.IdentityHeader)
	})

	t.Run("чужой origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/test", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	router := gin.New()
	router.Use(middleware.RequestLogger(zap.NewNop()))
	router.GET("/test", okHandler)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	router.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "req-1")
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
}
