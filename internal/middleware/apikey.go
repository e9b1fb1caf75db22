package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	apiKeyHeader     = "X-API-Key"
	ctxAPIKeyName    = "api_key_name"
	ctxAPIKeyChecked = "api_key_validated"
)

// APIKey проверяет административные API ключи (статистика атрибуции)
type APIKey struct {
	keys map[string]string // key -> name
}

// NewAPIKey создаёт middleware. Без ключей в конфиге middleware пропускает всё.
func NewAPIKey(keys map[string]string) *APIKey {
	return &APIKey{keys: keys}
}

// Enabled сообщает, настроены ли ключи
func (ak *APIKey) Enabled() bool {
	return len(ak.keys) > 0
}

func (ak *APIKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ak.Enabled() {
			c.Next()
			return
		}

		apiKey := c.GetHeader(apiKeyHeader)
		if apiKey == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "Требуется API ключ: заголовок X-API-Key или Authorization: Bearer",
			})
			return
		}

		name, ok := ak.lookup(apiKey)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "Невалидный API ключ",
			})
			return
		}

		c.Set(ctxAPIKeyChecked, true)
		c.Set(ctxAPIKeyName, name)
		c.Next()
	}
}

// lookup сравнивает ключ со всеми настроенными за постоянное время
func (ak *APIKey) lookup(apiKey string) (string, bool) {
	var (
		found bool
		name  string
	)
	for key, keyName := range ak.keys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			found = true
			name = keyName
		}
	}
	return name, found
}

// APIKeyName имя проверенного ключа из контекста
func APIKeyName(c *gin.Context) (string, bool) {
	if validated := c.GetBool(ctxAPIKeyChecked); !validated {
		return "", false
	}
	return c.GetString(ctxAPIKeyName), true
}
