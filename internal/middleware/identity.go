package middleware

import (
	"net/http"

	"github.com/SergeiKhy/brainplus-backend/internal/models"
	"github.com/gin-gonic/gin"
)

const ctxIdentityKey = "identity_key"

// Identity извлекает анонимный идентификатор из заголовка X-Anonymous-ID.
// При required=true запрос без идентификатора получает 400 missing_identity.
func Identity(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := models.NormalizeIdentity(c.GetHeader(models.IdentityHeader))
		if err != nil {
			if required {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":   "missing_identity",
					"message": "Anonymous ID required",
				})
				return
			}
			c.Next()
			return
		}

		c.Set(ctxIdentityKey, key)
		c.Next()
	}
}

// IdentityFromContext возвращает идентификатор, положенный middleware Identity
func IdentityFromContext(c *gin.Context) (string, bool) {
	key := c.GetString(ctxIdentityKey)
	return key, key != ""
}

// IdentityRateKey ключ для rate limiter: идентификатор, если он есть
func IdentityRateKey(c *gin.Context) string {
	if key, ok := IdentityFromContext(c); ok {
		return "id:" + models.HashIdentity(key)
	}
	return ""
}
