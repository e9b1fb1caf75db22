package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// IdentityHeader заголовок, в котором расширение передаёт анонимный идентификатор
const IdentityHeader = "X-Anonymous-ID"

const maxIdentityLength = 256

var ErrMissingIdentity = errors.New("anonymous identity required")

// NormalizeIdentity обрезает пробелы и проверяет, что ключ не пустой.
// Ключ непрозрачен: никакой другой валидации не делаем.
func NormalizeIdentity(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if key == "" || len(key) > maxIdentityLength {
		return "", ErrMissingIdentity
	}
	return key, nil
}

// HashIdentity возвращает стабильный хэш ключа для хранения и логов.
// Сырые идентификаторы никуда не пишутся.
func HashIdentity(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}
