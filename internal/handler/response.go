package handler

import (
	"time"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// nowMillis метка времени ответа в миллисекундах, как ждёт расширение
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
