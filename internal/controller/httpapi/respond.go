package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Freeeeeet/attendance_service/internal/apperr"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON сериализует ответ и отдаёт его с нужным статусом
func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeError переводит доменную ошибку в HTTP-статус и короткое сообщение.
// Клиент видит только причину отказа своего фактора, без деталей остальных.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	switch {
	case errors.Is(err, apperr.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, apperr.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apperr.ErrClosed):
		status, code = http.StatusGone, "session_closed"
	case errors.Is(err, apperr.ErrOutOfBounds):
		status, code = http.StatusForbidden, "out_of_bounds"
	case errors.Is(err, apperr.ErrStaleToken):
		status, code = http.StatusForbidden, "stale_token"
	case errors.Is(err, apperr.ErrIdentityNotRecognized):
		status, code = http.StatusForbidden, "identity_not_recognized"
	case errors.Is(err, apperr.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperr.ErrTimeout):
		status, code = http.StatusGatewayTimeout, "timeout"
	default:
		logger.Error("Unhandled error", zap.Error(err))
	}

	writeJSON(w, logger, status, errorResponse{Error: code, Message: apperr.Message(err)})
}
