package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DyakonovAlex/smart-home/internal/controller"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNotFound      = "not_found"
	ErrCodeInternal      = "internal_error"
	ErrCodeUnavailable   = "unavailable"
	ErrCodeDeviceError   = "device_error"
	ErrCodeCommandFailed = "command_failed"
	ErrCodeTimeout       = "timeout"
	ErrCodeNoFreshData   = "no_fresh_data"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeUnavailable writes a 503 for a component that is not configured.
func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// controllerErrorStatus maps a controller error to an HTTP status and code.
func controllerErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, controller.ErrDevice):
		return http.StatusBadGateway, ErrCodeDeviceError
	case errors.Is(err, controller.ErrTimeout):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	case errors.Is(err, controller.ErrNoFreshData):
		return http.StatusServiceUnavailable, ErrCodeNoFreshData
	case errors.Is(err, controller.ErrConnection),
		errors.Is(err, controller.ErrNetwork),
		errors.Is(err, controller.ErrClosed):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	case errors.Is(err, controller.ErrCommand):
		return http.StatusBadGateway, ErrCodeCommandFailed
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// writeControllerError writes the response for a failed controller call.
func writeControllerError(w http.ResponseWriter, err error) {
	status, code := controllerErrorStatus(err)
	writeError(w, status, code, err.Error())
}
