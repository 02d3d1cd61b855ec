package server

import (
	"errors"
	"net/http"

	"jobportal/internal/util"
	"jobportal/services/portal/internal/app"
)

// Stable error codes sent to clients.
const (
	codeInvalidInput       = "INVALID_INPUT"
	codeUnauthorized       = "UNAUTHORIZED"
	codeForbidden          = "FORBIDDEN"
	codeNotFound           = "NOT_FOUND"
	codeConflict           = "CONFLICT"
	codeInvalidStatus      = "INVALID_STATUS"
	codeRoleRequired       = "ROLE_REQUIRED"
	codeInvalidCredentials = "INVALID_CREDENTIALS"
	codeFileTooLarge       = "FILE_TOO_LARGE"
	codeRateLimited        = "RATE_LIMITED"
	codeUnavailable        = "UNAVAILABLE"
	codeInternal           = "INTERNAL"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

var errorKinds = []struct {
	kind   error
	status int
	code   string
}{
	{app.ErrInvalidCredentials, http.StatusUnauthorized, codeInvalidCredentials},
	{app.ErrInvalidInput, http.StatusBadRequest, codeInvalidInput},
	{app.ErrInvalidStatus, http.StatusBadRequest, codeInvalidStatus},
	{app.ErrRoleRequired, http.StatusBadRequest, codeRoleRequired},
	{app.ErrUnauthorized, http.StatusUnauthorized, codeUnauthorized},
	{app.ErrForbidden, http.StatusForbidden, codeForbidden},
	{app.ErrNotFound, http.StatusNotFound, codeNotFound},
	{app.ErrConflict, http.StatusConflict, codeConflict},
	{app.ErrFileTooLarge, http.StatusRequestEntityTooLarge, codeFileTooLarge},
	{app.ErrUnavailable, http.StatusServiceUnavailable, codeUnavailable},
}

// writeAppError maps an app error to its status and code. Anything
// unclassified is logged and reported as a generic internal error.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			writeError(w, k.status, k.code, err.Error())
			return
		}
	}
	util.LoggerFromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: w.Header().Get("X-Request-Id"),
	})
}
