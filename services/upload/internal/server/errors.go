package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"papercast/internal/util"
	"papercast/pkg/domain"
)

const kindRateLimited domain.Kind = "RateLimited"

type errorResponse struct {
	Error     string      `json:"error"`
	Kind      domain.Kind `json:"kind"`
	Code      string      `json:"code"`
	RequestID string      `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind domain.Kind, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Kind:      kind,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

// writeAppError renders an app error. Causes are logged, never sent.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "kind", kind, "err", err)
	}
	writeError(w, status, kind, codeForKind(kind), domain.MessageOf(err))
}

func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidTransition, domain.KindConflict:
		return http.StatusConflict
	case domain.KindStorage:
		return http.StatusBadGateway
	case kindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func codeForKind(kind domain.Kind) string {
	switch kind {
	case domain.KindValidation:
		return "UPLOAD_INVALID_REQUEST"
	case domain.KindUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case domain.KindForbidden:
		return "UPLOAD_FORBIDDEN"
	case domain.KindNotFound:
		return "UPLOAD_NOT_FOUND"
	case domain.KindInvalidTransition:
		return "UPLOAD_INVALID_TRANSITION"
	case domain.KindConflict:
		return "UPLOAD_VERSION_CONFLICT"
	case domain.KindStorage:
		return "UPLOAD_STORAGE_UNAVAILABLE"
	case domain.KindDatabase:
		return "SYSTEM_DATABASE_ERROR"
	case kindRateLimited:
		return "UPLOAD_RATE_LIMITED"
	default:
		return "SYSTEM_INTERNAL_ERROR"
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, domain.KindValidation, codeForKind(domain.KindValidation), msg)
}
