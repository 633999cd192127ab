package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/allocator"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/domain"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/lock"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/repository"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/service/deploy"
	"github.com/Simply-U-Promotions/project-catalyst-sub000/internal/subdomain"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, deploy.ErrInvalidRequest), errors.Is(err, subdomain.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrLocked), errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, deploy.ErrNoContainer):
		return http.StatusConflict
	case errors.Is(err, allocator.ErrNamespaceExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	if status == http.StatusNotFound {
		writeError(w, status, "deployment not found")
		return
	}
	writeError(w, status, err.Error())
}
