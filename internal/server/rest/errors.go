package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/fooddelivery/internal/common"
)

// statusFor maps service errors to HTTP status codes. Anything unknown is
// an internal error; its details stay in the server log.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, common.ErrValidation.Error()
	case errors.Is(err, common.ErrAuthenticationFailed):
		return http.StatusUnauthorized, common.ErrAuthenticationFailed.Error()
	case errors.Is(err, common.ErrInvalidCredential):
		return http.StatusUnauthorized, common.ErrInvalidCredential.Error()
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, common.ErrForbidden.Error()
	case errors.Is(err, common.ErrAlreadyExists):
		return http.StatusConflict, common.ErrAlreadyExists.Error()
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests, common.ErrRateLimited.Error()
	default:
		return http.StatusInternalServerError, common.ErrorInternal.Error()
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, code, msg)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	return nil
}
