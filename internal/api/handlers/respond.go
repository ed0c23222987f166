package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pvarki/takbackend/internal/api/middleware"
	"github.com/pvarki/takbackend/internal/api/types"
	appErr "github.com/pvarki/takbackend/pkg/errors"
)

const (
	maxBodyBytes = 1 << 20
	// retryAfter is what instruction endpoints tell clients while the
	// instance is still coming up.
	retryAfter = "120"
)

var statusByCode = map[appErr.Code]int{
	appErr.CodeInvalid:            http.StatusBadRequest,
	appErr.CodeNotFound:           http.StatusNotFound,
	appErr.CodeConflict:           http.StatusConflict,
	appErr.CodeUnauthorized:       http.StatusUnauthorized,
	appErr.CodeForbidden:          http.StatusForbidden,
	appErr.CodeUnavailable:        http.StatusServiceUnavailable,
	appErr.CodeMaxClientsExceeded: http.StatusConflict,
	appErr.CodeAlreadyCompleted:   http.StatusConflict,
	appErr.CodeUpstreamFailed:     http.StatusBadGateway,
}

// statusFor maps an error's application code onto an HTTP status.
func statusFor(err error) int {
	if s, ok := statusByCode[appErr.CodeOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, types.APIResponse{Success: false, Error: types.FromAppError(err)})
}

func writeErrorStr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.APIResponse{Success: false, Error: &types.APIError{Code: string(appErr.CodeInvalid), Message: msg}})
}

// writeAppError picks the status from the error itself.
func writeAppError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfter)
	}
	if status == http.StatusInternalServerError {
		// Do not leak store or transport details.
		apiErr := &types.APIError{Code: string(appErr.CodeInternal), Message: "internal error"}
		var ae *appErr.AppError
		if errors.As(err, &ae) {
			apiErr.Meta = ae.Meta
		}
		writeJSON(w, status, types.APIResponse{Success: false, Error: apiErr})
		return
	}
	writeError(w, status, err)
}

func ok(r *http.Request, data any) types.APIResponse {
	return types.APIResponse{Success: true, Data: data, Meta: &types.Meta{RequestID: middleware.GetRequestID(r.Context())}}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func idParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}
