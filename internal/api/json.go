package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/modelhub/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string      `json:"error" validate:"required"`
	Kind  apperr.Kind `json:"kind,omitempty" example:"duplicate_model"`
}

func errorBody(msg string, kind apperr.Kind) errResponse {
	return errResponse{Error: msg, Kind: kind}
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindDuplicateModel, apperr.KindDestinationConflict:
		return http.StatusConflict
	case apperr.KindNotADirectory:
		return http.StatusUnprocessableEntity
	case apperr.KindTransferFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the status of its kind. Internal errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, op string, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("kind", string(kind)), slog.String("error", err.Error()))
		if kind == apperr.KindInternal {
			writeJSON(w, status, errorBody("internal error", kind))
			return
		}
	}
	writeJSON(w, status, errorBody(err.Error(), kind))
}
