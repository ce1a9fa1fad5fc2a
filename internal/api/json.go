package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	jsoniter "github.com/json-iterator/go"

	"github.com/starford/lendr/internal/apperr"
	"github.com/starford/lendr/internal/libraryapi"
	"github.com/starford/lendr/internal/loan"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds request bodies. Every body the gateway accepts is a
// small JSON object.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// readJSON decodes the request body into v. An empty body leaves v as is.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type errResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Fields any    `json:"fields,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps err to a status code. Rule rejections are 422 and carry
// their kind; failures of the remote API are reported as 502.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		rej    *loan.Rejection
		verrs  validation.Errors
		apiErr *libraryapi.APIError
	)
	switch {
	case errors.As(err, &rej):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{Error: rej.Message, Kind: string(rej.Kind)})
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid request", Fields: verrs})
	case errors.Is(err, apperr.ErrInFlight):
		writeJSON(w, http.StatusConflict, errorBody("request already in progress"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(remoteMessage(err, "not found")))
	case errors.Is(err, apperr.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
	case errors.Is(err, apperr.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody("forbidden"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(remoteMessage(err, "conflict")))
	case errors.As(err, &apiErr):
		slog.Error("library api failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", apiErr.StatusCode),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("library service unavailable"))
	default:
		slog.Error("request failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// remoteMessage prefers the message sent by the library API.
func remoteMessage(err error, fallback string) string {
	var apiErr *libraryapi.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
