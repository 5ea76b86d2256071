package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rwfshr/markup/internal/client"
	"github.com/rwfshr/markup/internal/db"
	"github.com/rwfshr/markup/internal/middleware"
	"github.com/rwfshr/markup/internal/services"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error  string                     `json:"error"`
	Code   string                     `json:"code,omitempty"`
	Issues []services.ValidationIssue `json:"issues,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorBody{Error: message, Code: code})
}

// statusFor maps an error from the core, the draft store or the upstream to
// an HTTP status and body.
func statusFor(err error) (int, errorBody) {
	var (
		verr *services.ValidationError
		ierr *services.InvariantError
		aerr *client.APIError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Code: "validation", Issues: verr.Issues}
	case errors.As(err, &ierr):
		return http.StatusInternalServerError, errorBody{Error: ierr.Error(), Code: "invariant"}
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: err.Error(), Code: string(services.ErrorNotFound)}
	case errors.Is(err, db.ErrVersionConflict):
		return http.StatusConflict, errorBody{Error: err.Error(), Code: string(services.ErrorConflict)}
	case errors.As(err, &aerr):
		if aerr.Status >= 400 && aerr.Status < 500 {
			return aerr.Status, errorBody{Error: aerr.Message, Code: "upstream"}
		}
		return http.StatusBadGateway, errorBody{Error: aerr.Error(), Code: string(services.ErrorBadGateway)}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorBody{Error: "upstream timed out", Code: string(services.ErrorBadGateway)}
	}
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusInternalServerError
		switch se.Code {
		case services.ErrorInvalid:
			status = http.StatusBadRequest
		case services.ErrorNotFound:
			status = http.StatusNotFound
		}
		return status, errorBody{Error: se.Message, Code: string(se.Code)}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return http.StatusBadGateway, errorBody{Error: "upstream unreachable", Code: string(services.ErrorBadGateway)}
	}
	return http.StatusInternalServerError, errorBody{Error: "internal error"}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, body := statusFor(err)
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request failed",
		slog.String("op", op),
		slog.Int("status", status),
		slog.String("request_id", chimw.GetReqID(r.Context())),
		slog.String("error", err.Error()),
	)
	respondJSON(w, status, body)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return services.NewInvalidError("request body is empty")
		}
		return services.NewInvalidError(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

func pathInt(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, services.NewInvalidError(fmt.Sprintf("%s %q is not an integer", name, raw))
	}
	return n, nil
}

func pathIndex(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.NewInvalidError(fmt.Sprintf("%s %q is not an integer", name, raw))
	}
	return n, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, services.NewInvalidError(fmt.Sprintf("%s %q must be a positive integer", name, raw))
	}
	return n, nil
}

// ifMatch reads the expected draft version. ok is false when the header is
// absent.
func ifMatch(r *http.Request) (version int64, ok bool, err error) {
	raw := strings.Trim(strings.TrimSpace(r.Header.Get("If-Match")), `"`)
	if raw == "" || raw == "*" {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		return 0, false, services.NewInvalidError(fmt.Sprintf("If-Match %q is not a draft version", raw))
	}
	return v, true, nil
}

func etagMatches(r *http.Request, etag string) bool {
	for _, candidate := range strings.Split(r.Header.Get("If-None-Match"), ",") {
		if strings.Trim(strings.TrimSpace(candidate), `"`) == etag {
			return true
		}
	}
	return false
}

func setETag(w http.ResponseWriter, etag string) {
	if etag != "" {
		w.Header().Set("ETag", `"`+etag+`"`)
	}
}

func credentials(r *http.Request) client.Credentials {
	c, _ := middleware.CredentialFromContext(r.Context())
	return client.Credentials{Token: c.Token}
}
