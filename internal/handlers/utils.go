package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/trailtours/apiserver/types"
)

type contextKey string

const contextUserKey contextKey = "user"

// userFromContext returns the authenticated user attached by Protect.
func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

// ErrorResponse is the failure envelope: status "fail" for client errors and
// "error" for server faults, plus a safe message.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	kind := "fail"
	if status >= http.StatusInternalServerError {
		kind = "error"
	}
	writeJSON(w, status, ErrorResponse{Status: kind, Message: message})
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errInvalidPage
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxLimit {
			return 0, 0, 0, errInvalidLimit
		}
	}
	return page, limit, (page - 1) * limit, nil
}

// Healthz reports process liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
