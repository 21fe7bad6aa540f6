package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-results/internal/auth/middleware"
)

type updateUserRoleReq struct {
	Role string `json:"role"`
}

// POST /users/{userID}/role  userID may be the id or the username
func UpdateUserRoleHandler(users *auth.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := chi.URLParam(r, "userID")
		if target == "" {
			http.Error(w, "missing userID", http.StatusBadRequest)
			return
		}

		var req updateUserRoleReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		row, err := users.SetRole(r.Context(), target, strings.ToLower(strings.TrimSpace(req.Role)))
		switch {
		case errors.Is(err, auth.ErrUnknownRole), errors.Is(err, auth.ErrLastAdmin):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, auth.ErrUserNotFound):
			http.Error(w, "user not found", http.StatusNotFound)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			respondJSON(w, http.StatusOK, row)
		}
	}
}
