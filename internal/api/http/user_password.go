package http

import (
	"encoding/json"
	"errors"
	"net/http"

	auth "github.com/mind-engage/mindengage-results/internal/auth/middleware"
)

type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// POST /me/password
func ChangePasswordHandler(users *auth.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := auth.SubjectFromContext(r.Context())
		if sub == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req changePasswordReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, "new_password: at least 8 characters", http.StatusBadRequest)
			return
		}

		err := users.ChangePassword(r.Context(), sub, req.OldPassword, req.NewPassword)
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			http.Error(w, "user not found", http.StatusNotFound)
		case errors.Is(err, auth.ErrInvalidCredentials):
			http.Error(w, "incorrect old password", http.StatusForbidden)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}
