package handlers

import (
	"errors"
	"net/http"
	"strings"

	"gorm.io/gorm"

	applog "savoro/internal/log"
)

// Signup processes new account registrations.
func Signup(w http.ResponseWriter, r *http.Request) {
	applog.Debug(r.Context(), "handling signup request", "method", r.Method)

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		if ActiveSession(r) {
			applog.Debug(r.Context(), "active session detected during signup, redirecting to recipes")
			redirectToRecipes(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": ""})
	case http.MethodPost:
		if sessionManager == nil || database == nil {
			applog.Debug(r.Context(), "registration dependencies unavailable", "hasSession", sessionManager != nil, "hasDatabase", database != nil)
			http.Error(w, "registration not available", http.StatusServiceUnavailable)
			return
		}
		if err := r.ParseForm(); err != nil {
			applog.Debug(r.Context(), "failed to parse signup form", "error", err)
			http.Error(w, "invalid form submission", http.StatusBadRequest)
			return
		}

		name := strings.TrimSpace(r.PostFormValue("name"))
		email := strings.TrimSpace(r.PostFormValue("email"))
		password := r.PostFormValue("password")
		confirm := r.PostFormValue("confirm_password")

		if email == "" || !strings.Contains(email, "@") {
			applog.Debug(r.Context(), "invalid signup email", "email", email)
			writeJSONError(w, http.StatusBadRequest, "Please provide a valid email address.")
			return
		}
		if len(password) < 8 {
			applog.Debug(r.Context(), "password too short for signup", "length", len(password))
			writeJSONError(w, http.StatusBadRequest, "Password must be at least 8 characters long.")
			return
		}
		if password != confirm {
			applog.Debug(r.Context(), "signup password mismatch")
			writeJSONError(w, http.StatusBadRequest, "Passwords do not match.")
			return
		}

		if _, err := findUserByEmail(r, email); err == nil {
			applog.Debug(r.Context(), "signup attempted with existing email", "email", strings.ToLower(email))
			writeJSONError(w, http.StatusConflict, "An account with that email already exists.")
			return
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			applog.Error(r.Context(), "failed to check existing user", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "We couldn't create your account right now. Please try again.")
			return
		}

		user, err := createUser(r, email, name, password)
		if err != nil {
			applog.Error(r.Context(), "failed to create user", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "We couldn't create your account right now. Please try again.")
			return
		}

		applog.Debug(r.Context(), "user created via signup", "userID", user.ID, "email", user.Email)

		if err := establishSession(r, user); err != nil {
			applog.Error(r.Context(), "failed to establish session after signup", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "We couldn't sign you in after creating your account. Please try again.")
			return
		}

		redirectToRecipes(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
