package handlers

import (
	"net/http"
	"strings"

	applog "savoro/internal/log"
)

// Login reports session state and processes sign-in submissions.
func Login(w http.ResponseWriter, r *http.Request) {
	applog.Debug(r.Context(), "handling login request", "method", r.Method)

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		if ActiveSession(r) {
			applog.Debug(r.Context(), "active session detected, redirecting to recipes")
			redirectToRecipes(w, r)
			return
		}
		message := ""
		if sessionManager != nil {
			message = sessionManager.PopString(r.Context(), sessionLoginMessageKey)
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": message})
	case http.MethodPost:
		if sessionManager == nil || database == nil {
			applog.Debug(r.Context(), "authentication dependencies unavailable", "hasSession", sessionManager != nil, "hasDatabase", database != nil)
			http.Error(w, "authentication not available", http.StatusServiceUnavailable)
			return
		}
		if err := r.ParseForm(); err != nil {
			applog.Debug(r.Context(), "failed to parse login form", "error", err)
			http.Error(w, "invalid form submission", http.StatusBadRequest)
			return
		}
		email := strings.TrimSpace(r.PostFormValue("email"))
		password := r.PostFormValue("password")

		if email == "" || password == "" {
			applog.Debug(r.Context(), "login form missing credentials", "emailPresent", email != "", "passwordPresent", password != "")
			writeJSONError(w, http.StatusBadRequest, "Email and password are required.")
			return
		}

		if !authenticate(w, r, email, password) {
			message := "Invalid email or password. Please try again."
			if sessionManager != nil {
				if popped := sessionManager.PopString(r.Context(), sessionLoginMessageKey); popped != "" {
					message = popped
				}
			}
			writeJSONError(w, http.StatusUnauthorized, message)
			return
		}

		applog.Debug(r.Context(), "login succeeded", "email", strings.ToLower(email))
		redirectToRecipes(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// GuestLogin signs the visitor into the shared read-only guest account.
func GuestLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if sessionManager == nil || database == nil {
		http.Error(w, "authentication not available", http.StatusServiceUnavailable)
		return
	}

	user, err := guestUser(r)
	if err != nil {
		applog.Error(r.Context(), "failed to load guest account", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Guest access is unavailable right now.")
		return
	}

	if err := establishSession(r, user); err != nil {
		applog.Error(r.Context(), "failed to establish guest session", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Guest access is unavailable right now.")
		return
	}

	applog.Debug(r.Context(), "guest session established")
	redirectToRecipes(w, r)
}
