package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	applog "savoro/internal/log"
)

// fieldErrors accumulates validation failures keyed by form field. Every
// problem with a submission is collected before responding so the client can
// surface all of them at once.
type fieldErrors map[string][]string

func (fe fieldErrors) add(field, message string) {
	fe[field] = append(fe[field], message)
}

func (fe fieldErrors) merge(other fieldErrors) {
	for field, messages := range other {
		fe[field] = append(fe[field], messages...)
	}
}

func (fe fieldErrors) empty() bool {
	return len(fe) == 0
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		applog.Error(context.Background(), "failed to encode json response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeFieldErrors(w http.ResponseWriter, errs fieldErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]fieldErrors{"errors": errs})
}
