package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"

	"savoro/internal/cache"
	applog "savoro/internal/log"
	"savoro/models"
)

type stepUpdateRequest struct {
	Order       uint   `json:"order" validate:"gt=0"`
	Description string `json:"description" validate:"required"`
}

// recipeStepsResource serves the step collection of one recipe. GET returns
// the rows in display order, PUT replaces the whole collection.
func recipeStepsResource(w http.ResponseWriter, r *http.Request, recipeID, userID uint) {
	ctx := r.Context()

	recipe := &models.Recipe{}
	if err := database.WithContext(ctx).First(recipe, recipeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.NotFound(w, r)
			return
		}
		applog.Error(ctx, "failed to load recipe", "error", err, "recipeID", recipeID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load recipe")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeStepRows(w, r, recipeID)
	case http.MethodPut:
		if !requireRegistered(w, r) {
			return
		}
		if recipe.AuthorID != userID {
			writeJSONError(w, http.StatusForbidden, "only the author can edit this recipe")
			return
		}

		var payload []stepUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request payload")
			return
		}

		errs := fieldErrors{}
		for i := range payload {
			collectValidationErrors(errs, fmt.Sprintf("steps-%d-", i), validate.Struct(payload[i]))
		}
		if !errs.empty() {
			writeFieldErrors(w, errs)
			return
		}

		rows := make([]stepFormRow, 0, len(payload))
		for _, item := range payload {
			rows = append(rows, stepFormRow{Order: item.Order, Description: item.Description})
		}

		err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return replaceSteps(tx, recipeID, rows)
		})
		if err != nil {
			applog.Error(ctx, "failed to replace steps", "error", err, "recipeID", recipeID)
			writeJSONError(w, http.StatusInternalServerError, "database error")
			return
		}

		cache.InvalidateRecipe(ctx, cacheStore, recipeID)
		writeStepRows(w, r, recipeID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeStepRows(w http.ResponseWriter, r *http.Request, recipeID uint) {
	var steps []models.Step
	err := database.WithContext(r.Context()).
		Where("recipe_id = ?", recipeID).
		Order("step_order ASC").
		Find(&steps).Error
	if err != nil {
		applog.Error(r.Context(), "failed to load steps", "error", err, "recipeID", recipeID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load steps")
		return
	}

	responses := make([]stepResponse, 0, len(steps))
	for _, step := range steps {
		responses = append(responses, stepResponse{ID: step.ID, Order: step.Order, Description: step.Description})
	}
	writeJSON(w, http.StatusOK, responses)
}
