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

type ingredientUpdateRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Quantity    string `json:"quantity" validate:"max=40"`
	Measurement string `json:"measurement" validate:"omitempty,measurement"`
}

// recipeIngredientsResource serves the ingredient collection of one recipe.
// GET returns the rows, PUT replaces the whole collection in one transaction.
func recipeIngredientsResource(w http.ResponseWriter, r *http.Request, recipeID, userID uint) {
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
		var ingredients []models.Ingredient
		if err := database.WithContext(ctx).Where("recipe_id = ?", recipeID).Find(&ingredients).Error; err != nil {
			applog.Error(ctx, "failed to load ingredients", "error", err, "recipeID", recipeID)
			writeJSONError(w, http.StatusInternalServerError, "unable to load ingredients")
			return
		}
		writeJSON(w, http.StatusOK, projectIngredients(ingredients))
	case http.MethodPut:
		if !requireRegistered(w, r) {
			return
		}
		if recipe.AuthorID != userID {
			writeJSONError(w, http.StatusForbidden, "only the author can edit this recipe")
			return
		}

		var payload []ingredientUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request payload")
			return
		}

		errs := fieldErrors{}
		for i := range payload {
			collectValidationErrors(errs, fmt.Sprintf("ingredients-%d-", i), validate.Struct(payload[i]))
		}
		if !errs.empty() {
			writeFieldErrors(w, errs)
			return
		}

		rows := make([]ingredientFormRow, 0, len(payload))
		for _, item := range payload {
			rows = append(rows, ingredientFormRow{
				Name:        item.Name,
				Quantity:    item.Quantity,
				Measurement: item.Measurement,
			})
		}

		err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return replaceIngredients(tx, recipeID, rows)
		})
		if err != nil {
			applog.Error(ctx, "failed to replace ingredients", "error", err, "recipeID", recipeID)
			writeJSONError(w, http.StatusInternalServerError, "database error")
			return
		}

		cache.InvalidateRecipe(ctx, cacheStore, recipeID)

		var ingredients []models.Ingredient
		if err := database.WithContext(ctx).Where("recipe_id = ?", recipeID).Find(&ingredients).Error; err != nil {
			applog.Error(ctx, "failed to reload ingredients", "error", err, "recipeID", recipeID)
			writeJSONError(w, http.StatusInternalServerError, "unable to load ingredients")
			return
		}
		writeJSON(w, http.StatusOK, projectIngredients(ingredients))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func projectIngredients(ingredients []models.Ingredient) []ingredientResponse {
	responses := make([]ingredientResponse, 0, len(ingredients))
	for _, ingredient := range ingredients {
		responses = append(responses, ingredientResponse{
			ID:          ingredient.ID,
			Name:        ingredient.Name,
			Quantity:    ingredient.Quantity,
			Measurement: ingredient.Measurement,
		})
	}
	return responses
}
