package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"gorm.io/gorm"

	applog "savoro/internal/log"
	"savoro/models"
)

// validateSubRecipeLinks enforces the composition rules before anything is
// written: every submitted id must be an existing recipe flagged as a
// sub-recipe, a recipe cannot include itself, and a link is refused when the
// inverse pair already exists. recipeID is zero for creates, which makes the
// self and inverse checks vacuous.
func validateSubRecipeLinks(ctx context.Context, recipeID uint, ids []uint) fieldErrors {
	errs := fieldErrors{}
	if len(ids) == 0 {
		return errs
	}

	for _, id := range dedupeIDs(ids) {
		if recipeID != 0 && id == recipeID {
			errs.add("sub_recipes", "A recipe cannot include itself as a sub-recipe.")
			continue
		}

		candidate := &models.Recipe{}
		if err := database.WithContext(ctx).First(candidate, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				errs.add("sub_recipes", "Select a valid sub-recipe.")
				continue
			}
			applog.Error(ctx, "failed to verify sub-recipe", "error", err, "subRecipeID", id)
			errs.add("sub_recipes", "The selection could not be verified.")
			continue
		}
		if !candidate.IsSubRecipe {
			errs.add("sub_recipes", "Select a valid sub-recipe.")
			continue
		}

		if recipeID != 0 {
			var inverse int64
			err := database.WithContext(ctx).
				Model(&models.RecipeSubRecipe{}).
				Where("recipe_id = ? AND sub_recipe_id = ?", id, recipeID).
				Count(&inverse).Error
			if err != nil {
				applog.Error(ctx, "failed to check inverse link", "error", err, "subRecipeID", id)
				errs.add("sub_recipes", "The selection could not be verified.")
				continue
			}
			if inverse > 0 {
				errs.add("sub_recipes", "This link would create a circular reference.")
			}
		}
	}
	return errs
}

// reconcileSubRecipes converges the stored edge set onto the submitted one by
// set difference: edges missing from the submission are removed, submitted
// edges not yet stored are added, everything else is left untouched. Running
// it twice with the same input is a no-op.
func reconcileSubRecipes(tx *gorm.DB, recipeID uint, submitted []uint) error {
	var current []uint
	err := tx.Model(&models.RecipeSubRecipe{}).
		Where("recipe_id = ?", recipeID).
		Pluck("sub_recipe_id", &current).Error
	if err != nil {
		return err
	}

	submittedSet := make(map[uint]struct{}, len(submitted))
	for _, id := range submitted {
		submittedSet[id] = struct{}{}
	}
	currentSet := make(map[uint]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}

	for _, id := range current {
		if _, keep := submittedSet[id]; keep {
			continue
		}
		// Edge rows are removed for real; a soft-deleted tombstone would
		// collide with the unique index if the pair is ever linked again.
		err := tx.Unscoped().
			Where("recipe_id = ? AND sub_recipe_id = ?", recipeID, id).
			Delete(&models.RecipeSubRecipe{}).Error
		if err != nil {
			return err
		}
	}

	for id := range submittedSet {
		if _, exists := currentSet[id]; exists {
			continue
		}
		link := models.RecipeSubRecipe{RecipeID: recipeID, SubRecipeID: id}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

// listSubRecipeCandidates returns the caller's own sub-recipes, optionally
// excluding one recipe so an edit form never offers the recipe to itself.
func listSubRecipeCandidates(w http.ResponseWriter, r *http.Request, userID uint) {
	ctx := r.Context()

	scope := database.WithContext(ctx).
		Model(&models.Recipe{}).
		Where("is_sub_recipe = ? AND author_id = ?", true, userID)

	if raw := strings.TrimSpace(r.URL.Query().Get("exclude")); raw != "" {
		excluded, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid exclude parameter")
			return
		}
		scope = scope.Where("id <> ?", uint(excluded))
	}

	var candidates []models.Recipe
	if err := scope.Order("title ASC").Find(&candidates).Error; err != nil {
		applog.Error(ctx, "failed to load sub-recipe candidates", "error", err, "userID", userID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load sub-recipes")
		return
	}

	refs := make([]subRecipeRef, 0, len(candidates))
	for _, candidate := range candidates {
		refs = append(refs, subRecipeRef{ID: candidate.ID, Title: candidate.Title})
	}
	writeJSON(w, http.StatusOK, refs)
}
