package cache

import (
	"context"
	"fmt"
	"time"

	applog "savoro/internal/log"
)

// TTLs reflect the relative volatility of each cached unit: the unfiltered
// list changes whenever any author writes, detail entries only when their own
// recipe does.
const (
	DetailTTL = time.Hour
	ListTTL   = 15 * time.Minute
)

const recipeListKey = "recipes:list"

// RecipeListKey returns the key holding the unfiltered recipe collection.
func RecipeListKey() string {
	return recipeListKey
}

// RecipeDetailKey returns the key holding one recipe's detail projection.
func RecipeDetailKey(id uint) string {
	return fmt.Sprintf("recipes:detail:%d", id)
}

// InvalidateRecipe is the single invalidation path shared by every write
// handler. It drops the recipe's detail entry and the list entry. Callers run
// it strictly after their transaction commits; failures are logged and
// swallowed because caching is an optimisation, not a correctness dependency.
func InvalidateRecipe(ctx context.Context, store Store, recipeID uint) {
	if store == nil {
		return
	}
	if recipeID != 0 {
		if err := store.Delete(ctx, RecipeDetailKey(recipeID)); err != nil {
			applog.Warn(ctx, "failed to invalidate recipe detail cache", "error", err, "recipeID", recipeID)
		}
	}
	if err := store.Delete(ctx, recipeListKey); err != nil {
		applog.Warn(ctx, "failed to invalidate recipe list cache", "error", err)
	}
}
