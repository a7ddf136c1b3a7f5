package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"savoro/internal/cache"
	applog "savoro/internal/log"
	"savoro/models"
)

type recipeSummary struct {
	ID           uint      `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	AuthorID     uint      `json:"author_id"`
	IsSubRecipe  bool      `json:"is_sub_recipe"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	CategoryIDs  []uint    `json:"category_ids"`
	TagIDs       []uint    `json:"tag_ids"`
	CreatedAt    time.Time `json:"created_at"`
}

type ingredientResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Quantity    string `json:"quantity"`
	Measurement string `json:"measurement"`
}

type stepResponse struct {
	ID          uint   `json:"id"`
	Order       uint   `json:"order"`
	Description string `json:"description"`
}

type imageResponse struct {
	ID       uint   `json:"id"`
	URL      string `json:"url"`
	ThumbURL string `json:"thumb_url"`
}

type namedRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type subRecipeRef struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

type recipeDetail struct {
	ID          uint                 `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Note        string               `json:"note"`
	AuthorID    uint                 `json:"author_id"`
	IsSubRecipe bool                 `json:"is_sub_recipe"`
	Ingredients []ingredientResponse `json:"ingredients"`
	Steps       []stepResponse       `json:"steps"`
	Images      []imageResponse      `json:"images"`
	Categories  []namedRef           `json:"categories"`
	Tags        []namedRef           `json:"tags"`
	SubRecipes  []subRecipeRef       `json:"sub_recipes"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	CanEdit     bool                 `json:"can_edit"`
}

// RecipeResource handles REST-style interactions for recipes and their
// nested collections.
func RecipeResource(w http.ResponseWriter, r *http.Request) {
	if database == nil {
		applog.Debug(r.Context(), "recipe request without database")
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	userID, ok := currentUserID(r)
	if !ok {
		applog.Debug(r.Context(), "recipe request missing authenticated user")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/recipes")
	path = strings.Trim(path, "/")

	switch path {
	case "":
		switch r.Method {
		case http.MethodGet:
			listRecipes(w, r, userID)
		case http.MethodPost:
			if !requireRegistered(w, r) {
				return
			}
			createRecipe(w, r, userID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	case "meta/categories-tags":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		listCategoriesAndTags(w, r)
		return
	case "sub-recipe-candidates":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		listSubRecipeCandidates(w, r, userID)
		return
	}

	segments := strings.Split(path, "/")
	idValue, err := strconv.ParseUint(segments[0], 10, 64)
	if err != nil {
		applog.Debug(r.Context(), "invalid recipe identifier", "identifier", segments[0], "error", err)
		http.NotFound(w, r)
		return
	}
	recipeID := uint(idValue)

	if len(segments) > 1 {
		switch segments[1] {
		case "ingredients":
			recipeIngredientsResource(w, r, recipeID, userID)
		case "steps":
			recipeStepsResource(w, r, recipeID, userID)
		default:
			http.NotFound(w, r)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		showRecipe(w, r, recipeID, userID)
	case http.MethodPost, http.MethodPut:
		if !requireRegistered(w, r) {
			return
		}
		updateRecipe(w, r, recipeID, userID)
	case http.MethodDelete:
		if !requireRegistered(w, r) {
			return
		}
		deleteRecipe(w, r, recipeID, userID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func listRecipes(w http.ResponseWriter, r *http.Request, userID uint) {
	query := r.URL.Query()
	search := strings.TrimSpace(query.Get("search"))
	searchType := query.Get("search_type")
	if searchType == "" {
		searchType = "title"
	}

	categoryIDs, err := parseIDParams(query["categories"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid category filter")
		return
	}
	tagIDs, err := parseIDParams(query["tags"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid tag filter")
		return
	}

	var summaries []recipeSummary
	if search != "" {
		summaries, err = searchRecipes(r.Context(), search, searchType)
		if err != nil {
			if errors.Is(err, errUnknownSearchType) {
				writeJSONError(w, http.StatusBadRequest, "unknown search type")
				return
			}
			applog.Error(r.Context(), "recipe search failed", "error", err, "searchType", searchType)
			writeJSONError(w, http.StatusInternalServerError, "unable to search recipes")
			return
		}
	} else {
		summaries, err = loadRecipeSummaries(r.Context())
		if err != nil {
			applog.Error(r.Context(), "failed to load recipes", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "unable to load recipes")
			return
		}
	}

	summaries = filterSummaries(summaries, categoryIDs, tagIDs)
	writeJSON(w, http.StatusOK, summaries)
}

var errUnknownSearchType = errors.New("unknown search type")

// searchRecipes always queries storage directly; only the unfiltered listing
// is served from cache. Title search matches the whole phrase, ingredient
// search treats the input as a comma-separated fragment list and requires
// every fragment to match some ingredient of the recipe. Fragments may
// contain spaces ("chicken thigh, garlic").
func searchRecipes(ctx context.Context, search, searchType string) ([]recipeSummary, error) {
	scope := database.WithContext(ctx).Model(&models.Recipe{}).
		Preload("Categories").Preload("Tags").Preload("Images")

	switch searchType {
	case "title":
		scope = scope.Where("lower(title) LIKE ?", "%"+strings.ToLower(search)+"%")
	case "ingredient":
		for _, fragment := range strings.Split(strings.ToLower(search), ",") {
			fragment = strings.TrimSpace(fragment)
			if fragment == "" {
				continue
			}
			scope = scope.Where(
				"EXISTS (SELECT 1 FROM ingredients WHERE ingredients.recipe_id = recipes.id AND ingredients.deleted_at IS NULL AND lower(ingredients.name) LIKE ?)",
				"%"+fragment+"%",
			)
		}
	default:
		return nil, errUnknownSearchType
	}

	var recipes []models.Recipe
	if err := scope.Order("recipes.created_at DESC").Find(&recipes).Error; err != nil {
		return nil, err
	}
	return projectSummaries(recipes), nil
}

// loadRecipeSummaries serves the unfiltered listing, consulting the cache
// first and repopulating it on a miss.
func loadRecipeSummaries(ctx context.Context) ([]recipeSummary, error) {
	if cacheStore != nil {
		if raw, ok := cacheStore.Get(ctx, cache.RecipeListKey()); ok {
			var cached []recipeSummary
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
			applog.Warn(ctx, "discarding undecodable recipe list cache entry")
		}
	}

	var recipes []models.Recipe
	err := database.WithContext(ctx).
		Preload("Categories").Preload("Tags").Preload("Images").
		Order("recipes.created_at DESC").
		Find(&recipes).Error
	if err != nil {
		return nil, err
	}

	summaries := projectSummaries(recipes)
	if cacheStore != nil {
		if raw, err := json.Marshal(summaries); err == nil {
			if err := cacheStore.Set(ctx, cache.RecipeListKey(), raw, cache.ListTTL); err != nil {
				applog.Warn(ctx, "failed to cache recipe list", "error", err)
			}
		}
	}
	return summaries, nil
}

func projectSummaries(recipes []models.Recipe) []recipeSummary {
	summaries := make([]recipeSummary, 0, len(recipes))
	for i := range recipes {
		summaries = append(summaries, projectSummary(recipes[i]))
	}
	return summaries
}

func projectSummary(recipe models.Recipe) recipeSummary {
	summary := recipeSummary{
		ID:          recipe.ID,
		Title:       recipe.Title,
		Description: recipe.Description,
		AuthorID:    recipe.AuthorID,
		IsSubRecipe: recipe.IsSubRecipe,
		CategoryIDs: make([]uint, 0, len(recipe.Categories)),
		TagIDs:      make([]uint, 0, len(recipe.Tags)),
		CreatedAt:   recipe.CreatedAt,
	}
	for _, category := range recipe.Categories {
		summary.CategoryIDs = append(summary.CategoryIDs, category.ID)
	}
	for _, tag := range recipe.Tags {
		summary.TagIDs = append(summary.TagIDs, tag.ID)
	}
	if len(recipe.Images) > 0 && objectStorage != nil {
		summary.ThumbnailURL = objectStorage.URL(recipe.Images[0].ThumbPath)
	}
	return summary
}

// filterSummaries applies facet filters in memory. Within one facet the
// requested values are alternatives, across facets they all have to hold.
func filterSummaries(summaries []recipeSummary, categoryIDs, tagIDs []uint) []recipeSummary {
	if len(categoryIDs) == 0 && len(tagIDs) == 0 {
		return summaries
	}
	filtered := make([]recipeSummary, 0, len(summaries))
	for _, summary := range summaries {
		if len(categoryIDs) > 0 && !intersects(summary.CategoryIDs, categoryIDs) {
			continue
		}
		if len(tagIDs) > 0 && !intersects(summary.TagIDs, tagIDs) {
			continue
		}
		filtered = append(filtered, summary)
	}
	return filtered
}

func intersects(have, want []uint) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func parseIDParams(values []string) ([]uint, error) {
	ids := make([]uint, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		parsed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint(parsed))
	}
	return ids, nil
}

func showRecipe(w http.ResponseWriter, r *http.Request, recipeID, userID uint) {
	detail, err := loadRecipeDetail(r.Context(), recipeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.NotFound(w, r)
			return
		}
		applog.Error(r.Context(), "failed to load recipe", "error", err, "recipeID", recipeID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load recipe")
		return
	}

	detail.CanEdit = detail.AuthorID == userID && !currentUserIsGuest(r)
	writeJSON(w, http.StatusOK, detail)
}

// loadRecipeDetail returns the cached detail projection, rebuilding it from
// storage on a miss. CanEdit is viewer-specific and therefore never cached;
// callers set it after the fact.
func loadRecipeDetail(ctx context.Context, recipeID uint) (*recipeDetail, error) {
	if cacheStore != nil {
		if raw, ok := cacheStore.Get(ctx, cache.RecipeDetailKey(recipeID)); ok {
			detail := &recipeDetail{}
			if err := json.Unmarshal(raw, detail); err == nil {
				return detail, nil
			}
			applog.Warn(ctx, "discarding undecodable recipe detail cache entry", "recipeID", recipeID)
		}
	}

	recipe, err := fetchRecipe(ctx, recipeID)
	if err != nil {
		return nil, err
	}

	detail := projectDetail(*recipe)
	if cacheStore != nil {
		if raw, err := json.Marshal(detail); err == nil {
			if err := cacheStore.Set(ctx, cache.RecipeDetailKey(recipeID), raw, cache.DetailTTL); err != nil {
				applog.Warn(ctx, "failed to cache recipe detail", "error", err, "recipeID", recipeID)
			}
		}
	}
	return detail, nil
}

func fetchRecipe(ctx context.Context, recipeID uint) (*models.Recipe, error) {
	recipe := &models.Recipe{}
	err := database.WithContext(ctx).
		Preload("Ingredients").
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_order ASC") }).
		Preload("Images").
		Preload("Categories").
		Preload("Tags").
		Preload("SubRecipes").
		First(recipe, recipeID).Error
	if err != nil {
		return nil, err
	}
	return recipe, nil
}

func projectDetail(recipe models.Recipe) *recipeDetail {
	detail := &recipeDetail{
		ID:          recipe.ID,
		Title:       recipe.Title,
		Description: recipe.Description,
		Note:        recipe.Note,
		AuthorID:    recipe.AuthorID,
		IsSubRecipe: recipe.IsSubRecipe,
		Ingredients: make([]ingredientResponse, 0, len(recipe.Ingredients)),
		Steps:       make([]stepResponse, 0, len(recipe.Steps)),
		Images:      make([]imageResponse, 0, len(recipe.Images)),
		Categories:  make([]namedRef, 0, len(recipe.Categories)),
		Tags:        make([]namedRef, 0, len(recipe.Tags)),
		SubRecipes:  make([]subRecipeRef, 0, len(recipe.SubRecipes)),
		CreatedAt:   recipe.CreatedAt,
		UpdatedAt:   recipe.UpdatedAt,
	}
	for _, ingredient := range recipe.Ingredients {
		detail.Ingredients = append(detail.Ingredients, ingredientResponse{
			ID:          ingredient.ID,
			Name:        ingredient.Name,
			Quantity:    ingredient.Quantity,
			Measurement: ingredient.Measurement,
		})
	}
	for _, step := range recipe.Steps {
		detail.Steps = append(detail.Steps, stepResponse{ID: step.ID, Order: step.Order, Description: step.Description})
	}
	for _, image := range recipe.Images {
		resp := imageResponse{ID: image.ID}
		if objectStorage != nil {
			resp.URL = objectStorage.URL(image.Path)
			resp.ThumbURL = objectStorage.URL(image.ThumbPath)
		}
		detail.Images = append(detail.Images, resp)
	}
	for _, category := range recipe.Categories {
		detail.Categories = append(detail.Categories, namedRef{ID: category.ID, Name: category.Name})
	}
	for _, tag := range recipe.Tags {
		detail.Tags = append(detail.Tags, namedRef{ID: tag.ID, Name: tag.Name})
	}
	for _, sub := range recipe.SubRecipes {
		detail.SubRecipes = append(detail.SubRecipes, subRecipeRef{ID: sub.ID, Title: sub.Title})
	}
	return detail
}

func deleteRecipe(w http.ResponseWriter, r *http.Request, recipeID, userID uint) {
	ctx := r.Context()

	recipe := &models.Recipe{}
	if err := database.WithContext(ctx).Preload("Images").First(recipe, recipeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.NotFound(w, r)
			return
		}
		applog.Error(ctx, "failed to load recipe for deletion", "error", err, "recipeID", recipeID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load recipe")
		return
	}

	if recipe.AuthorID != userID {
		applog.Debug(ctx, "recipe delete denied", "recipeID", recipeID, "userID", userID)
		writeJSONError(w, http.StatusForbidden, "only the author can delete this recipe")
		return
	}

	parentIDs, err := parentRecipeIDs(ctx, database, recipeID)
	if err != nil {
		applog.Error(ctx, "failed to resolve parent recipes", "error", err, "recipeID", recipeID)
		writeJSONError(w, http.StatusInternalServerError, "unable to delete recipe")
		return
	}

	// Image objects are removed before the rows. Failures here are only
	// logged; the row deletion proceeds regardless.
	if objectStorage != nil {
		for _, image := range recipe.Images {
			if err := objectStorage.Delete(ctx, image.Path); err != nil {
				applog.Warn(ctx, "failed to delete image object", "error", err, "path", image.Path)
			}
			if err := objectStorage.Delete(ctx, image.ThumbPath); err != nil {
				applog.Warn(ctx, "failed to delete thumbnail object", "error", err, "path", image.ThumbPath)
			}
		}
	}

	err = database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("recipe_id = ?", recipeID).Delete(&models.Ingredient{}).Error; err != nil {
			return err
		}
		if err := tx.Where("recipe_id = ?", recipeID).Delete(&models.Step{}).Error; err != nil {
			return err
		}
		if err := tx.Where("recipe_id = ?", recipeID).Delete(&models.RecipeImage{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("recipe_id = ? OR sub_recipe_id = ?", recipeID, recipeID).Delete(&models.RecipeSubRecipe{}).Error; err != nil {
			return err
		}
		if err := tx.Model(recipe).Association("Categories").Clear(); err != nil {
			return err
		}
		if err := tx.Model(recipe).Association("Tags").Clear(); err != nil {
			return err
		}
		return tx.Delete(recipe).Error
	})
	if err != nil {
		applog.Error(ctx, "failed to delete recipe", "error", err, "recipeID", recipeID)
		writeJSONError(w, http.StatusInternalServerError, "unable to delete recipe")
		return
	}

	cache.InvalidateRecipe(ctx, cacheStore, recipeID)
	for _, parentID := range parentIDs {
		cache.InvalidateRecipe(ctx, cacheStore, parentID)
	}

	w.WriteHeader(http.StatusNoContent)
}

// parentRecipeIDs lists recipes that embed recipeID as a sub-recipe. Their
// cached detail projections mention it, so writes against it must also
// invalidate them.
func parentRecipeIDs(ctx context.Context, db *gorm.DB, recipeID uint) ([]uint, error) {
	var ids []uint
	err := db.WithContext(ctx).
		Model(&models.RecipeSubRecipe{}).
		Where("sub_recipe_id = ?", recipeID).
		Pluck("recipe_id", &ids).Error
	return ids, err
}

func listCategoriesAndTags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var categories []models.Category
	if err := database.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		applog.Error(ctx, "failed to load categories", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load categories")
		return
	}
	var tags []models.Tag
	if err := database.WithContext(ctx).Order("name ASC").Find(&tags).Error; err != nil {
		applog.Error(ctx, "failed to load tags", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load tags")
		return
	}

	payload := map[string][]namedRef{
		"categories": make([]namedRef, 0, len(categories)),
		"tags":       make([]namedRef, 0, len(tags)),
	}
	for _, category := range categories {
		payload["categories"] = append(payload["categories"], namedRef{ID: category.ID, Name: category.Name})
	}
	for _, tag := range tags {
		payload["tags"] = append(payload["tags"], namedRef{ID: tag.ID, Name: tag.Name})
	}
	writeJSON(w, http.StatusOK, payload)
}
