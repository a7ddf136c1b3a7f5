package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"savoro/internal/cache"
	"savoro/internal/images"
	applog "savoro/internal/log"
	"savoro/models"
)

const (
	maxPictureUploadSize = 10 << 20 // 10 MiB
	maxFormsetRows       = 100
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("measurement", func(fl validator.FieldLevel) bool {
		return models.ValidMeasurement(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

type recipeFormFields struct {
	Title       string `validate:"required,max=120"`
	Description string `validate:"max=2000"`
	Note        string `validate:"max=2000"`
	IsSubRecipe bool
}

type ingredientFormRow struct {
	Name        string `validate:"required,max=120"`
	Quantity    string `validate:"max=40"`
	Measurement string `validate:"omitempty,measurement"`
	Delete      bool
}

type stepFormRow struct {
	Order       uint
	Description string `validate:"required"`
	Delete      bool
}

// recipeSubmission is everything one composite form post carries: the parent
// fields, both child formsets, the lookup selections and an optional picture.
type recipeSubmission struct {
	Form         recipeFormFields
	Ingredients  []ingredientFormRow
	Steps        []stepFormRow
	CategoryIDs  []uint
	TagIDs       []uint
	SubRecipeIDs []uint
	Picture      *images.Processed
}

func createRecipe(w http.ResponseWriter, r *http.Request, userID uint) {
	submission, errs := parseRecipeSubmission(r)
	errs.merge(validateSubmission(r.Context(), submission, 0))
	if !errs.empty() {
		writeFieldErrors(w, errs)
		return
	}

	recipe := &models.Recipe{AuthorID: userID}
	if err := persistRecipeSubmission(r.Context(), recipe, submission); err != nil {
		applog.Error(r.Context(), "failed to save recipe", "error", err, "userID", userID)
		writeJSONError(w, http.StatusInternalServerError, "database error")
		return
	}

	cache.InvalidateRecipe(r.Context(), cacheStore, recipe.ID)
	http.Redirect(w, r, fmt.Sprintf("/recipes/%d", recipe.ID), http.StatusSeeOther)
}

func updateRecipe(w http.ResponseWriter, r *http.Request, recipeID, userID uint) {
	ctx := r.Context()

	recipe := &models.Recipe{}
	if err := database.WithContext(ctx).First(recipe, recipeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.NotFound(w, r)
			return
		}
		applog.Error(ctx, "failed to load recipe for update", "error", err, "recipeID", recipeID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load recipe")
		return
	}

	if recipe.AuthorID != userID {
		applog.Debug(ctx, "recipe update denied", "recipeID", recipeID, "userID", userID)
		writeJSONError(w, http.StatusForbidden, "only the author can edit this recipe")
		return
	}

	submission, errs := parseRecipeSubmission(r)
	errs.merge(validateSubmission(ctx, submission, recipeID))
	if !errs.empty() {
		writeFieldErrors(w, errs)
		return
	}

	parentIDs, err := parentRecipeIDs(ctx, database, recipeID)
	if err != nil {
		applog.Error(ctx, "failed to resolve parent recipes", "error", err, "recipeID", recipeID)
		writeJSONError(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := persistRecipeSubmission(ctx, recipe, submission); err != nil {
		applog.Error(ctx, "failed to save recipe", "error", err, "recipeID", recipeID)
		writeJSONError(w, http.StatusInternalServerError, "database error")
		return
	}

	cache.InvalidateRecipe(ctx, cacheStore, recipe.ID)
	for _, parentID := range parentIDs {
		cache.InvalidateRecipe(ctx, cacheStore, parentID)
	}
	http.Redirect(w, r, fmt.Sprintf("/recipes/%d", recipe.ID), http.StatusSeeOther)
}

// parseRecipeSubmission decodes the multipart composite form. Parse problems
// are reported as field errors so one response can carry all of them.
func parseRecipeSubmission(r *http.Request) (*recipeSubmission, fieldErrors) {
	errs := fieldErrors{}

	if err := r.ParseMultipartForm(maxPictureUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		applog.Debug(r.Context(), "failed to parse recipe form", "error", err)
		errs.add("form", "The submission could not be parsed.")
		return &recipeSubmission{}, errs
	}
	if r.MultipartForm == nil {
		if err := r.ParseForm(); err != nil {
			errs.add("form", "The submission could not be parsed.")
			return &recipeSubmission{}, errs
		}
	}

	submission := &recipeSubmission{
		Form: recipeFormFields{
			Title:       strings.TrimSpace(r.PostFormValue("title")),
			Description: strings.TrimSpace(r.PostFormValue("description")),
			Note:        strings.TrimSpace(r.PostFormValue("note")),
			IsSubRecipe: parseCheckbox(r.PostFormValue("is_sub_recipe")),
		},
	}

	submission.CategoryIDs = parseIDField(r.PostForm["categories"], "categories", errs)
	submission.TagIDs = parseIDField(r.PostForm["tags"], "tags", errs)
	submission.SubRecipeIDs = parseIDField(r.PostForm["sub_recipes"], "sub_recipes", errs)

	submission.Ingredients = parseIngredientRows(r, errs)
	submission.Steps = parseStepRows(r, errs)
	submission.Picture = parsePicture(r, submission.Form.Title, errs)

	return submission, errs
}

func parseCheckbox(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "1", "yes":
		return true
	default:
		return false
	}
}

func parseIDField(values []string, field string, errs fieldErrors) []uint {
	ids := make([]uint, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		parsed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			errs.add(field, fmt.Sprintf("%q is not a valid identifier.", value))
			continue
		}
		ids = append(ids, uint(parsed))
	}
	return ids
}

func formsetCount(r *http.Request, prefix string, errs fieldErrors) int {
	raw := strings.TrimSpace(r.PostFormValue(prefix + "-TOTAL_FORMS"))
	if raw == "" {
		return 0
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 {
		errs.add(prefix, "The form metadata is invalid.")
		return 0
	}
	if count > maxFormsetRows {
		errs.add(prefix, fmt.Sprintf("At most %d rows are accepted.", maxFormsetRows))
		return 0
	}
	return count
}

func parseIngredientRows(r *http.Request, errs fieldErrors) []ingredientFormRow {
	count := formsetCount(r, "ingredients", errs)
	rows := make([]ingredientFormRow, 0, count)
	for i := 0; i < count; i++ {
		row := ingredientFormRow{
			Name:        strings.TrimSpace(r.PostFormValue(fmt.Sprintf("ingredients-%d-name", i))),
			Quantity:    strings.TrimSpace(r.PostFormValue(fmt.Sprintf("ingredients-%d-quantity", i))),
			Measurement: strings.TrimSpace(r.PostFormValue(fmt.Sprintf("ingredients-%d-measurement", i))),
			Delete:      parseCheckbox(r.PostFormValue(fmt.Sprintf("ingredients-%d-DELETE", i))),
		}
		if row.Delete {
			continue
		}
		// Blank extra rows are how formsets pad the page; skip them silently.
		if row.Name == "" && row.Quantity == "" && row.Measurement == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func parseStepRows(r *http.Request, errs fieldErrors) []stepFormRow {
	count := formsetCount(r, "steps", errs)
	rows := make([]stepFormRow, 0, count)
	for i := 0; i < count; i++ {
		rawOrder := strings.TrimSpace(r.PostFormValue(fmt.Sprintf("steps-%d-order", i)))
		description := strings.TrimSpace(r.PostFormValue(fmt.Sprintf("steps-%d-description", i)))
		deleted := parseCheckbox(r.PostFormValue(fmt.Sprintf("steps-%d-DELETE", i)))
		if deleted {
			continue
		}
		if rawOrder == "" && description == "" {
			continue
		}

		order := uint(i + 1)
		if rawOrder != "" {
			parsed, err := strconv.ParseUint(rawOrder, 10, 64)
			if err != nil || parsed == 0 {
				errs.add(fmt.Sprintf("steps-%d-order", i), "Order must be a positive number.")
				continue
			}
			order = uint(parsed)
		}
		rows = append(rows, stepFormRow{Order: order, Description: description})
	}
	return rows
}

func parsePicture(r *http.Request, title string, errs fieldErrors) *images.Processed {
	if r.MultipartForm == nil {
		return nil
	}
	file, header, err := r.FormFile("picture")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil
		}
		errs.add("picture", "The picture upload could not be read.")
		return nil
	}
	defer file.Close()

	if header.Size > maxPictureUploadSize {
		errs.add("picture", "The picture is too large.")
		return nil
	}

	data, err := io.ReadAll(file)
	if err != nil {
		errs.add("picture", "The picture upload could not be read.")
		return nil
	}

	processed, err := images.Process(title, data)
	if err != nil {
		applog.Debug(r.Context(), "picture processing failed", "error", err, "filename", header.Filename)
		errs.add("picture", "Upload a valid image file.")
		return nil
	}
	return processed
}

// validateSubmission runs every check that does not require writing: struct
// validation of the parent and each formset row, lookup existence, and the
// sub-recipe link rules. recipeID is zero for creates.
func validateSubmission(ctx context.Context, submission *recipeSubmission, recipeID uint) fieldErrors {
	errs := fieldErrors{}

	collectValidationErrors(errs, "", validate.Struct(submission.Form))
	for i := range submission.Ingredients {
		collectValidationErrors(errs, fmt.Sprintf("ingredients-%d-", i), validate.Struct(submission.Ingredients[i]))
	}
	for i := range submission.Steps {
		collectValidationErrors(errs, fmt.Sprintf("steps-%d-", i), validate.Struct(submission.Steps[i]))
	}

	if database != nil {
		checkLookupIDs(ctx, errs, "categories", &models.Category{}, submission.CategoryIDs)
		checkLookupIDs(ctx, errs, "tags", &models.Tag{}, submission.TagIDs)
		errs.merge(validateSubRecipeLinks(ctx, recipeID, submission.SubRecipeIDs))
	}

	return errs
}

func collectValidationErrors(errs fieldErrors, prefix string, err error) {
	if err == nil {
		return
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errs.add("form", "The submission could not be validated.")
		return
	}
	for _, fieldError := range validationErrors {
		field := prefix + formFieldName(fieldError.Field())
		errs.add(field, validationMessage(fieldError))
	}
}

func formFieldName(structField string) string {
	switch structField {
	case "IsSubRecipe":
		return "is_sub_recipe"
	default:
		return strings.ToLower(structField)
	}
}

func validationMessage(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fieldError.Param())
	case "measurement":
		return "Select a valid measurement."
	case "gt":
		return "Order must be a positive number."
	default:
		return "This value is invalid."
	}
}

func checkLookupIDs(ctx context.Context, errs fieldErrors, field string, model any, ids []uint) {
	if len(ids) == 0 {
		return
	}
	var count int64
	if err := database.WithContext(ctx).Model(model).Where("id IN ?", ids).Count(&count).Error; err != nil {
		applog.Error(ctx, "failed to verify lookup selection", "error", err, "field", field)
		errs.add(field, "The selection could not be verified.")
		return
	}
	if count != int64(len(dedupeIDs(ids))) {
		errs.add(field, "Select a valid choice.")
	}
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// persistRecipeSubmission writes the whole composite submission in one
// transaction: the parent row, both child collections as full replacements,
// the picture, the lookup links and the sub-recipe edges. Any failure rolls
// everything back, including image objects written to storage.
func persistRecipeSubmission(ctx context.Context, recipe *models.Recipe, submission *recipeSubmission) error {
	var savedKeys []string

	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recipe.Title = submission.Form.Title
		recipe.Description = submission.Form.Description
		recipe.Note = submission.Form.Note
		recipe.IsSubRecipe = submission.Form.IsSubRecipe

		if err := tx.Save(recipe).Error; err != nil {
			return fmt.Errorf("save recipe: %w", err)
		}

		if err := replaceIngredients(tx, recipe.ID, submission.Ingredients); err != nil {
			return fmt.Errorf("replace ingredients: %w", err)
		}
		if err := replaceSteps(tx, recipe.ID, submission.Steps); err != nil {
			return fmt.Errorf("replace steps: %w", err)
		}

		if submission.Picture != nil {
			if objectStorage == nil {
				return errors.New("object storage not configured")
			}
			image := models.RecipeImage{
				RecipeID:  recipe.ID,
				Path:      submission.Picture.OriginalKey,
				ThumbPath: submission.Picture.ThumbKey,
			}
			if err := tx.Create(&image).Error; err != nil {
				return fmt.Errorf("save image record: %w", err)
			}
			if err := objectStorage.Save(ctx, submission.Picture.OriginalKey, submission.Picture.Original); err != nil {
				return fmt.Errorf("store image: %w", err)
			}
			savedKeys = append(savedKeys, submission.Picture.OriginalKey)
			if err := objectStorage.Save(ctx, submission.Picture.ThumbKey, submission.Picture.Thumb); err != nil {
				return fmt.Errorf("store thumbnail: %w", err)
			}
			savedKeys = append(savedKeys, submission.Picture.ThumbKey)
		}

		if err := replaceLookups(tx, recipe, submission); err != nil {
			return err
		}

		if err := reconcileSubRecipes(tx, recipe.ID, submission.SubRecipeIDs); err != nil {
			return fmt.Errorf("reconcile sub-recipes: %w", err)
		}
		return nil
	})
	if err != nil {
		// The database rolled back; remove any objects that made it to storage.
		for _, key := range savedKeys {
			if cleanupErr := objectStorage.Delete(ctx, key); cleanupErr != nil {
				applog.Warn(ctx, "failed to clean up orphaned object", "error", cleanupErr, "key", key)
			}
		}
		return err
	}
	return nil
}

func replaceIngredients(tx *gorm.DB, recipeID uint, rows []ingredientFormRow) error {
	if err := tx.Where("recipe_id = ?", recipeID).Delete(&models.Ingredient{}).Error; err != nil {
		return err
	}
	for _, row := range rows {
		ingredient := models.Ingredient{
			RecipeID:    recipeID,
			Name:        row.Name,
			Quantity:    row.Quantity,
			Measurement: row.Measurement,
		}
		if err := tx.Create(&ingredient).Error; err != nil {
			return err
		}
	}
	return nil
}

func replaceSteps(tx *gorm.DB, recipeID uint, rows []stepFormRow) error {
	if err := tx.Where("recipe_id = ?", recipeID).Delete(&models.Step{}).Error; err != nil {
		return err
	}
	for _, row := range rows {
		step := models.Step{
			RecipeID:    recipeID,
			Order:       row.Order,
			Description: row.Description,
		}
		if err := tx.Create(&step).Error; err != nil {
			return err
		}
	}
	return nil
}

func replaceLookups(tx *gorm.DB, recipe *models.Recipe, submission *recipeSubmission) error {
	var categories []models.Category
	if len(submission.CategoryIDs) > 0 {
		if err := tx.Where("id IN ?", submission.CategoryIDs).Find(&categories).Error; err != nil {
			return fmt.Errorf("load categories: %w", err)
		}
	}
	if err := tx.Model(recipe).Association("Categories").Replace(categories); err != nil {
		return fmt.Errorf("replace categories: %w", err)
	}

	var tags []models.Tag
	if len(submission.TagIDs) > 0 {
		if err := tx.Where("id IN ?", submission.TagIDs).Find(&tags).Error; err != nil {
			return fmt.Errorf("load tags: %w", err)
		}
	}
	if err := tx.Model(recipe).Association("Tags").Replace(tags); err != nil {
		return fmt.Errorf("replace tags: %w", err)
	}
	return nil
}
