package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"savoro/models"
)

func TestReplaceIngredientsEndpoint(t *testing.T) {
	db, cleanupDB := withTestDatabase(t)
	t.Cleanup(cleanupDB)
	sm, cleanupSession := withTestSessionManager(t)
	t.Cleanup(cleanupSession)

	author := createTestUser(t, db, "author@example.com")
	recipe := createTestRecipe(t, db, author.ID, "Weeknight Pasta", false)
	if err := db.Create(&models.Ingredient{RecipeID: recipe.ID, Name: "old noodles"}).Error; err != nil {
		t.Fatalf("failed to create ingredient: %v", err)
	}

	payload := `[{"name":"fresh noodles","quantity":"200","measurement":"gram"},{"name":"basil"}]`
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/recipes/%d/ingredients", recipe.ID), strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req = authenticateRequest(t, sm, req, author.ID)
	w := httptest.NewRecorder()
	RecipeResource(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var responses []ingredientResponse
	if err := json.Unmarshal(w.Body.Bytes(), &responses); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("expected 2 ingredients, got %d", len(responses))
	}

	var stored []models.Ingredient
	if err := db.Where("recipe_id = ?", recipe.ID).Find(&stored).Error; err != nil {
		t.Fatalf("failed to load ingredients: %v", err)
	}
	if len(stored) != 2 || stored[0].Name != "fresh noodles" {
		t.Fatalf("expected replaced rows, got %+v", stored)
	}
}

func TestReplaceIngredientsValidatesRows(t *testing.T) {
	db, cleanupDB := withTestDatabase(t)
	t.Cleanup(cleanupDB)
	sm, cleanupSession := withTestSessionManager(t)
	t.Cleanup(cleanupSession)

	author := createTestUser(t, db, "author@example.com")
	recipe := createTestRecipe(t, db, author.ID, "Weeknight Pasta", false)

	payload := `[{"name":"","measurement":"fistful"}]`
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/recipes/%d/ingredients", recipe.ID), strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req = authenticateRequest(t, sm, req, author.ID)
	w := httptest.NewRecorder()
	RecipeResource(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, "ingredients-0-name") || !strings.Contains(body, "ingredients-0-measurement") {
		t.Fatalf("expected both row errors, got %s", body)
	}

	var count int64
	db.Model(&models.Ingredient{}).Where("recipe_id = ?", recipe.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected no rows written, found %d", count)
	}
}

func TestReplaceIngredientsDeniedForNonAuthor(t *testing.T) {
	db, cleanupDB := withTestDatabase(t)
	t.Cleanup(cleanupDB)
	sm, cleanupSession := withTestSessionManager(t)
	t.Cleanup(cleanupSession)

	author := createTestUser(t, db, "author@example.com")
	intruder := createTestUser(t, db, "intruder@example.com")
	recipe := createTestRecipe(t, db, author.ID, "Weeknight Pasta", false)

	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/recipes/%d/ingredients", recipe.ID), strings.NewReader(`[]`))
	req.Header.Set("Content-Type", "application/json")
	req = authenticateRequest(t, sm, req, intruder.ID)
	w := httptest.NewRecorder()
	RecipeResource(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", w.Code)
	}
}
