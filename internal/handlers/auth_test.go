package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alexedwards/scs/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"savoro/internal/cache"
	"savoro/internal/config"
	"savoro/internal/storage"
	"savoro/models"
)

func withTestSessionManager(t *testing.T) (*scs.SessionManager, func()) {
	t.Helper()
	original := sessionManager
	sm := scs.New()
	sessionManager = sm
	return sm, func() {
		sessionManager = original
	}
}

func withTestDatabase(t *testing.T) (*gorm.DB, func()) {
	t.Helper()
	original := database
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Tag{},
		&models.Recipe{},
		&models.Ingredient{},
		&models.Step{},
		&models.RecipeImage{},
		&models.RecipeSubRecipe{},
	)
	if err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	database = db
	return db, func() {
		database = original
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

func withTestCache(t *testing.T) (cache.Store, func()) {
	t.Helper()
	original := cacheStore
	store, err := cache.Open(config.CacheConfig{InMemory: true})
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	cacheStore = store
	return store, func() {
		cacheStore = original
		store.Close()
	}
}

func withTestStorage(t *testing.T) (*storage.Local, func()) {
	t.Helper()
	original := objectStorage
	local, err := storage.NewLocal(config.StorageConfig{Root: t.TempDir(), BaseURL: "/media"})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	objectStorage = local
	return local, func() {
		objectStorage = original
	}
}

func authenticateRequest(t *testing.T, sm *scs.SessionManager, req *http.Request, userID uint) *http.Request {
	t.Helper()
	ctx, err := sm.Load(req.Context(), "")
	if err != nil {
		t.Fatalf("failed to load session context: %v", err)
	}
	req = req.WithContext(ctx)
	sm.Put(req.Context(), sessionUserIDKey, int(userID))
	sm.Put(req.Context(), sessionAuthenticatedKey, true)
	return req
}

func authenticateGuestRequest(t *testing.T, sm *scs.SessionManager, req *http.Request, userID uint) *http.Request {
	t.Helper()
	req = authenticateRequest(t, sm, req, userID)
	sm.Put(req.Context(), sessionUserGuestKey, true)
	return req
}

func createTestUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Email: email, PasswordHash: "hash"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func TestActiveSession(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if ActiveSession(req) {
		t.Fatal("expected inactive session when manager is nil")
	}

	sm, cleanup := withTestSessionManager(t)
	t.Cleanup(cleanup)

	ctx, err := sm.Load(req.Context(), "")
	if err != nil {
		t.Fatalf("failed to load session context: %v", err)
	}
	req = req.WithContext(ctx)
	sm.Put(req.Context(), sessionAuthenticatedKey, true)
	sm.Put(req.Context(), sessionUserIDKey, 42)

	if !ActiveSession(req) {
		t.Fatal("expected active session when flags are set")
	}
}

func TestCurrentUserID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := currentUserID(req); ok {
		t.Fatal("expected currentUserID to fail without session manager")
	}

	sm, cleanup := withTestSessionManager(t)
	t.Cleanup(cleanup)

	ctx, err := sm.Load(req.Context(), "")
	if err != nil {
		t.Fatalf("failed to load session context: %v", err)
	}
	req = req.WithContext(ctx)

	if _, ok := currentUserID(req); ok {
		t.Fatal("expected false when user id not set")
	}

	sm.Put(req.Context(), sessionUserIDKey, 7)
	id, ok := currentUserID(req)
	if !ok || id != 7 {
		t.Fatalf("expected user id 7, got %d (ok=%t)", id, ok)
	}
}

func TestEstablishSessionRecordsGuestFlag(t *testing.T) {
	sm, cleanup := withTestSessionManager(t)
	t.Cleanup(cleanup)

	req := httptest.NewRequest(http.MethodGet, "/recipes", nil)
	ctx, err := sm.Load(req.Context(), "")
	if err != nil {
		t.Fatalf("failed to load session context: %v", err)
	}
	req = req.WithContext(ctx)

	user := &models.User{Email: "guest@savoro.app", Guest: true}
	user.ID = 3
	if err := establishSession(req, user); err != nil {
		t.Fatalf("establishSession returned error: %v", err)
	}

	if got := sm.GetInt(req.Context(), sessionUserIDKey); got != 3 {
		t.Fatalf("expected user id 3 in session, got %d", got)
	}
	if !currentUserIsGuest(req) {
		t.Fatal("expected guest flag to be set")
	}
}

func TestRequireAuthenticationRedirectsAnonymous(t *testing.T) {
	sm, cleanup := withTestSessionManager(t)
	t.Cleanup(cleanup)

	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/recipes", nil)
	ctx, err := sm.Load(req.Context(), "")
	if err != nil {
		t.Fatalf("failed to load session context: %v", err)
	}
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()
	RequireAuthentication(next).ServeHTTP(w, req)

	if called {
		t.Fatal("expected handler not to be invoked")
	}
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Fatalf("expected redirect to /login, got %q", loc)
	}
}

func TestRequireRegisteredBouncesGuestsToReferer(t *testing.T) {
	sm, cleanup := withTestSessionManager(t)
	t.Cleanup(cleanup)

	req := httptest.NewRequest(http.MethodPost, "/recipes", nil)
	req.Header.Set("Referer", "/recipes/9")
	req = authenticateGuestRequest(t, sm, req, 5)
	w := httptest.NewRecorder()

	if requireRegistered(w, req) {
		t.Fatal("expected guest to be rejected")
	}
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/recipes/9" {
		t.Fatalf("expected redirect back to referer, got %q", loc)
	}
	if msg := sm.GetString(req.Context(), sessionWarningKey); !strings.Contains(msg, "Guests cannot") {
		t.Fatalf("expected warning flash, got %q", msg)
	}
}

func TestRequireRegisteredWithoutRefererRedirectsToLogin(t *testing.T) {
	sm, cleanup := withTestSessionManager(t)
	t.Cleanup(cleanup)

	req := httptest.NewRequest(http.MethodPost, "/recipes", nil)
	req = authenticateGuestRequest(t, sm, req, 5)
	w := httptest.NewRecorder()

	if requireRegistered(w, req) {
		t.Fatal("expected guest to be rejected")
	}
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Fatalf("expected fallback redirect to login, got %q", loc)
	}
}

func TestRequireRegisteredAllowsMembers(t *testing.T) {
	sm, cleanup := withTestSessionManager(t)
	t.Cleanup(cleanup)

	req := httptest.NewRequest(http.MethodPost, "/recipes", nil)
	req = authenticateRequest(t, sm, req, 5)
	w := httptest.NewRecorder()

	if !requireRegistered(w, req) {
		t.Fatal("expected registered user to pass")
	}
}

func TestGuestLoginEstablishesGuestSession(t *testing.T) {
	db, cleanupDB := withTestDatabase(t)
	t.Cleanup(cleanupDB)
	sm, cleanupSession := withTestSessionManager(t)
	t.Cleanup(cleanupSession)

	form := url.Values{}
	req := httptest.NewRequest(http.MethodPost, "/guest-login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	ctx, err := sm.Load(req.Context(), "")
	if err != nil {
		t.Fatalf("failed to load session context: %v", err)
	}
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()
	GuestLogin(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect after guest login, got %d", w.Code)
	}
	if !currentUserIsGuest(req) {
		t.Fatal("expected guest flag on session")
	}

	var guest models.User
	if err := db.Where("email = ?", guestEmail).First(&guest).Error; err != nil {
		t.Fatalf("expected guest account to exist: %v", err)
	}
	if !guest.Guest {
		t.Fatal("expected account to be flagged as guest")
	}

	// A second guest login reuses the shared account.
	req2 := httptest.NewRequest(http.MethodPost, "/guest-login", nil)
	ctx2, err := sm.Load(req2.Context(), "")
	if err != nil {
		t.Fatalf("failed to load session context: %v", err)
	}
	req2 = req2.WithContext(ctx2)
	GuestLogin(httptest.NewRecorder(), req2)

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", guestEmail).Count(&count).Error; err != nil {
		t.Fatalf("failed to count guest accounts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single guest account, found %d", count)
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	db, cleanupDB := withTestDatabase(t)
	t.Cleanup(cleanupDB)
	sm, cleanupSession := withTestSessionManager(t)
	t.Cleanup(cleanupSession)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if err := db.Create(&models.User{Email: "cook@example.com", PasswordHash: string(hash)}).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	ctx, err := sm.Load(req.Context(), "")
	if err != nil {
		t.Fatalf("failed to load session context: %v", err)
	}
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	if authenticate(w, req, "cook@example.com", "wrong") {
		t.Fatal("expected authentication to fail")
	}
	if authenticate(w, req, "cook@example.com", "correct-horse") == false {
		t.Fatal("expected authentication to succeed")
	}
}
