package mock

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	applog "savoro/internal/log"
	"savoro/models"
)

// CategoryNames is the preset lookup data loaded after migration. Seeding is
// idempotent so rerunning against an existing database will not duplicate rows.
var CategoryNames = []string{
	"Breakfast",
	"Lunch",
	"Dinner",
	"Snack",
	"Dessert",
}

// TagNames seeds the tag lookup table.
var TagNames = []string{
	"Quick",
	"Healthy",
	"Vegan",
	"Low-carb",
	"Sweet",
	"Savory",
}

// New returns an in-memory sqlite database seeded with representative kitchen data.
func New(ctx context.Context) (*gorm.DB, error) {
	applog.Debug(ctx, "initialising mock database")

	db, err := gorm.Open(sqlite.Open("file:savoro-mock?mode=memory&cache=shared"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		PrepareStmt:                              true,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Tag{},
		&models.Recipe{},
		&models.Ingredient{},
		&models.Step{},
		&models.RecipeImage{},
		&models.RecipeSubRecipe{},
	); err != nil {
		return nil, err
	}

	if err := seed(ctx, db); err != nil {
		return nil, err
	}

	applog.Debug(ctx, "mock database ready")
	return db, nil
}

// SeedLookups loads the preset categories and tags into the given database.
func SeedLookups(ctx context.Context, db *gorm.DB) error {
	for _, name := range CategoryNames {
		if err := db.WithContext(ctx).Where(models.Category{Name: name}).FirstOrCreate(&models.Category{Name: name}).Error; err != nil {
			return err
		}
	}
	for _, name := range TagNames {
		if err := db.WithContext(ctx).Where(models.Tag{Name: name}).FirstOrCreate(&models.Tag{Name: name}).Error; err != nil {
			return err
		}
	}
	return nil
}

func seed(ctx context.Context, db *gorm.DB) error {
	applog.Debug(ctx, "seeding mock database")

	password, err := bcrypt.GenerateFromPassword([]byte("kitchen"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	chef := &models.User{
		Name:         "Marta Kowalska",
		Email:        "marta@savoro.app",
		PasswordHash: string(password),
	}
	if err := db.WithContext(ctx).Create(chef).Error; err != nil {
		return err
	}

	guest := &models.User{
		Name:         "Guest",
		Email:        "guest@savoro.app",
		PasswordHash: string(password),
		Guest:        true,
	}
	if err := db.WithContext(ctx).Create(guest).Error; err != nil {
		return err
	}

	if err := SeedLookups(ctx, db); err != nil {
		return err
	}

	var dinner models.Category
	if err := db.WithContext(ctx).Where("name = ?", "Dinner").First(&dinner).Error; err != nil {
		return err
	}
	var quick models.Tag
	if err := db.WithContext(ctx).Where("name = ?", "Quick").First(&quick).Error; err != nil {
		return err
	}

	sauce := models.Recipe{
		Title:       "Basic Tomato Sauce",
		Description: "Slow simmered base sauce reused across the weekly menu.",
		AuthorID:    chef.ID,
		IsSubRecipe: true,
		Ingredients: []models.Ingredient{
			{Name: "Tomato", Quantity: "6", Measurement: "piece(s)"},
			{Name: "Olive oil", Quantity: "2", Measurement: "tbs"},
		},
		Steps: []models.Step{
			{Order: 1, Description: "Blanch and peel the tomatoes."},
			{Order: 2, Description: "Simmer with olive oil for 40 minutes."},
		},
	}
	if err := db.WithContext(ctx).Create(&sauce).Error; err != nil {
		return err
	}

	pasta := models.Recipe{
		Title:       "Weeknight Pasta",
		Description: "Fast dinner built on the house tomato sauce.",
		AuthorID:    chef.ID,
		Ingredients: []models.Ingredient{
			{Name: "Spaghetti", Quantity: "500", Measurement: "gram"},
			{Name: "Parmesan", Quantity: "50", Measurement: "gram"},
		},
		Steps: []models.Step{
			{Order: 1, Description: "Cook the spaghetti al dente."},
			{Order: 2, Description: "Toss with warmed tomato sauce and parmesan."},
		},
		Categories: []models.Category{dinner},
		Tags:       []models.Tag{quick},
	}
	if err := db.WithContext(ctx).Create(&pasta).Error; err != nil {
		return err
	}

	link := models.RecipeSubRecipe{RecipeID: pasta.ID, SubRecipeID: sauce.ID}
	if err := db.WithContext(ctx).Create(&link).Error; err != nil {
		return err
	}

	applog.Debug(ctx, "mock database seeded")
	return nil
}
