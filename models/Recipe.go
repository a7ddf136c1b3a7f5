package models

import (
	"gorm.io/gorm"
)

type Recipe struct {
	gorm.Model
	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Note        string `gorm:"type:text" json:"note"`
	AuthorID    uint   `gorm:"not null" json:"author_id"`
	Author      *User  `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	IsSubRecipe bool   `gorm:"not null;default:false" json:"is_sub_recipe"`

	Ingredients []Ingredient  `gorm:"foreignKey:RecipeID" json:"ingredients"`
	Steps       []Step        `gorm:"foreignKey:RecipeID" json:"steps"`
	Images      []RecipeImage `gorm:"foreignKey:RecipeID" json:"images"`
	Categories  []Category    `gorm:"many2many:recipe_categories" json:"categories"`
	Tags        []Tag         `gorm:"many2many:recipe_tags" json:"tags"`

	// Sub-recipes are plain recipes flagged IsSubRecipe, linked through the
	// RecipeSubRecipe edge table. The edge rows are managed explicitly so the
	// reconciliation logic can validate them before anything is written.
	SubRecipes []Recipe `gorm:"many2many:recipe_sub_recipes;joinForeignKey:RecipeID;joinReferences:SubRecipeID" json:"sub_recipes"`
}
