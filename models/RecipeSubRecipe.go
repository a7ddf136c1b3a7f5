package models

import (
	"gorm.io/gorm"
)

// RecipeSubRecipe is the edge table of the recipe composition graph. The
// unique index guards the (parent, sub) pair; the no-self-loop and
// no-inverse-pair rules are enforced by the reconciliation layer because the
// storage engine cannot express them.
type RecipeSubRecipe struct {
	gorm.Model
	RecipeID    uint `gorm:"not null;uniqueIndex:idx_recipe_sub_recipe" json:"recipe_id"`
	SubRecipeID uint `gorm:"not null;uniqueIndex:idx_recipe_sub_recipe" json:"sub_recipe_id"`
}
