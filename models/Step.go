package models

import (
	"gorm.io/gorm"
)

// Step is a single instruction within a recipe. Order drives display sorting
// only; duplicate order values within one recipe are not rejected.
type Step struct {
	gorm.Model
	RecipeID    uint   `gorm:"not null;index" json:"recipe_id"`
	Order       uint   `gorm:"not null;column:step_order" json:"order"`
	Description string `gorm:"type:text;not null" json:"description"`
}
