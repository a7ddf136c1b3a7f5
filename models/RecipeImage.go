package models

import (
	"gorm.io/gorm"
)

// RecipeImage records where a recipe picture and its derived thumbnail live in
// object storage. The bytes themselves are never stored in the database.
type RecipeImage struct {
	gorm.Model
	RecipeID  uint   `gorm:"not null;index" json:"recipe_id"`
	Path      string `gorm:"not null" json:"path"`
	ThumbPath string `gorm:"not null" json:"thumb_path"`
}
