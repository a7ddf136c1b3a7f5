package models

import (
	"gorm.io/gorm"
)

// Category is a flat lookup entity seeded out of band and never mutated by
// the recipe write paths.
type Category struct {
	gorm.Model
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}
