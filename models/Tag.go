package models

import (
	"gorm.io/gorm"
)

// Tag is a flat lookup entity seeded out of band, many-to-many with Recipe.
type Tag struct {
	gorm.Model
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}
