package models

import (
	"gorm.io/gorm"
)

// Measurements enumerates the unit strings an ingredient may carry. Quantity
// stays free text on purpose ("a pinch", "1/2") so no numeric parsing happens
// at the model layer.
var Measurements = []string{
	"cup",
	"gram",
	"tbs",
	"tsp",
	"milliliter",
	"liter",
	"pound",
	"bag",
	"piece(s)",
	"slice(s)",
}

type Ingredient struct {
	gorm.Model
	RecipeID    uint   `gorm:"not null;index" json:"recipe_id"`
	Name        string `gorm:"not null" json:"name"`
	Quantity    string `json:"quantity"`
	Measurement string `json:"measurement"`
}

// ValidMeasurement reports whether the value is empty or one of Measurements.
func ValidMeasurement(value string) bool {
	if value == "" {
		return true
	}
	for _, m := range Measurements {
		if m == value {
			return true
		}
	}
	return false
}
