package models

import "gorm.io/gorm"

// User represents an application account that can authenticate with the
// platform. Guest accounts may browse but never mutate recipe data.
type User struct {
	gorm.Model
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Name         string
	Guest        bool `gorm:"not null;default:false"`
}
