package model

import "time"

// Lab is a bookable room. FolderPath is where its single document lives.
type Lab struct {
	ID         int64     `gorm:"primaryKey"`
	Name       string    `gorm:"uniqueIndex;size:128;not null"`
	CreatedBy  string    `gorm:"size:64;not null"`
	FolderPath string    `gorm:"size:512;not null"`
	CreatedAt  time.Time `gorm:"not null"`
}
