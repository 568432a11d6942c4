package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UploadModel struct {
	ID                string `gorm:"primaryKey"`
	OwnerID           string `gorm:"not null;index"`
	OriginalFilename  string `gorm:"not null"`
	StorageKey        string `gorm:"not null;uniqueIndex"`
	StorageLocator    string
	SizeBytes         int64 `gorm:"not null"`
	PageCount         int
	Status            string `gorm:"not null;index:idx_upload_queue,priority:1"`
	ErrorMessage      string
	ExtractedTitle    string
	ExtractedAuthors  datatypes.JSON `gorm:"type:jsonb"`
	ExtractedAbstract string         `gorm:"type:text"`
	Priority          int            `gorm:"not null;default:5;index:idx_upload_queue,priority:2"`
	Version           int64          `gorm:"not null;default:1"`
	CreatedAt         time.Time      `gorm:"not null;index:idx_upload_queue,priority:3"`
	UpdatedAt         time.Time      `gorm:"not null"`
}

func (UploadModel) TableName() string { return "uploads" }

type OwnerModel struct {
	ID          string `gorm:"primaryKey"`
	Email       string
	DisplayName string
	UpdatedAt   time.Time `gorm:"not null"`
}

func (OwnerModel) TableName() string { return "upload_owners" }

// uploadOwnerRow is the scan target of the admin listing join.
type uploadOwnerRow struct {
	UploadModel
	OwnerEmail       string
	OwnerDisplayName string
}
