package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GalleryImageStatus string

const (
	GalleryImageStatusPending    GalleryImageStatus = "pending"
	GalleryImageStatusProcessing GalleryImageStatus = "processing"
	GalleryImageStatusCompleted  GalleryImageStatus = "completed"
	GalleryImageStatusSkipped    GalleryImageStatus = "skipped"
	GalleryImageStatusFailed     GalleryImageStatus = "failed"
)

// GalleryImage is one ingested photo. Skipped means zero faces were found,
// which is not an error; failed always carries an error message.
type GalleryImage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GalleryID uuid.UUID `gorm:"type:uuid;not null;index" json:"gallery_id"`
	Gallery   *Gallery  `gorm:"constraint:OnDelete:CASCADE;foreignKey:GalleryID;references:ID" json:"gallery,omitempty"`

	StorageKey    string `gorm:"column:storage_key;not null" json:"storage_key"`
	StorageBucket string `gorm:"column:storage_bucket;not null" json:"storage_bucket"`
	ImageURL      string `gorm:"column:image_url" json:"image_url"`
	ThumbnailURL  string `gorm:"column:thumbnail_url" json:"thumbnail_url"`
	Filename      string `gorm:"column:filename;not null" json:"filename"`
	FileSize      int64  `gorm:"column:file_size" json:"file_size"`
	ContentType   string `gorm:"column:content_type" json:"content_type"`

	Status       GalleryImageStatus `gorm:"column:status;not null;default:'pending'" json:"status"`
	FaceCount    int                `gorm:"column:face_count;not null;default:0" json:"face_count"`
	ErrorMessage *string            `gorm:"column:error_message" json:"error_message,omitempty"`
	ProcessedAt  *time.Time         `gorm:"column:processed_at" json:"processed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (GalleryImage) TableName() string { return "gallery_image" }

func (gi *GalleryImage) BeforeCreate(tx *gorm.DB) error {
	if gi.ID == uuid.Nil {
		gi.ID = uuid.New()
	}
	return nil
}
