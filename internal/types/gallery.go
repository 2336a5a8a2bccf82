package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GalleryStatus string

const (
	GalleryStatusPending    GalleryStatus = "pending"
	GalleryStatusUploading  GalleryStatus = "uploading"
	GalleryStatusProcessing GalleryStatus = "processing"
	GalleryStatusClustering GalleryStatus = "clustering"
	GalleryStatusMatching   GalleryStatus = "matching"
	GalleryStatusReady      GalleryStatus = "ready"
	GalleryStatusError      GalleryStatus = "error"
)

// Gallery is one event session's photo set, processed under a single
// recognition collection. Status only moves forward through the stage
// order; any stage may jump to error.
type Gallery struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID    uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	Session      *Session  `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	CollectionID string    `gorm:"column:collection_id" json:"collection_id"`

	Status    GalleryStatus `gorm:"column:status;not null;default:'pending'" json:"status"`
	LastError *string       `gorm:"column:last_error" json:"last_error,omitempty"`

	ProcessingStartedAt   *time.Time `gorm:"column:processing_started_at" json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `gorm:"column:processing_completed_at" json:"processing_completed_at,omitempty"`

	TotalImages     int `gorm:"column:total_images;not null;default:0" json:"total_images"`
	ProcessedImages int `gorm:"column:processed_images;not null;default:0" json:"processed_images"`
	TotalFaces      int `gorm:"column:total_faces;not null;default:0" json:"total_faces"`
	TotalClusters   int `gorm:"column:total_clusters;not null;default:0" json:"total_clusters"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Gallery) TableName() string { return "gallery" }

func (g *Gallery) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
