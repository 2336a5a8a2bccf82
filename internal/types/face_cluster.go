package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FaceCluster groups detected faces believed to depict the same person.
// UserID is set at most once by identity matching; nothing prevents two
// clusters from matching the same user.
type FaceCluster struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GalleryID uuid.UUID `gorm:"type:uuid;not null;index" json:"gallery_id"`
	Gallery   *Gallery  `gorm:"constraint:OnDelete:CASCADE;foreignKey:GalleryID;references:ID" json:"gallery,omitempty"`

	AutoLabel         string `gorm:"column:auto_label;not null" json:"auto_label"`
	FaceCount         int    `gorm:"column:face_count;not null;default:0" json:"face_count"`
	RepresentativeURL string `gorm:"column:representative_url" json:"representative_url"`

	UserID          *uuid.UUID `gorm:"type:uuid;column:user_id;index" json:"user_id,omitempty"`
	User            *User      `gorm:"constraint:OnDelete:SET NULL;foreignKey:UserID;references:ID" json:"user,omitempty"`
	MatchConfidence *float64   `gorm:"column:match_confidence" json:"match_confidence,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (FaceCluster) TableName() string { return "face_cluster" }

func (c *FaceCluster) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
