package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DetectedFace is one face found in one image. FaceID is the opaque handle
// assigned by the recognition service and is unique across the gallery's
// collection. ClusterSimilarity is set exactly when ClusterID is set, and a
// face is never reassigned to a different cluster.
type DetectedFace struct {
	ID      uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ImageID uuid.UUID     `gorm:"type:uuid;not null;index" json:"image_id"`
	Image   *GalleryImage `gorm:"constraint:OnDelete:CASCADE;foreignKey:ImageID;references:ID" json:"image,omitempty"`

	FaceID string `gorm:"column:face_id;uniqueIndex" json:"face_id"`

	// Normalized bounding box, each value in [0,1].
	BoundingBoxTop    float64 `gorm:"column:bounding_box_top" json:"bounding_box_top"`
	BoundingBoxLeft   float64 `gorm:"column:bounding_box_left" json:"bounding_box_left"`
	BoundingBoxWidth  float64 `gorm:"column:bounding_box_width" json:"bounding_box_width"`
	BoundingBoxHeight float64 `gorm:"column:bounding_box_height" json:"bounding_box_height"`

	Confidence float64  `gorm:"column:confidence" json:"confidence"`
	Brightness *float64 `gorm:"column:brightness" json:"brightness,omitempty"`
	Sharpness  *float64 `gorm:"column:sharpness" json:"sharpness,omitempty"`

	// Head pose as reported by the recognition service ({"yaw":..,"pitch":..,
	// "roll":..}), kept for representative-thumbnail selection in the UI.
	Pose datatypes.JSON `gorm:"column:pose;type:jsonb" json:"pose,omitempty"`

	ThumbnailURL string `gorm:"column:thumbnail_url" json:"thumbnail_url"`
	ThumbnailKey string `gorm:"column:thumbnail_key" json:"thumbnail_key"`

	ClusterID         *uuid.UUID   `gorm:"type:uuid;column:cluster_id;index" json:"cluster_id,omitempty"`
	Cluster           *FaceCluster `gorm:"constraint:OnDelete:SET NULL;foreignKey:ClusterID;references:ID" json:"cluster,omitempty"`
	ClusterSimilarity *float64     `gorm:"column:cluster_similarity" json:"cluster_similarity,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (DetectedFace) TableName() string { return "detected_face" }

func (f *DetectedFace) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
