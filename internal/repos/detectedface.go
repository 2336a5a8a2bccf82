package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/types"
)

type DetectedFaceRepo interface {
	Create(ctx context.Context, tx *gorm.DB, face *types.DetectedFace) (*types.DetectedFace, error)
	GetByID(ctx context.Context, tx *gorm.DB, faceID uuid.UUID) (*types.DetectedFace, error)
	GetByClusterID(ctx context.Context, tx *gorm.DB, clusterID uuid.UUID) ([]*types.DetectedFace, error)
	GetUnclusteredByGalleryID(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) ([]*types.DetectedFace, error)
	CountByClusterID(ctx context.Context, tx *gorm.DB, clusterID uuid.UUID) (int64, error)
	SetThumbnail(ctx context.Context, tx *gorm.DB, faceID uuid.UUID, thumbnailURL, thumbnailKey string) error
	AssignCluster(ctx context.Context, tx *gorm.DB, faceID, clusterID uuid.UUID, similarity float64) error
}

type detectedFaceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDetectedFaceRepo(db *gorm.DB, baseLog *logger.Logger) DetectedFaceRepo {
	return &detectedFaceRepo{db: db, log: baseLog.With("repo", "DetectedFaceRepo")}
}

func (r *detectedFaceRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *detectedFaceRepo) Create(ctx context.Context, tx *gorm.DB, face *types.DetectedFace) (*types.DetectedFace, error) {
	if err := r.conn(tx).WithContext(ctx).Create(face).Error; err != nil {
		return nil, err
	}
	return face, nil
}

func (r *detectedFaceRepo) GetByID(ctx context.Context, tx *gorm.DB, faceID uuid.UUID) (*types.DetectedFace, error) {
	var face types.DetectedFace
	if err := r.conn(tx).WithContext(ctx).
		Where("id = ?", faceID).
		First(&face).Error; err != nil {
		return nil, err
	}
	return &face, nil
}

func (r *detectedFaceRepo) GetByClusterID(ctx context.Context, tx *gorm.DB, clusterID uuid.UUID) ([]*types.DetectedFace, error) {
	var faces []*types.DetectedFace
	if err := r.conn(tx).WithContext(ctx).
		Where("cluster_id = ?", clusterID).
		Order("created_at ASC").
		Find(&faces).Error; err != nil {
		return nil, err
	}
	return faces, nil
}

// GetUnclusteredByGalleryID returns every face in the gallery that has an
// external face handle but no cluster yet, in stable creation order. The
// owning image is preloaded because clustering falls back to the image URL
// for the representative thumbnail.
func (r *detectedFaceRepo) GetUnclusteredByGalleryID(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) ([]*types.DetectedFace, error) {
	var faces []*types.DetectedFace
	if err := r.conn(tx).WithContext(ctx).
		Preload("Image").
		Joins("JOIN gallery_image ON gallery_image.id = detected_face.image_id").
		Where("gallery_image.gallery_id = ?", galleryID).
		Where("detected_face.cluster_id IS NULL").
		Where("detected_face.face_id IS NOT NULL AND detected_face.face_id <> ''").
		Order("detected_face.created_at ASC, detected_face.id ASC").
		Find(&faces).Error; err != nil {
		return nil, err
	}
	return faces, nil
}

func (r *detectedFaceRepo) CountByClusterID(ctx context.Context, tx *gorm.DB, clusterID uuid.UUID) (int64, error) {
	var count int64
	if err := r.conn(tx).WithContext(ctx).
		Model(&types.DetectedFace{}).
		Where("cluster_id = ?", clusterID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *detectedFaceRepo) SetThumbnail(ctx context.Context, tx *gorm.DB, faceID uuid.UUID, thumbnailURL, thumbnailKey string) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.DetectedFace{}).
		Where("id = ?", faceID).
		Updates(map[string]interface{}{
			"thumbnail_url": thumbnailURL,
			"thumbnail_key": thumbnailKey,
		}).Error
}

// AssignCluster writes the face's one and only cluster assignment. The guard
// on cluster_id keeps an already-clustered face from ever being moved.
func (r *detectedFaceRepo) AssignCluster(ctx context.Context, tx *gorm.DB, faceID, clusterID uuid.UUID, similarity float64) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.DetectedFace{}).
		Where("id = ? AND cluster_id IS NULL", faceID).
		Updates(map[string]interface{}{
			"cluster_id":         clusterID,
			"cluster_similarity": similarity,
		}).Error
}
