package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/types"
)

type FaceClusterRepo interface {
	Create(ctx context.Context, tx *gorm.DB, cluster *types.FaceCluster) (*types.FaceCluster, error)
	GetByID(ctx context.Context, tx *gorm.DB, clusterID uuid.UUID) (*types.FaceCluster, error)
	GetByGalleryID(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) ([]*types.FaceCluster, error)
	GetUnmatchedByGalleryID(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) ([]*types.FaceCluster, error)
	SetMatch(ctx context.Context, tx *gorm.DB, clusterID, userID uuid.UUID, confidence float64) error
}

type faceClusterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFaceClusterRepo(db *gorm.DB, baseLog *logger.Logger) FaceClusterRepo {
	return &faceClusterRepo{db: db, log: baseLog.With("repo", "FaceClusterRepo")}
}

func (r *faceClusterRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *faceClusterRepo) Create(ctx context.Context, tx *gorm.DB, cluster *types.FaceCluster) (*types.FaceCluster, error) {
	if err := r.conn(tx).WithContext(ctx).Create(cluster).Error; err != nil {
		return nil, err
	}
	return cluster, nil
}

func (r *faceClusterRepo) GetByID(ctx context.Context, tx *gorm.DB, clusterID uuid.UUID) (*types.FaceCluster, error) {
	var cluster types.FaceCluster
	if err := r.conn(tx).WithContext(ctx).
		Where("id = ?", clusterID).
		First(&cluster).Error; err != nil {
		return nil, err
	}
	return &cluster, nil
}

func (r *faceClusterRepo) GetByGalleryID(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) ([]*types.FaceCluster, error) {
	var clusters []*types.FaceCluster
	if err := r.conn(tx).WithContext(ctx).
		Where("gallery_id = ?", galleryID).
		Order("created_at ASC").
		Find(&clusters).Error; err != nil {
		return nil, err
	}
	return clusters, nil
}

func (r *faceClusterRepo) GetUnmatchedByGalleryID(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) ([]*types.FaceCluster, error) {
	var clusters []*types.FaceCluster
	if err := r.conn(tx).WithContext(ctx).
		Where("gallery_id = ? AND user_id IS NULL", galleryID).
		Order("created_at ASC").
		Find(&clusters).Error; err != nil {
		return nil, err
	}
	return clusters, nil
}

func (r *faceClusterRepo) SetMatch(ctx context.Context, tx *gorm.DB, clusterID, userID uuid.UUID, confidence float64) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.FaceCluster{}).
		Where("id = ?", clusterID).
		Updates(map[string]interface{}{
			"user_id":          userID,
			"match_confidence": confidence,
		}).Error
}
