package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/types"
)

type GalleryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, gallery *types.Gallery) (*types.Gallery, error)
	GetByID(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) (*types.Gallery, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID, status types.GalleryStatus) error
	StartProcessing(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID, collectionID string) error
	MarkReady(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) error
	MarkError(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID, errMsg string) error
	IncrementTotalImages(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID, delta int) error
	IncrementProcessedImages(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID, delta int) error
	IncrementTotalFaces(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID, delta int) error
	SetTotalClusters(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID, total int) error
	Delete(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) error
}

type galleryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGalleryRepo(db *gorm.DB, baseLog *logger.Logger) GalleryRepo {
	return &galleryRepo{db: db, log: baseLog.With("repo", "GalleryRepo")}
}

func (r *galleryRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *galleryRepo) Create(ctx context.Context, tx *gorm.DB, gallery *types.Gallery) (*types.Gallery, error) {
	if err := r.conn(tx).WithContext(ctx).Create(gallery).Error; err != nil {
		return nil, err
	}
	return gallery, nil
}

func (r *galleryRepo) GetByID(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) (*types.Gallery, error) {
	var gallery types.Gallery
	if err := r.conn(tx).WithContext(ctx).
		Where("id = ?", galleryID).
		First(&gallery).Error; err != nil {
		return nil, err
	}
	return &gallery, nil
}

func (r *galleryRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID, status types.GalleryStatus) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Gallery{}).
		Where("id = ?", galleryID).
		Update("status", status).Error
}

// StartProcessing stamps the collection handle and the start of the pipeline,
// clearing any error left by a previous run.
func (r *galleryRepo) StartProcessing(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID, collectionID string) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Gallery{}).
		Where("id = ?", galleryID).
		Updates(map[string]interface{}{
			"collection_id":         collectionID,
			"status":                types.GalleryStatusProcessing,
			"processing_started_at": time.Now(),
			"last_error":            gorm.Expr("NULL"),
		}).Error
}

func (r *galleryRepo) MarkReady(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Gallery{}).
		Where("id = ?", galleryID).
		Updates(map[string]interface{}{
			"status":                  types.GalleryStatusReady,
			"processing_completed_at": time.Now(),
		}).Error
}

func (r *galleryRepo) MarkError(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID, errMsg string) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Gallery{}).
		Where("id = ?", galleryID).
		Updates(map[string]interface{}{
			"status":                  types.GalleryStatusError,
			"last_error":              errMsg,
			"processing_completed_at": time.Now(),
		}).Error
}

// Counter updates are atomic in-store increments so they stay correct even if
// item processing is ever parallelized.
func (r *galleryRepo) IncrementTotalImages(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID, delta int) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Gallery{}).
		Where("id = ?", galleryID).
		UpdateColumn("total_images", gorm.Expr("total_images + ?", delta)).Error
}

func (r *galleryRepo) IncrementProcessedImages(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID, delta int) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Gallery{}).
		Where("id = ?", galleryID).
		UpdateColumn("processed_images", gorm.Expr("processed_images + ?", delta)).Error
}

func (r *galleryRepo) IncrementTotalFaces(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID, delta int) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Gallery{}).
		Where("id = ?", galleryID).
		UpdateColumn("total_faces", gorm.Expr("total_faces + ?", delta)).Error
}

func (r *galleryRepo) SetTotalClusters(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID, total int) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Gallery{}).
		Where("id = ?", galleryID).
		Update("total_clusters", total).Error
}

func (r *galleryRepo) Delete(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).
		Where("id = ?", galleryID).
		Delete(&types.Gallery{}).Error
}
