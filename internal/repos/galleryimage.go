package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/types"
)

type GalleryImageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, image *types.GalleryImage) (*types.GalleryImage, error)
	GetByID(ctx context.Context, tx *gorm.DB, imageID uuid.UUID) (*types.GalleryImage, error)
	GetByGalleryID(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) ([]*types.GalleryImage, error)
	GetPendingByGalleryID(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) ([]*types.GalleryImage, error)
	GetFilenamesByGalleryID(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) ([]string, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, imageID uuid.UUID, status types.GalleryImageStatus) error
	SetThumbnailURL(ctx context.Context, tx *gorm.DB, imageID uuid.UUID, thumbnailURL string) error
	MarkProcessed(ctx context.Context, tx *gorm.DB, imageID uuid.UUID, status types.GalleryImageStatus, faceCount int) error
	MarkFailed(ctx context.Context, tx *gorm.DB, imageID uuid.UUID, errMsg string) error
}

type galleryImageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGalleryImageRepo(db *gorm.DB, baseLog *logger.Logger) GalleryImageRepo {
	return &galleryImageRepo{db: db, log: baseLog.With("repo", "GalleryImageRepo")}
}

func (r *galleryImageRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *galleryImageRepo) Create(ctx context.Context, tx *gorm.DB, image *types.GalleryImage) (*types.GalleryImage, error) {
	if err := r.conn(tx).WithContext(ctx).Create(image).Error; err != nil {
		return nil, err
	}
	return image, nil
}

func (r *galleryImageRepo) GetByID(ctx context.Context, tx *gorm.DB, imageID uuid.UUID) (*types.GalleryImage, error) {
	var image types.GalleryImage
	if err := r.conn(tx).WithContext(ctx).
		Where("id = ?", imageID).
		First(&image).Error; err != nil {
		return nil, err
	}
	return &image, nil
}

func (r *galleryImageRepo) GetByGalleryID(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) ([]*types.GalleryImage, error) {
	var images []*types.GalleryImage
	if err := r.conn(tx).WithContext(ctx).
		Where("gallery_id = ?", galleryID).
		Order("created_at ASC").
		Find(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

func (r *galleryImageRepo) GetPendingByGalleryID(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) ([]*types.GalleryImage, error) {
	var images []*types.GalleryImage
	if err := r.conn(tx).WithContext(ctx).
		Where("gallery_id = ? AND status = ?", galleryID, types.GalleryImageStatusPending).
		Order("created_at ASC").
		Find(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

func (r *galleryImageRepo) GetFilenamesByGalleryID(ctx context.Context, tx *gorm.DB, galleryID uuid.UUID) ([]string, error) {
	var filenames []string
	if err := r.conn(tx).WithContext(ctx).
		Model(&types.GalleryImage{}).
		Where("gallery_id = ?", galleryID).
		Pluck("filename", &filenames).Error; err != nil {
		return nil, err
	}
	return filenames, nil
}

func (r *galleryImageRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, imageID uuid.UUID, status types.GalleryImageStatus) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.GalleryImage{}).
		Where("id = ?", imageID).
		Update("status", status).Error
}

func (r *galleryImageRepo) SetThumbnailURL(ctx context.Context, tx *gorm.DB, imageID uuid.UUID, thumbnailURL string) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.GalleryImage{}).
		Where("id = ?", imageID).
		Update("thumbnail_url", thumbnailURL).Error
}

func (r *galleryImageRepo) MarkProcessed(ctx context.Context, tx *gorm.DB, imageID uuid.UUID, status types.GalleryImageStatus, faceCount int) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.GalleryImage{}).
		Where("id = ?", imageID).
		Updates(map[string]interface{}{
			"status":       status,
			"face_count":   faceCount,
			"processed_at": time.Now(),
		}).Error
}

func (r *galleryImageRepo) MarkFailed(ctx context.Context, tx *gorm.DB, imageID uuid.UUID, errMsg string) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.GalleryImage{}).
		Where("id = ?", imageID).
		Updates(map[string]interface{}{
			"status":        types.GalleryImageStatusFailed,
			"error_message": errMsg,
			"processed_at":  time.Now(),
		}).Error
}
