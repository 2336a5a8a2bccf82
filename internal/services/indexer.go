package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/eventpilot/gallery-backend/internal/clients/aws"
	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/repos"
	"github.com/eventpilot/gallery-backend/internal/types"
)

// IndexBatchResult counts one gallery-wide indexing pass.
type IndexBatchResult struct {
	Processed int
	Failed    int
}

// IndexerService runs face detection over stored gallery images and persists
// one DetectedFace row per face the recognition service returns.
type IndexerService interface {
	// IndexImage indexes a single image and returns the number of faces
	// found. Images not in pending status are left untouched.
	IndexImage(ctx context.Context, imageID uuid.UUID) (int, error)
	// IndexPendingImages indexes every pending image in the gallery,
	// continuing past individual failures. Failed images stay failed until
	// explicitly reset to pending.
	IndexPendingImages(ctx context.Context, galleryID uuid.UUID) (*IndexBatchResult, error)
}

type indexerService struct {
	db          *gorm.DB
	log         *logger.Logger
	galleryRepo repos.GalleryRepo
	imageRepo   repos.GalleryImageRepo
	faceRepo    repos.DetectedFaceRepo
	recognition aws.RecognitionClient
	storage     aws.ObjectStorage
	thumbnails  ThumbnailService
}

func NewIndexerService(
	db *gorm.DB,
	log *logger.Logger,
	galleryRepo repos.GalleryRepo,
	imageRepo repos.GalleryImageRepo,
	faceRepo repos.DetectedFaceRepo,
	recognition aws.RecognitionClient,
	storage aws.ObjectStorage,
	thumbnails ThumbnailService,
) IndexerService {
	return &indexerService{
		db:          db,
		log:         log.With("service", "IndexerService"),
		galleryRepo: galleryRepo,
		imageRepo:   imageRepo,
		faceRepo:    faceRepo,
		recognition: recognition,
		storage:     storage,
		thumbnails:  thumbnails,
	}
}

func (s *indexerService) IndexImage(ctx context.Context, imageID uuid.UUID) (int, error) {
	image, err := s.imageRepo.GetByID(ctx, nil, imageID)
	if err != nil {
		return 0, fmt.Errorf("load image %s: %w", imageID, err)
	}
	// Re-running on an already-processed image must not create duplicate
	// face rows; only a pending image is indexed.
	if image.Status != types.GalleryImageStatusPending {
		s.log.Debug("Image not pending, skipping", "image_id", imageID, "status", image.Status)
		return 0, nil
	}

	gallery, err := s.galleryRepo.GetByID(ctx, nil, image.GalleryID)
	if err != nil {
		return 0, fmt.Errorf("load gallery %s: %w", image.GalleryID, err)
	}
	if gallery.CollectionID == "" {
		return 0, fmt.Errorf("gallery %s has no face collection", gallery.ID)
	}

	if err := s.imageRepo.UpdateStatus(ctx, nil, imageID, types.GalleryImageStatusProcessing); err != nil {
		return 0, fmt.Errorf("mark image processing: %w", err)
	}

	faces, err := s.recognition.IndexFaces(ctx, gallery.CollectionID, image.StorageBucket, image.StorageKey, imageID.String())
	if err != nil {
		// The image counts as processed so the gallery can still reach
		// completion with partial failures; the error is recorded on the
		// image and surfaced to the batch driver.
		if markErr := s.imageRepo.MarkFailed(ctx, nil, imageID, err.Error()); markErr != nil {
			s.log.Error("Failed to mark image failed", "image_id", imageID, "error", markErr)
		}
		if incErr := s.galleryRepo.IncrementProcessedImages(ctx, nil, gallery.ID, 1); incErr != nil {
			s.log.Error("Failed to bump processed counter", "gallery_id", gallery.ID, "error", incErr)
		}
		return 0, fmt.Errorf("index faces in image %s: %w", imageID, err)
	}

	// One original fetch serves every face crop for this image.
	var imageData []byte
	if len(faces) > 0 {
		if imageData, err = s.storage.Get(ctx, image.StorageKey); err != nil {
			s.log.Warn("Could not fetch original for face thumbnails", "key", image.StorageKey, "error", err)
			imageData = nil
		}
	}

	for i, face := range faces {
		record := &types.DetectedFace{
			ImageID:           imageID,
			FaceID:            face.FaceID,
			BoundingBoxTop:    face.BoundingBox.Top,
			BoundingBoxLeft:   face.BoundingBox.Left,
			BoundingBoxWidth:  face.BoundingBox.Width,
			BoundingBoxHeight: face.BoundingBox.Height,
			Confidence:        face.Confidence,
			Brightness:        face.Brightness,
			Sharpness:         face.Sharpness,
		}
		if face.Pose != nil {
			if raw, err := json.Marshal(face.Pose); err == nil {
				record.Pose = datatypes.JSON(raw)
			}
		}
		if _, err := s.faceRepo.Create(ctx, nil, record); err != nil {
			return 0, fmt.Errorf("create face record for image %s: %w", imageID, err)
		}

		if imageData != nil {
			s.generateFaceThumbnail(ctx, gallery.ID, image, record, imageData, i)
		}
	}

	status := types.GalleryImageStatusCompleted
	if len(faces) == 0 {
		status = types.GalleryImageStatusSkipped
	}
	if err := s.imageRepo.MarkProcessed(ctx, nil, imageID, status, len(faces)); err != nil {
		return 0, fmt.Errorf("mark image processed: %w", err)
	}
	if err := s.galleryRepo.IncrementProcessedImages(ctx, nil, gallery.ID, 1); err != nil {
		return 0, fmt.Errorf("bump processed counter: %w", err)
	}
	if len(faces) > 0 {
		if err := s.galleryRepo.IncrementTotalFaces(ctx, nil, gallery.ID, len(faces)); err != nil {
			return 0, fmt.Errorf("bump face counter: %w", err)
		}
	}

	s.log.Info("Indexed image", "image_id", imageID, "faces", len(faces))
	return len(faces), nil
}

func (s *indexerService) IndexPendingImages(ctx context.Context, galleryID uuid.UUID) (*IndexBatchResult, error) {
	images, err := s.imageRepo.GetPendingByGalleryID(ctx, nil, galleryID)
	if err != nil {
		return nil, fmt.Errorf("load pending images: %w", err)
	}

	result := &IndexBatchResult{}
	for _, image := range images {
		if _, err := s.IndexImage(ctx, image.ID); err != nil {
			s.log.Error("Image indexing failed", "image_id", image.ID, "error", err)
			result.Failed++
			continue
		}
		result.Processed++
	}
	return result, nil
}

// generateFaceThumbnail is best-effort: a face row without a thumbnail is
// still a valid face row.
func (s *indexerService) generateFaceThumbnail(ctx context.Context, galleryID uuid.UUID, image *types.GalleryImage, face *types.DetectedFace, imageData []byte, faceIndex int) {
	crop, err := s.thumbnails.GenerateFaceCrop(imageData, aws.BoundingBox{
		Top:    face.BoundingBoxTop,
		Left:   face.BoundingBoxLeft,
		Width:  face.BoundingBoxWidth,
		Height: face.BoundingBoxHeight,
	})
	if err != nil {
		s.log.Warn("Face crop failed", "face_id", face.ID, "error", err)
		return
	}

	key := aws.FaceThumbnailKey(galleryID, image.ID, faceIndex)
	if err := s.storage.Put(ctx, key, crop, "image/jpeg"); err != nil {
		s.log.Warn("Face thumbnail upload failed", "key", key, "error", err)
		return
	}
	if err := s.faceRepo.SetThumbnail(ctx, nil, face.ID, s.storage.PublicURL(key), key); err != nil {
		s.log.Warn("Face thumbnail record update failed", "face_id", face.ID, "error", err)
	}
}
