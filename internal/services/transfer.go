package services

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventpilot/gallery-backend/internal/clients/aws"
	"github.com/eventpilot/gallery-backend/internal/clients/google"
	"github.com/eventpilot/gallery-backend/internal/clients/redis"
	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/repos"
	"github.com/eventpilot/gallery-backend/internal/types"
	"github.com/eventpilot/gallery-backend/internal/utils"
)

// ImportSummary reports one folder import run.
type ImportSummary struct {
	Listed            int
	Imported          int
	Failed            int
	SkippedDuplicates int
	Cancelled         bool
}

// TransferService pulls source images from a shared folder into object
// storage and records a GalleryImage row per file. Files are processed
// sequentially; individual failures are counted and do not abort the import.
type TransferService interface {
	ImportFolder(ctx context.Context, galleryID uuid.UUID, folderURL string) (*ImportSummary, error)
	TransferFile(ctx context.Context, galleryID uuid.UUID, file google.DriveFile) (*types.GalleryImage, error)
}

type transferService struct {
	db          *gorm.DB
	log         *logger.Logger
	galleryRepo repos.GalleryRepo
	imageRepo   repos.GalleryImageRepo
	folders     google.FolderClient
	storage     aws.ObjectStorage
	thumbnails  ThumbnailService
	progress    redis.ProgressStore

	maxDownloadAttempts int
	retryBaseDelay      time.Duration
}

func NewTransferService(
	db *gorm.DB,
	log *logger.Logger,
	galleryRepo repos.GalleryRepo,
	imageRepo repos.GalleryImageRepo,
	folders google.FolderClient,
	storage aws.ObjectStorage,
	thumbnails ThumbnailService,
	progress redis.ProgressStore,
) TransferService {
	return &transferService{
		db:          db,
		log:         log.With("service", "TransferService"),
		galleryRepo: galleryRepo,
		imageRepo:   imageRepo,
		folders:     folders,
		storage:     storage,
		thumbnails:  thumbnails,
		progress:    progress,

		maxDownloadAttempts: utils.GetEnvAsInt("DRIVE_DOWNLOAD_MAX_ATTEMPTS", 5, log),
		retryBaseDelay:      time.Duration(utils.GetEnvAsInt("DRIVE_DOWNLOAD_RETRY_BASE_MS", 500, log)) * time.Millisecond,
	}
}

func (s *transferService) ImportFolder(ctx context.Context, galleryID uuid.UUID, folderURL string) (*ImportSummary, error) {
	folderID := google.ExtractFolderID(folderURL)
	if folderID == "" {
		return nil, fmt.Errorf("invalid drive folder URL %q", folderURL)
	}

	files, err := s.folders.ListImages(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("list folder images: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in folder %s", folderID)
	}

	// Re-imports of the same folder skip files already in the gallery.
	existing, err := s.imageRepo.GetFilenamesByGalleryID(ctx, nil, galleryID)
	if err != nil {
		return nil, fmt.Errorf("load existing filenames: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, name := range existing {
		seen[name] = true
	}
	toImport := make([]google.DriveFile, 0, len(files))
	for _, f := range files {
		if !seen[f.Name] {
			toImport = append(toImport, f)
		}
	}

	summary := &ImportSummary{
		Listed:            len(files),
		SkippedDuplicates: len(files) - len(toImport),
	}

	if err := s.galleryRepo.UpdateStatus(ctx, nil, galleryID, types.GalleryStatusUploading); err != nil {
		return nil, fmt.Errorf("mark gallery uploading: %w", err)
	}
	if err := s.progress.Start(ctx, galleryID.String(), len(toImport), summary.SkippedDuplicates); err != nil {
		s.log.Warn("Failed to start import progress", "gallery_id", galleryID, "error", err)
	}

	for _, file := range toImport {
		if s.progress.IsCancelled(ctx, galleryID.String()) {
			summary.Cancelled = true
			break
		}

		if _, err := s.TransferFile(ctx, galleryID, file); err != nil {
			s.log.Error("Failed to import file", "gallery_id", galleryID, "file", file.Name, "error", err)
			summary.Failed++
			_ = s.progress.AddFailed(ctx, galleryID.String())
			continue
		}
		summary.Imported++
		_ = s.progress.AddImported(ctx, galleryID.String())
	}

	// The import leaves the gallery in pending either way; processing is a
	// separate, explicitly triggered stage.
	if err := s.galleryRepo.UpdateStatus(ctx, nil, galleryID, types.GalleryStatusPending); err != nil {
		return summary, fmt.Errorf("reset gallery status: %w", err)
	}
	if !summary.Cancelled {
		_ = s.progress.Complete(ctx, galleryID.String())
	}

	s.log.Info("Folder import finished",
		"gallery_id", galleryID,
		"imported", summary.Imported,
		"failed", summary.Failed,
		"skipped_duplicates", summary.SkippedDuplicates,
		"cancelled", summary.Cancelled,
	)
	return summary, nil
}

func (s *transferService) TransferFile(ctx context.Context, galleryID uuid.UUID, file google.DriveFile) (*types.GalleryImage, error) {
	data, err := s.downloadWithRetry(ctx, file.ID)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", file.Name, err)
	}

	key := aws.GalleryImageKey(galleryID, file.Name)
	if err := s.storage.Put(ctx, key, data, file.MimeType); err != nil {
		return nil, fmt.Errorf("store %s: %w", file.Name, err)
	}

	img := &types.GalleryImage{
		GalleryID:     galleryID,
		StorageKey:    key,
		StorageBucket: s.storage.Bucket(),
		ImageURL:      s.storage.PublicURL(key),
		Filename:      file.Name,
		FileSize:      int64(len(data)),
		ContentType:   file.MimeType,
		Status:        types.GalleryImageStatusPending,
	}
	if _, err := s.imageRepo.Create(ctx, nil, img); err != nil {
		return nil, fmt.Errorf("create image record: %w", err)
	}
	if err := s.galleryRepo.IncrementTotalImages(ctx, nil, galleryID, 1); err != nil {
		return nil, fmt.Errorf("increment image count: %w", err)
	}

	// A missing thumbnail never fails the transfer.
	thumbKey := aws.ThumbnailKey(key)
	if thumbData, err := s.thumbnails.Generate(data); err != nil {
		s.log.Warn("Thumbnail generation failed", "key", key, "error", err)
	} else if err := s.storage.Put(ctx, thumbKey, thumbData, "image/jpeg"); err != nil {
		s.log.Warn("Thumbnail upload failed", "key", thumbKey, "error", err)
	} else if err := s.imageRepo.SetThumbnailURL(ctx, nil, img.ID, s.storage.PublicURL(thumbKey)); err != nil {
		s.log.Warn("Thumbnail record update failed", "image_id", img.ID, "error", err)
	}

	s.storage.WarmCache(ctx, key)
	s.storage.WarmCache(ctx, thumbKey)

	return img, nil
}

// downloadWithRetry retries rate-limited downloads with exponential backoff
// and jitter, up to a hard attempt ceiling. Any other error class propagates
// immediately.
func (s *transferService) downloadWithRetry(ctx context.Context, fileID string) ([]byte, error) {
	delay := s.retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= s.maxDownloadAttempts; attempt++ {
		data, err := s.folders.Download(ctx, fileID)
		if err == nil {
			return data, nil
		}
		if !google.IsRateLimited(err) {
			return nil, err
		}
		lastErr = err
		if attempt == s.maxDownloadAttempts {
			break
		}

		wait := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
		s.log.Warn("Rate limited, backing off",
			"file_id", fileID, "attempt", attempt, "wait", wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("download rate limited after %d attempts: %w", s.maxDownloadAttempts, lastErr)
}
