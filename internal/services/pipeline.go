package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/eventpilot/gallery-backend/internal/clients/aws"
	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/repos"
	"github.com/eventpilot/gallery-backend/internal/utils"
)

// CollectionID derives the recognition collection handle for a gallery.
func CollectionID(galleryID uuid.UUID) string {
	return "eventpilot-gallery-" + galleryID.String()
}

// PipelineService drives a gallery through the processing stages:
// pending -> processing (index) -> clustering -> matching -> ready.
// A stage failure stops the pipeline and records the error on the gallery;
// per-image indexing failures do not.
type PipelineService interface {
	Run(ctx context.Context, galleryID uuid.UUID) error
	// RunMany runs independent gallery pipelines concurrently. Stage order
	// is only guaranteed within a gallery, never across galleries.
	RunMany(ctx context.Context, galleryIDs []uuid.UUID) error
	// Teardown deletes the gallery's face collection, then the gallery row;
	// the store cascades images, faces, and clusters.
	Teardown(ctx context.Context, galleryID uuid.UUID) error
}

type pipelineService struct {
	db          *gorm.DB
	log         *logger.Logger
	galleryRepo repos.GalleryRepo
	indexer     IndexerService
	cluster     ClusterService
	matcher     MatcherService
	recognition aws.RecognitionClient

	maxConcurrentGalleries int
}

func NewPipelineService(
	db *gorm.DB,
	log *logger.Logger,
	galleryRepo repos.GalleryRepo,
	indexer IndexerService,
	cluster ClusterService,
	matcher MatcherService,
	recognition aws.RecognitionClient,
) PipelineService {
	return &pipelineService{
		db:          db,
		log:         log.With("service", "PipelineService"),
		galleryRepo: galleryRepo,
		indexer:     indexer,
		cluster:     cluster,
		matcher:     matcher,
		recognition: recognition,

		maxConcurrentGalleries: utils.GetEnvAsInt("PIPELINE_MAX_CONCURRENT_GALLERIES", 4, log),
	}
}

func (s *pipelineService) Run(ctx context.Context, galleryID uuid.UUID) error {
	s.log.Info("Starting gallery pipeline", "gallery_id", galleryID)

	collectionID := CollectionID(galleryID)
	if err := s.recognition.CreateCollection(ctx, collectionID); err != nil {
		return s.fail(ctx, galleryID, fmt.Errorf("create collection: %w", err))
	}
	if err := s.galleryRepo.StartProcessing(ctx, nil, galleryID, collectionID); err != nil {
		return s.fail(ctx, galleryID, fmt.Errorf("start processing: %w", err))
	}

	// Per-image failures are already recorded on their rows; the batch
	// result only feeds the log and the pipeline advances regardless.
	batch, err := s.indexer.IndexPendingImages(ctx, galleryID)
	if err != nil {
		return s.fail(ctx, galleryID, fmt.Errorf("index images: %w", err))
	}
	s.log.Info("Indexing finished", "gallery_id", galleryID, "processed", batch.Processed, "failed", batch.Failed)

	clusterCount, err := s.cluster.ClusterGallery(ctx, galleryID)
	if err != nil {
		return s.fail(ctx, galleryID, fmt.Errorf("cluster faces: %w", err))
	}
	s.log.Info("Clustering finished", "gallery_id", galleryID, "clusters", clusterCount)

	match, err := s.matcher.MatchClusters(ctx, galleryID)
	if err != nil {
		return s.fail(ctx, galleryID, fmt.Errorf("match clusters: %w", err))
	}
	s.log.Info("Matching finished", "gallery_id", galleryID, "matched", match.Matched, "unmatched", match.Unmatched)

	if err := s.galleryRepo.MarkReady(ctx, nil, galleryID); err != nil {
		return s.fail(ctx, galleryID, fmt.Errorf("mark gallery ready: %w", err))
	}
	s.log.Info("Gallery pipeline complete", "gallery_id", galleryID)
	return nil
}

func (s *pipelineService) RunMany(ctx context.Context, galleryIDs []uuid.UUID) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrentGalleries)
	for _, galleryID := range galleryIDs {
		g.Go(func() error {
			return s.Run(ctx, galleryID)
		})
	}
	return g.Wait()
}

func (s *pipelineService) Teardown(ctx context.Context, galleryID uuid.UUID) error {
	gallery, err := s.galleryRepo.GetByID(ctx, nil, galleryID)
	if err != nil {
		return fmt.Errorf("load gallery %s: %w", galleryID, err)
	}
	if gallery.CollectionID != "" {
		if err := s.recognition.DeleteCollection(ctx, gallery.CollectionID); err != nil {
			return fmt.Errorf("delete collection %s: %w", gallery.CollectionID, err)
		}
	}
	if err := s.galleryRepo.Delete(ctx, nil, galleryID); err != nil {
		return fmt.Errorf("delete gallery %s: %w", galleryID, err)
	}
	s.log.Info("Gallery torn down", "gallery_id", galleryID)
	return nil
}

func (s *pipelineService) fail(ctx context.Context, galleryID uuid.UUID, cause error) error {
	s.log.Error("Gallery pipeline failed", "gallery_id", galleryID, "error", cause)
	if err := s.galleryRepo.MarkError(ctx, nil, galleryID, cause.Error()); err != nil {
		s.log.Error("Failed to record gallery error", "gallery_id", galleryID, "error", err)
	}
	return cause
}
