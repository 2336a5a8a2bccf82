package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventpilot/gallery-backend/internal/clients/aws"
	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/repos"
	"github.com/eventpilot/gallery-backend/internal/types"
	"github.com/eventpilot/gallery-backend/internal/utils"
)

// seedSimilarity is a seed face's similarity to itself.
const seedSimilarity = 100.0

// ClusterService groups a gallery's indexed faces into per-person clusters
// with a single seed-and-expand pass over the recognition service's
// similarity search.
//
// Each unassigned face becomes a seed at most once; its one-hop similarity
// matches join its cluster and are never reconsidered. Because expansion is
// not transitive across seeds, one real person can end up split over two
// clusters when the similarity graph is not a clean clique. That trade keeps
// the pass linear with one search call per unresolved face.
type ClusterService interface {
	ClusterGallery(ctx context.Context, galleryID uuid.UUID) (int, error)
}

type clusterService struct {
	db          *gorm.DB
	log         *logger.Logger
	galleryRepo repos.GalleryRepo
	clusterRepo repos.FaceClusterRepo
	faceRepo    repos.DetectedFaceRepo
	recognition aws.RecognitionClient

	maxMatches          int
	similarityThreshold float64
}

func NewClusterService(
	db *gorm.DB,
	log *logger.Logger,
	galleryRepo repos.GalleryRepo,
	clusterRepo repos.FaceClusterRepo,
	faceRepo repos.DetectedFaceRepo,
	recognition aws.RecognitionClient,
) ClusterService {
	return &clusterService{
		db:          db,
		log:         log.With("service", "ClusterService"),
		galleryRepo: galleryRepo,
		clusterRepo: clusterRepo,
		faceRepo:    faceRepo,
		recognition: recognition,

		maxMatches:          utils.GetEnvAsInt("CLUSTER_MAX_MATCHES", 100, log),
		similarityThreshold: utils.GetEnvAsFloat("CLUSTER_SIMILARITY_THRESHOLD", 90, log),
	}
}

type clusterMember struct {
	face       *types.DetectedFace
	similarity float64
}

func (s *clusterService) ClusterGallery(ctx context.Context, galleryID uuid.UUID) (int, error) {
	if err := s.galleryRepo.UpdateStatus(ctx, nil, galleryID, types.GalleryStatusClustering); err != nil {
		return 0, fmt.Errorf("mark gallery clustering: %w", err)
	}

	gallery, err := s.galleryRepo.GetByID(ctx, nil, galleryID)
	if err != nil {
		return 0, fmt.Errorf("load gallery %s: %w", galleryID, err)
	}
	if gallery.CollectionID == "" {
		return 0, fmt.Errorf("gallery %s has no face collection", galleryID)
	}

	faces, err := s.faceRepo.GetUnclusteredByGalleryID(ctx, nil, galleryID)
	if err != nil {
		return 0, fmt.Errorf("load unclustered faces: %w", err)
	}
	if len(faces) == 0 {
		return 0, nil
	}

	faceByHandle := make(map[string]*types.DetectedFace, len(faces))
	for _, face := range faces {
		faceByHandle[face.FaceID] = face
	}

	grouped := make(map[string]bool, len(faces))
	clusterCount := 0

	for _, seed := range faces {
		if grouped[seed.FaceID] {
			continue
		}

		// A failed search degrades to "no similar faces": the seed still
		// gets its own singleton cluster and the pass continues.
		matches, err := s.recognition.SearchFacesByFaceID(ctx, gallery.CollectionID, seed.FaceID, s.maxMatches, s.similarityThreshold)
		if err != nil {
			s.log.Error("Similarity search failed", "face_id", seed.FaceID, "error", err)
			matches = nil
		}

		members := []clusterMember{{face: seed, similarity: seedSimilarity}}
		grouped[seed.FaceID] = true

		for _, match := range matches {
			if grouped[match.FaceID] {
				continue
			}
			face, ok := faceByHandle[match.FaceID]
			if !ok {
				continue
			}
			members = append(members, clusterMember{face: face, similarity: match.Similarity})
			grouped[match.FaceID] = true
		}

		clusterCount++
		cluster, err := s.clusterRepo.Create(ctx, nil, &types.FaceCluster{
			GalleryID:         galleryID,
			AutoLabel:         fmt.Sprintf("Person %d", clusterCount),
			FaceCount:         len(members),
			RepresentativeURL: representativeURL(seed),
		})
		if err != nil {
			return 0, fmt.Errorf("create cluster %d: %w", clusterCount, err)
		}

		for _, member := range members {
			if err := s.faceRepo.AssignCluster(ctx, nil, member.face.ID, cluster.ID, member.similarity); err != nil {
				return 0, fmt.Errorf("assign face %s to cluster %s: %w", member.face.ID, cluster.ID, err)
			}
		}

		s.log.Debug("Created cluster", "gallery_id", galleryID, "label", cluster.AutoLabel, "faces", len(members))
	}

	if err := s.galleryRepo.SetTotalClusters(ctx, nil, galleryID, clusterCount); err != nil {
		return 0, fmt.Errorf("persist cluster total: %w", err)
	}

	s.log.Info("Clustered gallery", "gallery_id", galleryID, "faces", len(faces), "clusters", clusterCount)
	return clusterCount, nil
}

func representativeURL(seed *types.DetectedFace) string {
	if seed.ThumbnailURL != "" {
		return seed.ThumbnailURL
	}
	if seed.Image != nil {
		return seed.Image.ImageURL
	}
	return ""
}
