package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventpilot/gallery-backend/internal/clients/aws"
	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/repos"
	"github.com/eventpilot/gallery-backend/internal/types"
	"github.com/eventpilot/gallery-backend/internal/utils"
)

// MatchResult counts one identity-matching pass.
type MatchResult struct {
	Matched   int
	Unmatched int
}

// MatcherService associates face clusters with known attendees by searching
// the gallery's collection with each attendee's profile photo. Matching is a
// per-cluster arg-max over candidate similarities; nothing stops two clusters
// from matching the same attendee.
type MatcherService interface {
	MatchClusters(ctx context.Context, galleryID uuid.UUID) (*MatchResult, error)
}

type matcherService struct {
	db           *gorm.DB
	log          *logger.Logger
	galleryRepo  repos.GalleryRepo
	clusterRepo  repos.FaceClusterRepo
	faceRepo     repos.DetectedFaceRepo
	registration repos.RegistrationRepo
	recognition  aws.RecognitionClient
	httpClient   *http.Client

	maxMatches          int
	similarityThreshold float64
}

func NewMatcherService(
	db *gorm.DB,
	log *logger.Logger,
	galleryRepo repos.GalleryRepo,
	clusterRepo repos.FaceClusterRepo,
	faceRepo repos.DetectedFaceRepo,
	registration repos.RegistrationRepo,
	recognition aws.RecognitionClient,
) MatcherService {
	return &matcherService{
		db:           db,
		log:          log.With("service", "MatcherService"),
		galleryRepo:  galleryRepo,
		clusterRepo:  clusterRepo,
		faceRepo:     faceRepo,
		registration: registration,
		recognition:  recognition,
		httpClient:   &http.Client{Timeout: 30 * time.Second},

		maxMatches:          utils.GetEnvAsInt("MATCH_MAX_MATCHES", 5, log),
		similarityThreshold: utils.GetEnvAsFloat("MATCH_SIMILARITY_THRESHOLD", 80, log),
	}
}

type matchCandidate struct {
	userID     uuid.UUID
	similarity float64
}

func (s *matcherService) MatchClusters(ctx context.Context, galleryID uuid.UUID) (*MatchResult, error) {
	if err := s.galleryRepo.UpdateStatus(ctx, nil, galleryID, types.GalleryStatusMatching); err != nil {
		return nil, fmt.Errorf("mark gallery matching: %w", err)
	}

	gallery, err := s.galleryRepo.GetByID(ctx, nil, galleryID)
	if err != nil {
		return nil, fmt.Errorf("load gallery %s: %w", galleryID, err)
	}
	if gallery.CollectionID == "" {
		return nil, fmt.Errorf("gallery %s has no face collection", galleryID)
	}

	attendees, err := s.registration.GetAttendeesWithAvatars(ctx, nil, gallery.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load attendee roster: %w", err)
	}

	clusters, err := s.clusterRepo.GetUnmatchedByGalleryID(ctx, nil, galleryID)
	if err != nil {
		return nil, fmt.Errorf("load unmatched clusters: %w", err)
	}

	result := &MatchResult{}
	for _, cluster := range clusters {
		members, err := s.faceRepo.GetByClusterID(ctx, nil, cluster.ID)
		if err != nil {
			return nil, fmt.Errorf("load cluster members: %w", err)
		}
		if len(members) == 0 {
			continue
		}
		memberHandles := make(map[string]bool, len(members))
		for _, face := range members {
			memberHandles[face.FaceID] = true
		}

		var best *matchCandidate
		for _, attendee := range attendees {
			// A failed avatar fetch or search just removes this attendee
			// from candidacy for this cluster.
			avatar, err := s.fetchAvatar(ctx, attendee.AvatarURL)
			if err != nil {
				s.log.Warn("Avatar fetch failed", "user_id", attendee.ID, "error", err)
				continue
			}
			matches, err := s.recognition.SearchFacesByImageBytes(ctx, gallery.CollectionID, avatar, s.maxMatches, s.similarityThreshold)
			if err != nil {
				s.log.Warn("Avatar similarity search failed", "user_id", attendee.ID, "error", err)
				continue
			}
			for _, match := range matches {
				if !memberHandles[match.FaceID] {
					continue
				}
				if best == nil || match.Similarity > best.similarity {
					best = &matchCandidate{userID: attendee.ID, similarity: match.Similarity}
				}
			}
		}

		if best == nil {
			result.Unmatched++
			continue
		}
		if err := s.clusterRepo.SetMatch(ctx, nil, cluster.ID, best.userID, best.similarity); err != nil {
			return nil, fmt.Errorf("record match for cluster %s: %w", cluster.ID, err)
		}
		result.Matched++
	}

	s.log.Info("Matched clusters", "gallery_id", galleryID, "matched", result.Matched, "unmatched", result.Unmatched)
	return result, nil
}

func (s *matcherService) fetchAvatar(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("avatar fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
