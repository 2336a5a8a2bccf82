package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/eventpilot/gallery-backend/internal/clients/aws"
	"github.com/eventpilot/gallery-backend/internal/types"
)

func newMatcherForTest(env *testEnv, recognition *fakeRecognition) MatcherService {
	return NewMatcherService(env.db, env.log, env.galleries, env.clusters, env.faces, env.registrations, recognition)
}

func createAttendee(t *testing.T, env *testEnv, sessionID uuid.UUID, email, avatarURL string) *types.User {
	t.Helper()
	user := &types.User{Email: email, FirstName: "Test", AvatarURL: avatarURL}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	reg := &types.Registration{SessionID: sessionID, UserID: user.ID, Attended: true}
	if err := env.db.Create(reg).Error; err != nil {
		t.Fatalf("create registration: %v", err)
	}
	return user
}

func createClusterWithFace(t *testing.T, env *testEnv, galleryID, imageID uuid.UUID, label, faceID string) *types.FaceCluster {
	t.Helper()
	cluster, err := env.clusters.Create(context.Background(), nil, &types.FaceCluster{
		GalleryID: galleryID,
		AutoLabel: label,
		FaceCount: 1,
	})
	if err != nil {
		t.Fatalf("create cluster: %v", err)
	}
	face := createFace(t, env, imageID, faceID)
	if err := env.faces.AssignCluster(context.Background(), nil, face.ID, cluster.ID, 100); err != nil {
		t.Fatalf("assign face: %v", err)
	}
	return cluster
}

func TestMatchClustersAllowsOneAttendeeInManyClusters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gallery := createGallery(t, env, types.GalleryStatusClustering, "col-1")
	img := createImage(t, env, gallery.ID, "one.jpg", types.GalleryImageStatusCompleted)

	avatarServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("avatar-bytes"))
	}))
	defer avatarServer.Close()

	attendee := createAttendee(t, env, gallery.SessionID, "ana@example.com", avatarServer.URL+"/ana.jpg")
	c1 := createClusterWithFace(t, env, gallery.ID, img.ID, "Person 1", "face-1")
	c2 := createClusterWithFace(t, env, gallery.ID, img.ID, "Person 2", "face-2")
	empty, err := env.clusters.Create(ctx, nil, &types.FaceCluster{GalleryID: gallery.ID, AutoLabel: "Person 3"})
	if err != nil {
		t.Fatalf("create empty cluster: %v", err)
	}

	recognition := &fakeRecognition{
		searchByImageFn: func(collectionID string, imageBytes []byte, maxFaces int, threshold float64) ([]aws.FaceMatch, error) {
			if maxFaces != 5 || threshold != 80 {
				t.Fatalf("search params = %d/%v, want 5/80", maxFaces, threshold)
			}
			if string(imageBytes) != "avatar-bytes" {
				t.Fatalf("unexpected avatar payload %q", imageBytes)
			}
			// Both clusters contain a face resembling the same attendee.
			return []aws.FaceMatch{
				{FaceID: "face-1", Similarity: 92},
				{FaceID: "face-2", Similarity: 88},
			}, nil
		},
	}
	svc := newMatcherForTest(env, recognition)

	result, err := svc.MatchClusters(ctx, gallery.ID)
	if err != nil {
		t.Fatalf("MatchClusters: %v", err)
	}
	if result.Matched != 2 || result.Unmatched != 0 {
		t.Fatalf("result = %+v, want 2 matched 0 unmatched", result)
	}

	r1, _ := env.clusters.GetByID(ctx, nil, c1.ID)
	r2, _ := env.clusters.GetByID(ctx, nil, c2.ID)
	if r1.UserID == nil || *r1.UserID != attendee.ID {
		t.Fatal("cluster 1 not matched to the attendee")
	}
	if r2.UserID == nil || *r2.UserID != attendee.ID {
		t.Fatal("cluster 2 not matched to the same attendee")
	}
	if r1.MatchConfidence == nil || *r1.MatchConfidence != 92 {
		t.Fatalf("cluster 1 confidence = %v, want 92", r1.MatchConfidence)
	}
	if r2.MatchConfidence == nil || *r2.MatchConfidence != 88 {
		t.Fatalf("cluster 2 confidence = %v, want 88", r2.MatchConfidence)
	}

	// A cluster with no members is skipped, not counted either way.
	rEmpty, _ := env.clusters.GetByID(ctx, nil, empty.ID)
	if rEmpty.UserID != nil {
		t.Fatal("empty cluster should not match")
	}

	g, _ := env.galleries.GetByID(ctx, nil, gallery.ID)
	if g.Status != types.GalleryStatusMatching {
		t.Fatalf("gallery status = %s, want matching", g.Status)
	}
}

func TestMatchClustersPicksHighestSimilarity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gallery := createGallery(t, env, types.GalleryStatusClustering, "col-1")
	img := createImage(t, env, gallery.ID, "one.jpg", types.GalleryImageStatusCompleted)

	avatarServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer avatarServer.Close()

	createAttendee(t, env, gallery.SessionID, "weak@example.com", avatarServer.URL+"/weak.jpg")
	strong := createAttendee(t, env, gallery.SessionID, "strong@example.com", avatarServer.URL+"/strong.jpg")
	cluster := createClusterWithFace(t, env, gallery.ID, img.ID, "Person 1", "face-1")

	recognition := &fakeRecognition{
		searchByImageFn: func(collectionID string, imageBytes []byte, maxFaces int, threshold float64) ([]aws.FaceMatch, error) {
			if string(imageBytes) == "/strong.jpg" {
				return []aws.FaceMatch{{FaceID: "face-1", Similarity: 97}}, nil
			}
			return []aws.FaceMatch{{FaceID: "face-1", Similarity: 85}}, nil
		},
	}
	svc := newMatcherForTest(env, recognition)

	result, err := svc.MatchClusters(ctx, gallery.ID)
	if err != nil {
		t.Fatalf("MatchClusters: %v", err)
	}
	if result.Matched != 1 {
		t.Fatalf("matched = %d, want 1", result.Matched)
	}

	reloaded, _ := env.clusters.GetByID(ctx, nil, cluster.ID)
	if reloaded.UserID == nil || *reloaded.UserID != strong.ID {
		t.Fatalf("matched user = %v, want the higher-similarity attendee %s", reloaded.UserID, strong.ID)
	}
	if *reloaded.MatchConfidence != 97 {
		t.Fatalf("confidence = %v, want 97", *reloaded.MatchConfidence)
	}
}

func TestMatchClustersSkipsFailingAttendees(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gallery := createGallery(t, env, types.GalleryStatusClustering, "col-1")
	img := createImage(t, env, gallery.ID, "one.jpg", types.GalleryImageStatusCompleted)

	avatarServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer avatarServer.Close()

	createAttendee(t, env, gallery.SessionID, "gone@example.com", avatarServer.URL+"/gone.jpg")
	cluster := createClusterWithFace(t, env, gallery.ID, img.ID, "Person 1", "face-1")

	svc := newMatcherForTest(env, &fakeRecognition{})

	result, err := svc.MatchClusters(ctx, gallery.ID)
	if err != nil {
		t.Fatalf("MatchClusters failed on a bad avatar: %v", err)
	}
	if result.Matched != 0 || result.Unmatched != 1 {
		t.Fatalf("result = %+v, want 0 matched 1 unmatched", result)
	}

	reloaded, _ := env.clusters.GetByID(ctx, nil, cluster.ID)
	if reloaded.UserID != nil {
		t.Fatal("cluster matched despite the avatar failure")
	}
}

func TestMatchClustersIgnoresNonAttendees(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gallery := createGallery(t, env, types.GalleryStatusClustering, "col-1")
	img := createImage(t, env, gallery.ID, "one.jpg", types.GalleryImageStatusCompleted)

	// Registered but never checked in, so not a candidate.
	user := &types.User{Email: "noshow@example.com", AvatarURL: "https://example.com/a.jpg"}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	reg := &types.Registration{SessionID: gallery.SessionID, UserID: user.ID, Attended: false}
	if err := env.db.Create(reg).Error; err != nil {
		t.Fatalf("create registration: %v", err)
	}
	cluster := createClusterWithFace(t, env, gallery.ID, img.ID, "Person 1", "face-1")

	svc := newMatcherForTest(env, &fakeRecognition{
		searchByImageFn: func(collectionID string, imageBytes []byte, maxFaces int, threshold float64) ([]aws.FaceMatch, error) {
			t.Fatal("search called for a non-attendee")
			return nil, nil
		},
	})

	result, err := svc.MatchClusters(ctx, gallery.ID)
	if err != nil {
		t.Fatalf("MatchClusters: %v", err)
	}
	if result.Unmatched != 1 {
		t.Fatalf("unmatched = %d, want 1", result.Unmatched)
	}
	reloaded, _ := env.clusters.GetByID(ctx, nil, cluster.ID)
	if reloaded.UserID != nil {
		t.Fatal("cluster matched a no-show")
	}
}
