package services

import (
	"context"
	"errors"
	"testing"

	"github.com/eventpilot/gallery-backend/internal/clients/aws"
	"github.com/eventpilot/gallery-backend/internal/types"
)

func newClusterForTest(env *testEnv, recognition *fakeRecognition) ClusterService {
	return NewClusterService(env.db, env.log, env.galleries, env.clusters, env.faces, recognition)
}

func TestClusterGalleryGroupsSimilarFaces(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gallery := createGallery(t, env, types.GalleryStatusProcessing, "col-1")

	img1 := createImage(t, env, gallery.ID, "one.jpg", types.GalleryImageStatusCompleted)
	img2 := createImage(t, env, gallery.ID, "two.jpg", types.GalleryImageStatusCompleted)
	img3 := createImage(t, env, gallery.ID, "three.jpg", types.GalleryImageStatusCompleted)
	faceA := createFace(t, env, img1.ID, "face-a")
	faceB := createFace(t, env, img2.ID, "face-b")
	faceC := createFace(t, env, img3.ID, "face-c")

	recognition := &fakeRecognition{
		searchByFaceFn: func(collectionID, faceID string, maxFaces int, threshold float64) ([]aws.FaceMatch, error) {
			if maxFaces != 100 || threshold != 90 {
				t.Fatalf("search params = %d/%v, want 100/90", maxFaces, threshold)
			}
			switch faceID {
			case "face-a":
				return []aws.FaceMatch{{FaceID: "face-b", Similarity: 95.5}}, nil
			default:
				return nil, nil
			}
		},
	}
	svc := newClusterForTest(env, recognition)

	count, err := svc.ClusterGallery(ctx, gallery.ID)
	if err != nil {
		t.Fatalf("ClusterGallery: %v", err)
	}
	if count != 2 {
		t.Fatalf("cluster count = %d, want 2", count)
	}

	clusters, err := env.clusters.GetByGalleryID(ctx, nil, gallery.ID)
	if err != nil {
		t.Fatalf("load clusters: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("cluster rows = %d, want 2", len(clusters))
	}
	if clusters[0].AutoLabel != "Person 1" || clusters[1].AutoLabel != "Person 2" {
		t.Fatalf("labels = %q, %q", clusters[0].AutoLabel, clusters[1].AutoLabel)
	}
	if clusters[0].FaceCount != 2 || clusters[1].FaceCount != 1 {
		t.Fatalf("face counts = %d, %d, want 2 and 1", clusters[0].FaceCount, clusters[1].FaceCount)
	}

	// Every face ends up in exactly one cluster.
	for _, seed := range []*types.DetectedFace{faceA, faceB, faceC} {
		reloaded, err := env.faces.GetByID(ctx, nil, seed.ID)
		if err != nil {
			t.Fatalf("load face: %v", err)
		}
		if reloaded.ClusterID == nil {
			t.Fatalf("face %s left unclustered", seed.FaceID)
		}
		if reloaded.ClusterSimilarity == nil {
			t.Fatalf("face %s has no similarity", seed.FaceID)
		}
		switch seed.FaceID {
		case "face-a", "face-c":
			if *reloaded.ClusterSimilarity != 100 {
				t.Errorf("seed %s similarity = %v, want 100", seed.FaceID, *reloaded.ClusterSimilarity)
			}
		case "face-b":
			if *reloaded.ClusterSimilarity != 95.5 {
				t.Errorf("member similarity = %v, want 95.5", *reloaded.ClusterSimilarity)
			}
		}
	}

	g, _ := env.galleries.GetByID(ctx, nil, gallery.ID)
	if g.TotalClusters != 2 {
		t.Fatalf("total_clusters = %d, want 2", g.TotalClusters)
	}
}

func TestClusterGalleryDegradesFailedSearchToSingleton(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gallery := createGallery(t, env, types.GalleryStatusProcessing, "col-1")

	img := createImage(t, env, gallery.ID, "one.jpg", types.GalleryImageStatusCompleted)
	faceA := createFace(t, env, img.ID, "face-a")
	faceB := createFace(t, env, img.ID, "face-b")

	recognition := &fakeRecognition{
		searchByFaceFn: func(collectionID, faceID string, maxFaces int, threshold float64) ([]aws.FaceMatch, error) {
			if faceID == "face-a" {
				return nil, errors.New("ProvisionedThroughputExceededException")
			}
			return nil, nil
		},
	}
	svc := newClusterForTest(env, recognition)

	count, err := svc.ClusterGallery(ctx, gallery.ID)
	if err != nil {
		t.Fatalf("ClusterGallery returned an error despite degraded search: %v", err)
	}
	if count != 2 {
		t.Fatalf("cluster count = %d, want 2 singletons", count)
	}

	for _, face := range []*types.DetectedFace{faceA, faceB} {
		reloaded, _ := env.faces.GetByID(ctx, nil, face.ID)
		if reloaded.ClusterID == nil {
			t.Fatalf("face %s left unclustered", face.FaceID)
		}
	}
}

func TestClusterGalleryWithNoFaces(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gallery := createGallery(t, env, types.GalleryStatusProcessing, "col-1")

	svc := newClusterForTest(env, &fakeRecognition{})
	count, err := svc.ClusterGallery(ctx, gallery.ID)
	if err != nil {
		t.Fatalf("ClusterGallery: %v", err)
	}
	if count != 0 {
		t.Fatalf("cluster count = %d, want 0", count)
	}

	g, _ := env.galleries.GetByID(ctx, nil, gallery.ID)
	if g.Status != types.GalleryStatusClustering {
		t.Fatalf("gallery status = %s, want clustering", g.Status)
	}
}

func TestClusterGalleryNeverMovesClusteredFaces(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gallery := createGallery(t, env, types.GalleryStatusProcessing, "col-1")
	img := createImage(t, env, gallery.ID, "one.jpg", types.GalleryImageStatusCompleted)

	// face-a already belongs to a cluster from an earlier pass.
	faceA := createFace(t, env, img.ID, "face-a")
	existing, err := env.clusters.Create(ctx, nil, &types.FaceCluster{GalleryID: gallery.ID, AutoLabel: "Person 1", FaceCount: 1})
	if err != nil {
		t.Fatalf("create cluster: %v", err)
	}
	if err := env.faces.AssignCluster(ctx, nil, faceA.ID, existing.ID, 100); err != nil {
		t.Fatalf("assign cluster: %v", err)
	}

	faceB := createFace(t, env, img.ID, "face-b")
	recognition := &fakeRecognition{
		searchByFaceFn: func(collectionID, faceID string, maxFaces int, threshold float64) ([]aws.FaceMatch, error) {
			// The collection still knows face-a and reports it similar.
			return []aws.FaceMatch{{FaceID: "face-a", Similarity: 99}}, nil
		},
	}
	svc := newClusterForTest(env, recognition)

	if _, err := svc.ClusterGallery(ctx, gallery.ID); err != nil {
		t.Fatalf("ClusterGallery: %v", err)
	}

	reloadedA, _ := env.faces.GetByID(ctx, nil, faceA.ID)
	if reloadedA.ClusterID == nil || *reloadedA.ClusterID != existing.ID {
		t.Fatal("previously clustered face was reassigned")
	}
	reloadedB, _ := env.faces.GetByID(ctx, nil, faceB.ID)
	if reloadedB.ClusterID == nil || *reloadedB.ClusterID == existing.ID {
		t.Fatal("new face should have formed its own cluster")
	}
}
