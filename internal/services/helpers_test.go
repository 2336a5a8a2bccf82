package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/eventpilot/gallery-backend/internal/clients/aws"
	"github.com/eventpilot/gallery-backend/internal/clients/google"
	"github.com/eventpilot/gallery-backend/internal/clients/redis"
	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/repos"
	"github.com/eventpilot/gallery-backend/internal/types"
)

type testEnv struct {
	db            *gorm.DB
	log           *logger.Logger
	galleries     repos.GalleryRepo
	images        repos.GalleryImageRepo
	faces         repos.DetectedFaceRepo
	clusters      repos.FaceClusterRepo
	registrations repos.RegistrationRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&types.User{},
		&types.Session{},
		&types.Registration{},
		&types.Gallery{},
		&types.GalleryImage{},
		&types.DetectedFace{},
		&types.FaceCluster{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	log := logger.NewNop()
	return &testEnv{
		db:            db,
		log:           log,
		galleries:     repos.NewGalleryRepo(db, log),
		images:        repos.NewGalleryImageRepo(db, log),
		faces:         repos.NewDetectedFaceRepo(db, log),
		clusters:      repos.NewFaceClusterRepo(db, log),
		registrations: repos.NewRegistrationRepo(db, log),
	}
}

func createSession(t *testing.T, env *testEnv) *types.Session {
	t.Helper()
	session := &types.Session{Name: "Test Session", StartsAt: time.Now()}
	if err := env.db.Create(session).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func createGallery(t *testing.T, env *testEnv, status types.GalleryStatus, collectionID string) *types.Gallery {
	t.Helper()
	session := createSession(t, env)
	gallery := &types.Gallery{SessionID: session.ID, Status: status, CollectionID: collectionID}
	if _, err := env.galleries.Create(context.Background(), nil, gallery); err != nil {
		t.Fatalf("create gallery: %v", err)
	}
	return gallery
}

var createSeq int

func createImage(t *testing.T, env *testEnv, galleryID uuid.UUID, filename string, status types.GalleryImageStatus) *types.GalleryImage {
	t.Helper()
	createSeq++
	img := &types.GalleryImage{
		GalleryID:     galleryID,
		StorageKey:    fmt.Sprintf("galleries/%s/%s", galleryID, filename),
		StorageBucket: "test-bucket",
		Filename:      filename,
		ContentType:   "image/png",
		Status:        status,
		CreatedAt:     time.Unix(1700000000, int64(createSeq)*1e6),
	}
	if _, err := env.images.Create(context.Background(), nil, img); err != nil {
		t.Fatalf("create image: %v", err)
	}
	return img
}

func createFace(t *testing.T, env *testEnv, imageID uuid.UUID, faceID string) *types.DetectedFace {
	t.Helper()
	createSeq++
	face := &types.DetectedFace{
		ImageID:           imageID,
		FaceID:            faceID,
		BoundingBoxTop:    0.1,
		BoundingBoxLeft:   0.1,
		BoundingBoxWidth:  0.2,
		BoundingBoxHeight: 0.2,
		Confidence:        99,
		CreatedAt:         time.Unix(1700000000, int64(createSeq)*1e6),
	}
	if _, err := env.faces.Create(context.Background(), nil, face); err != nil {
		t.Fatalf("create face: %v", err)
	}
	return face
}

func makePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

type fakeRecognition struct {
	mu        sync.Mutex
	created   []string
	deleted   []string
	createErr error
	deleteErr error

	indexFn         func(collectionID, bucket, key, externalImageID string) ([]aws.IndexedFace, error)
	searchByFaceFn  func(collectionID, faceID string, maxFaces int, threshold float64) ([]aws.FaceMatch, error)
	searchByImageFn func(collectionID string, imageBytes []byte, maxFaces int, threshold float64) ([]aws.FaceMatch, error)
}

func (f *fakeRecognition) CreateCollection(ctx context.Context, collectionID string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, collectionID)
	return nil
}

func (f *fakeRecognition) DeleteCollection(ctx context.Context, collectionID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, collectionID)
	return nil
}

func (f *fakeRecognition) IndexFaces(ctx context.Context, collectionID, bucket, key, externalImageID string) ([]aws.IndexedFace, error) {
	if f.indexFn == nil {
		return nil, nil
	}
	return f.indexFn(collectionID, bucket, key, externalImageID)
}

func (f *fakeRecognition) SearchFacesByFaceID(ctx context.Context, collectionID, faceID string, maxFaces int, threshold float64) ([]aws.FaceMatch, error) {
	if f.searchByFaceFn == nil {
		return nil, nil
	}
	return f.searchByFaceFn(collectionID, faceID, maxFaces, threshold)
}

func (f *fakeRecognition) SearchFacesByImageBytes(ctx context.Context, collectionID string, imageBytes []byte, maxFaces int, threshold float64) ([]aws.FaceMatch, error) {
	if f.searchByImageFn == nil {
		return nil, nil
	}
	return f.searchByImageFn(collectionID, imageBytes, maxFaces, threshold)
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	warmed  []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (s *fakeStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *fakeStorage) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return data, nil
}

func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) Bucket() string { return "test-bucket" }

func (s *fakeStorage) PublicURL(key string) string { return "https://cdn.test/" + key }

func (s *fakeStorage) WarmCache(ctx context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warmed = append(s.warmed, key)
}

type fakeFolders struct {
	files      []google.DriveFile
	listErr    error
	downloads  map[string][]byte
	downloadFn func(fileID string, attempt int) ([]byte, error)
	attempts   map[string]int
}

func (f *fakeFolders) ListImages(ctx context.Context, folderID string) ([]google.DriveFile, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.files, nil
}

func (f *fakeFolders) Download(ctx context.Context, fileID string) ([]byte, error) {
	if f.attempts == nil {
		f.attempts = map[string]int{}
	}
	f.attempts[fileID]++
	if f.downloadFn != nil {
		return f.downloadFn(fileID, f.attempts[fileID])
	}
	data, ok := f.downloads[fileID]
	if !ok {
		return nil, fmt.Errorf("unknown file %s", fileID)
	}
	return data, nil
}

type fakeProgress struct {
	mu      sync.Mutex
	entries map[string]*redis.ImportProgress

	// cancelAfterImported flips IsCancelled once that many files imported.
	cancelAfterImported int
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{entries: map[string]*redis.ImportProgress{}}
}

func (p *fakeProgress) Start(ctx context.Context, galleryID string, total, skipped int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[galleryID] = &redis.ImportProgress{
		GalleryID: galleryID,
		Total:     total,
		Skipped:   skipped,
		Status:    redis.ImportStatusImporting,
		StartedAt: time.Now(),
	}
	return nil
}

func (p *fakeProgress) AddImported(ctx context.Context, galleryID string) error {
	return p.mutate(galleryID, func(e *redis.ImportProgress) { e.Imported++ })
}

func (p *fakeProgress) AddFailed(ctx context.Context, galleryID string) error {
	return p.mutate(galleryID, func(e *redis.ImportProgress) { e.Failed++ })
}

func (p *fakeProgress) Complete(ctx context.Context, galleryID string) error {
	return p.mutate(galleryID, func(e *redis.ImportProgress) { e.Status = redis.ImportStatusCompleted })
}

func (p *fakeProgress) Fail(ctx context.Context, galleryID string) error {
	return p.mutate(galleryID, func(e *redis.ImportProgress) { e.Status = redis.ImportStatusFailed })
}

func (p *fakeProgress) Cancel(ctx context.Context, galleryID string) error {
	return p.mutate(galleryID, func(e *redis.ImportProgress) {
		e.Cancelled = true
		e.Status = redis.ImportStatusCancelled
	})
}

func (p *fakeProgress) IsCancelled(ctx context.Context, galleryID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[galleryID]
	if !ok {
		return false
	}
	if e.Cancelled {
		return true
	}
	return p.cancelAfterImported > 0 && e.Imported >= p.cancelAfterImported
}

func (p *fakeProgress) Get(ctx context.Context, galleryID string) (*redis.ImportProgress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[galleryID], nil
}

func (p *fakeProgress) Close() error { return nil }

func (p *fakeProgress) mutate(galleryID string, fn func(*redis.ImportProgress)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[galleryID]; ok {
		fn(e)
	}
	return nil
}
