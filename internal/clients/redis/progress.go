package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/utils"
)

type ImportStatus string

const (
	ImportStatusImporting ImportStatus = "importing"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusCancelled ImportStatus = "cancelled"
	ImportStatusFailed    ImportStatus = "failed"
)

// ImportProgress is the live state of one gallery's folder import, shared
// across instances so any node can answer progress reads or flag a cancel.
type ImportProgress struct {
	GalleryID   string       `json:"gallery_id"`
	Total       int          `json:"total"`
	Imported    int          `json:"imported"`
	Failed      int          `json:"failed"`
	Skipped     int          `json:"skipped"`
	Status      ImportStatus `json:"status"`
	Cancelled   bool         `json:"cancelled"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

type ProgressStore interface {
	Start(ctx context.Context, galleryID string, total, skipped int) error
	AddImported(ctx context.Context, galleryID string) error
	AddFailed(ctx context.Context, galleryID string) error
	Complete(ctx context.Context, galleryID string) error
	Fail(ctx context.Context, galleryID string) error
	Cancel(ctx context.Context, galleryID string) error
	IsCancelled(ctx context.Context, galleryID string) bool
	Get(ctx context.Context, galleryID string) (*ImportProgress, error)
	Close() error
}

type progressStore struct {
	log *logger.Logger
	rdb *goredis.Client
}

// Completed entries linger briefly so the UI can show the final tally.
const completedTTL = 5 * time.Minute

func NewProgressStore(log *logger.Logger) (ProgressStore, error) {
	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		return nil, fmt.Errorf("missing env var REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &progressStore{
		log: log.With("client", "ImportProgressStore"),
		rdb: rdb,
	}, nil
}

func progressKey(galleryID string) string {
	return "gallery:import:" + galleryID
}

func (s *progressStore) Start(ctx context.Context, galleryID string, total, skipped int) error {
	return s.write(ctx, &ImportProgress{
		GalleryID: galleryID,
		Total:     total,
		Skipped:   skipped,
		Status:    ImportStatusImporting,
		StartedAt: time.Now(),
	}, 0)
}

func (s *progressStore) AddImported(ctx context.Context, galleryID string) error {
	return s.update(ctx, galleryID, func(p *ImportProgress) { p.Imported++ })
}

func (s *progressStore) AddFailed(ctx context.Context, galleryID string) error {
	return s.update(ctx, galleryID, func(p *ImportProgress) { p.Failed++ })
}

func (s *progressStore) Complete(ctx context.Context, galleryID string) error {
	return s.finish(ctx, galleryID, ImportStatusCompleted)
}

func (s *progressStore) Fail(ctx context.Context, galleryID string) error {
	return s.finish(ctx, galleryID, ImportStatusFailed)
}

func (s *progressStore) Cancel(ctx context.Context, galleryID string) error {
	return s.update(ctx, galleryID, func(p *ImportProgress) {
		p.Cancelled = true
		p.Status = ImportStatusCancelled
		now := time.Now()
		p.CompletedAt = &now
	})
}

func (s *progressStore) IsCancelled(ctx context.Context, galleryID string) bool {
	p, err := s.Get(ctx, galleryID)
	if err != nil || p == nil {
		return false
	}
	return p.Cancelled
}

func (s *progressStore) Get(ctx context.Context, galleryID string) (*ImportProgress, error) {
	raw, err := s.rdb.Get(ctx, progressKey(galleryID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read import progress: %w", err)
	}
	var p ImportProgress
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode import progress: %w", err)
	}
	return &p, nil
}

func (s *progressStore) Close() error {
	return s.rdb.Close()
}

func (s *progressStore) finish(ctx context.Context, galleryID string, status ImportStatus) error {
	return s.update(ctx, galleryID, func(p *ImportProgress) {
		p.Status = status
		now := time.Now()
		p.CompletedAt = &now
	})
}

func (s *progressStore) update(ctx context.Context, galleryID string, mutate func(*ImportProgress)) error {
	p, err := s.Get(ctx, galleryID)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	mutate(p)
	ttl := time.Duration(0)
	if p.Status != ImportStatusImporting {
		ttl = completedTTL
	}
	return s.write(ctx, p, ttl)
}

func (s *progressStore) write(ctx context.Context, p *ImportProgress, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode import progress: %w", err)
	}
	if err := s.rdb.Set(ctx, progressKey(p.GalleryID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("write import progress: %w", err)
	}
	return nil
}
