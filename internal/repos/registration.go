package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/types"
)

type RegistrationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, registration *types.Registration) (*types.Registration, error)
	// GetAttendeesWithAvatars returns users who attended the session and have
	// a profile photo on file, the candidate pool for identity matching.
	GetAttendeesWithAvatars(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.User, error)
}

type registrationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRegistrationRepo(db *gorm.DB, baseLog *logger.Logger) RegistrationRepo {
	return &registrationRepo{db: db, log: baseLog.With("repo", "RegistrationRepo")}
}

func (r *registrationRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *registrationRepo) Create(ctx context.Context, tx *gorm.DB, registration *types.Registration) (*types.Registration, error) {
	if err := r.conn(tx).WithContext(ctx).Create(registration).Error; err != nil {
		return nil, err
	}
	return registration, nil
}

func (r *registrationRepo) GetAttendeesWithAvatars(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.User, error) {
	var users []*types.User
	if err := r.conn(tx).WithContext(ctx).
		Model(&types.User{}).
		Joins(`JOIN registration ON registration.user_id = "user".id`).
		Where("registration.session_id = ? AND registration.attended = ?", sessionID, true).
		Where(`"user".avatar_url <> ''`).
		Order(`"user".created_at ASC`).
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
