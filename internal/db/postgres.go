package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/types"
	"github.com/eventpilot/gallery-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "eventpilot", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	serviceLog.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) DB() *gorm.DB { return s.db }

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.User{},
		&types.Session{},
		&types.Registration{},
		&types.Gallery{},
		&types.GalleryImage{},
		&types.DetectedFace{},
		&types.FaceCluster{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	// Gallery teardown relies on the store cascading image, face, and cluster
	// rows when the gallery row is deleted.
	constraints := []struct {
		name string
		sql  string
	}{
		{"fk_registration_session_id", `
			ALTER TABLE "registration"
			ADD CONSTRAINT "fk_registration_session_id"
			FOREIGN KEY ("session_id") REFERENCES "session"("id")
			ON DELETE CASCADE`},
		{"fk_registration_user_id", `
			ALTER TABLE "registration"
			ADD CONSTRAINT "fk_registration_user_id"
			FOREIGN KEY ("user_id") REFERENCES "user"("id")
			ON DELETE CASCADE`},
		{"fk_gallery_session_id", `
			ALTER TABLE "gallery"
			ADD CONSTRAINT "fk_gallery_session_id"
			FOREIGN KEY ("session_id") REFERENCES "session"("id")
			ON DELETE CASCADE`},
		{"fk_gallery_image_gallery_id", `
			ALTER TABLE "gallery_image"
			ADD CONSTRAINT "fk_gallery_image_gallery_id"
			FOREIGN KEY ("gallery_id") REFERENCES "gallery"("id")
			ON DELETE CASCADE`},
		{"fk_detected_face_image_id", `
			ALTER TABLE "detected_face"
			ADD CONSTRAINT "fk_detected_face_image_id"
			FOREIGN KEY ("image_id") REFERENCES "gallery_image"("id")
			ON DELETE CASCADE`},
		{"fk_detected_face_cluster_id", `
			ALTER TABLE "detected_face"
			ADD CONSTRAINT "fk_detected_face_cluster_id"
			FOREIGN KEY ("cluster_id") REFERENCES "face_cluster"("id")
			ON DELETE SET NULL`},
		{"fk_face_cluster_gallery_id", `
			ALTER TABLE "face_cluster"
			ADD CONSTRAINT "fk_face_cluster_gallery_id"
			FOREIGN KEY ("gallery_id") REFERENCES "gallery"("id")
			ON DELETE CASCADE`},
		{"fk_face_cluster_user_id", `
			ALTER TABLE "face_cluster"
			ADD CONSTRAINT "fk_face_cluster_user_id"
			FOREIGN KEY ("user_id") REFERENCES "user"("id")
			ON DELETE SET NULL`},
	}

	for _, c := range constraints {
		var exists bool
		s.db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)`, c.name).Scan(&exists)
		if exists {
			continue
		}
		if err := s.db.Exec(c.sql).Error; err != nil {
			s.log.Error("Failed to add foreign key constraint", "constraint", c.name, "error", err)
			return err
		}
	}
	return nil
}
