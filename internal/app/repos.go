package app

import (
	"gorm.io/gorm"

	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/repos"
)

type Repos struct {
	Gallery      repos.GalleryRepo
	GalleryImage repos.GalleryImageRepo
	DetectedFace repos.DetectedFaceRepo
	FaceCluster  repos.FaceClusterRepo
	Registration repos.RegistrationRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Gallery:      repos.NewGalleryRepo(db, log),
		GalleryImage: repos.NewGalleryImageRepo(db, log),
		DetectedFace: repos.NewDetectedFaceRepo(db, log),
		FaceCluster:  repos.NewFaceClusterRepo(db, log),
		Registration: repos.NewRegistrationRepo(db, log),
	}
}
