package app

import (
	"gorm.io/gorm"

	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/services"
)

type Services struct {
	Thumbnail services.ThumbnailService
	Transfer  services.TransferService
	Indexer   services.IndexerService
	Cluster   services.ClusterService
	Matcher   services.MatcherService
	Pipeline  services.PipelineService
}

func wireServices(db *gorm.DB, log *logger.Logger, reposet Repos, clients Clients) Services {
	thumbnail := services.NewThumbnailService()
	transfer := services.NewTransferService(
		db, log, reposet.Gallery, reposet.GalleryImage,
		clients.Folders, clients.Storage, thumbnail, clients.Progress,
	)
	indexer := services.NewIndexerService(
		db, log, reposet.Gallery, reposet.GalleryImage, reposet.DetectedFace,
		clients.Recognition, clients.Storage, thumbnail,
	)
	cluster := services.NewClusterService(
		db, log, reposet.Gallery, reposet.FaceCluster, reposet.DetectedFace,
		clients.Recognition,
	)
	matcher := services.NewMatcherService(
		db, log, reposet.Gallery, reposet.FaceCluster, reposet.DetectedFace,
		reposet.Registration, clients.Recognition,
	)
	pipeline := services.NewPipelineService(
		db, log, reposet.Gallery, indexer, cluster, matcher, clients.Recognition,
	)

	return Services{
		Thumbnail: thumbnail,
		Transfer:  transfer,
		Indexer:   indexer,
		Cluster:   cluster,
		Matcher:   matcher,
		Pipeline:  pipeline,
	}
}
