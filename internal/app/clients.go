package app

import (
	"context"
	"fmt"

	"github.com/eventpilot/gallery-backend/internal/clients/aws"
	"github.com/eventpilot/gallery-backend/internal/clients/google"
	"github.com/eventpilot/gallery-backend/internal/clients/redis"
	"github.com/eventpilot/gallery-backend/internal/logger"
)

type Clients struct {
	Recognition aws.RecognitionClient
	Storage     aws.ObjectStorage
	Folders     google.FolderClient
	Progress    redis.ProgressStore
}

func wireClients(ctx context.Context, log *logger.Logger) (Clients, error) {
	recognition, err := aws.NewRecognitionClient(ctx, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init recognition client: %w", err)
	}
	storage, err := aws.NewObjectStorage(ctx, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init object storage: %w", err)
	}
	folders, err := google.NewFolderClient(ctx, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init drive client: %w", err)
	}
	progress, err := redis.NewProgressStore(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init progress store: %w", err)
	}
	return Clients{
		Recognition: recognition,
		Storage:     storage,
		Folders:     folders,
		Progress:    progress,
	}, nil
}
