package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/eventpilot/gallery-backend/internal/logger"
	"github.com/eventpilot/gallery-backend/internal/utils"
)

// DriveFile is one image file in a shared folder.
type DriveFile struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
}

// FolderClient lists and downloads image files from a publicly shared
// Google Drive folder.
type FolderClient interface {
	ListImages(ctx context.Context, folderID string) ([]DriveFile, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
}

type folderClient struct {
	log *logger.Logger
	svc *drive.Service
}

func NewFolderClient(ctx context.Context, log *logger.Logger) (FolderClient, error) {
	apiKey := utils.GetEnv("GOOGLE_API_KEY", "", log)
	if apiKey == "" {
		return nil, fmt.Errorf("missing env var GOOGLE_API_KEY")
	}
	svc, err := drive.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &folderClient{
		log: log.With("client", "DriveFolderClient"),
		svc: svc,
	}, nil
}

var folderIDPattern = regexp.MustCompile(`folders/([a-zA-Z0-9_-]+)`)

// ExtractFolderID pulls the folder id out of a shared-folder URL. It handles
// the /drive/folders/, /drive/u/N/folders/, and ?usp=sharing variants.
func ExtractFolderID(url string) string {
	m := folderIDPattern.FindStringSubmatch(url)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// IsRateLimited reports whether err is the throttling/permission-denial class
// of Drive failure that is worth retrying with backoff.
func IsRateLimited(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == 403 || apiErr.Code == 429
}

func (c *folderClient) ListImages(ctx context.Context, folderID string) ([]DriveFile, error) {
	query := fmt.Sprintf(
		"'%s' in parents and (mimeType='image/jpeg' or mimeType='image/png' or mimeType='image/webp') and trashed=false",
		folderID,
	)

	var files []DriveFile
	pageToken := ""
	for {
		call := c.svc.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, mimeType, size)").
			PageSize(100).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list folder %s: %w", folderID, err)
		}
		for _, f := range resp.Files {
			if f.Id == "" || f.Name == "" {
				continue
			}
			files = append(files, DriveFile{
				ID:       f.Id,
				Name:     f.Name,
				MimeType: f.MimeType,
				Size:     f.Size,
			})
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	c.log.Debug("Listed folder images", "folder_id", folderID, "count", len(files))
	return files, nil
}

func (c *folderClient) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", fileID, err)
	}
	return data, nil
}
