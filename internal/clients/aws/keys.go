package aws

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// GalleryImageKey builds the storage key for an ingested photo:
// galleries/{galleryID}/{unixMillis}-{sanitizedFilename}.
func GalleryImageKey(galleryID uuid.UUID, filename string) string {
	sanitized := unsafeKeyChars.ReplaceAllString(filename, "_")
	return fmt.Sprintf("galleries/%s/%d-%s", galleryID, time.Now().UnixMilli(), sanitized)
}

// FaceThumbnailKey builds the storage key for a face crop, deterministic in
// the gallery, image, and the face's ordinal within that image.
func FaceThumbnailKey(galleryID, imageID uuid.UUID, faceIndex int) string {
	return fmt.Sprintf("galleries/%s/faces/%s-face-%d.jpg", galleryID, imageID, faceIndex)
}

// ThumbnailKey derives the gallery-thumbnail key by inserting a thumbs/
// segment before the filename:
// galleries/abc/123-image.jpg -> galleries/abc/thumbs/123-image.jpg.
func ThumbnailKey(originalKey string) string {
	idx := strings.LastIndex(originalKey, "/")
	if idx < 0 {
		return "thumbs/" + originalKey
	}
	return originalKey[:idx] + "/thumbs/" + originalKey[idx+1:]
}
