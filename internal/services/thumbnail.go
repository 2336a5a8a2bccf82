package services

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	// Decoders for the gallery's accepted upload formats.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/eventpilot/gallery-backend/internal/clients/aws"
)

const (
	galleryThumbMaxWidth  = 600
	galleryThumbMaxHeight = 600
	faceThumbSize         = 200
	thumbJPEGQuality      = 85

	// Padding added around a face bounding box on each side, as a fraction
	// of the box's own width/height.
	faceCropPadding = 0.2
)

// ThumbnailService produces the reduced JPEG renditions stored next to
// gallery originals: whole-image thumbnails for the grid view and padded
// square crops for individual faces.
type ThumbnailService interface {
	Generate(data []byte) ([]byte, error)
	GenerateFaceCrop(data []byte, box aws.BoundingBox) ([]byte, error)
}

type thumbnailService struct{}

func NewThumbnailService() ThumbnailService {
	return &thumbnailService{}
}

// Generate resizes the image to fit within the gallery thumbnail box without
// upscaling and re-encodes it as JPEG.
func (s *thumbnailService) Generate(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	thumb := imaging.Fit(img, galleryThumbMaxWidth, galleryThumbMaxHeight, imaging.Lanczos)
	return encodeJPEG(thumb)
}

// GenerateFaceCrop cuts the padded face region out of the source image and
// scales it to a square cover-fit thumbnail.
func (s *thumbnailService) GenerateFaceCrop(data []byte, box aws.BoundingBox) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	region := faceCropRegion(bounds.Dx(), bounds.Dy(), box)
	if region.Empty() {
		return nil, fmt.Errorf("face bounding box %+v maps to an empty region in a %dx%d image", box, bounds.Dx(), bounds.Dy())
	}

	cropped := imaging.Crop(img, region)
	thumb := imaging.Fill(cropped, faceThumbSize, faceThumbSize, imaging.Center, imaging.Lanczos)
	return encodeJPEG(thumb)
}

// faceCropRegion converts a normalized bounding box to pixels, expands it by
// faceCropPadding on each side, and clamps the result to the image bounds.
func faceCropRegion(imgWidth, imgHeight int, box aws.BoundingBox) image.Rectangle {
	left := int((box.Left - faceCropPadding*box.Width) * float64(imgWidth))
	top := int((box.Top - faceCropPadding*box.Height) * float64(imgHeight))
	if left < 0 {
		left = 0
	}
	if top < 0 {
		top = 0
	}

	width := int(box.Width * (1 + 2*faceCropPadding) * float64(imgWidth))
	height := int(box.Height * (1 + 2*faceCropPadding) * float64(imgHeight))
	if width > imgWidth-left {
		width = imgWidth - left
	}
	if height > imgHeight-top {
		height = imgHeight - top
	}

	return image.Rect(left, top, left+width, top+height)
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(thumbJPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
