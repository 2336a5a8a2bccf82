package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/eventpilot/gallery-backend/internal/logger"
)

// MaxImageBytes is the largest image payload the recognition service accepts.
const MaxImageBytes = 5 * 1024 * 1024

type BoundingBox struct {
	Top    float64
	Left   float64
	Width  float64
	Height float64
}

type Pose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// IndexedFace is one face the recognition service detected and stored in a
// collection. FaceID is the opaque handle used by all later similarity calls.
type IndexedFace struct {
	FaceID      string
	BoundingBox BoundingBox
	Confidence  float64
	Brightness  *float64
	Sharpness   *float64
	Pose        *Pose
}

type FaceMatch struct {
	FaceID          string
	Similarity      float64
	ExternalImageID string
}

// RecognitionClient is the face collection surface of the recognition
// service: create/delete a named collection, index the faces found in a
// stored image, and search a collection by face handle or by query image
// bytes with a similarity threshold.
type RecognitionClient interface {
	CreateCollection(ctx context.Context, collectionID string) error
	DeleteCollection(ctx context.Context, collectionID string) error
	IndexFaces(ctx context.Context, collectionID, bucket, key, externalImageID string) ([]IndexedFace, error)
	SearchFacesByFaceID(ctx context.Context, collectionID, faceID string, maxFaces int, similarityThreshold float64) ([]FaceMatch, error)
	SearchFacesByImageBytes(ctx context.Context, collectionID string, imageBytes []byte, maxFaces int, similarityThreshold float64) ([]FaceMatch, error)
}

type recognitionClient struct {
	log    *logger.Logger
	client *rekognition.Client
}

func NewRecognitionClient(ctx context.Context, log *logger.Logger) (RecognitionClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &recognitionClient{
		log:    log.With("client", "RecognitionClient"),
		client: rekognition.NewFromConfig(cfg),
	}, nil
}

// CreateCollection is idempotent: an already-existing collection is fine.
func (c *recognitionClient) CreateCollection(ctx context.Context, collectionID string) error {
	_, err := c.client.CreateCollection(ctx, &rekognition.CreateCollectionInput{
		CollectionId: aws.String(collectionID),
	})
	if err != nil {
		var exists *rektypes.ResourceAlreadyExistsException
		if errors.As(err, &exists) {
			c.log.Info("Collection already exists", "collection_id", collectionID)
			return nil
		}
		return fmt.Errorf("create collection %s: %w", collectionID, err)
	}
	c.log.Info("Created collection", "collection_id", collectionID)
	return nil
}

// DeleteCollection tolerates a collection that is already gone.
func (c *recognitionClient) DeleteCollection(ctx context.Context, collectionID string) error {
	_, err := c.client.DeleteCollection(ctx, &rekognition.DeleteCollectionInput{
		CollectionId: aws.String(collectionID),
	})
	if err != nil {
		var notFound *rektypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			c.log.Info("Collection not found", "collection_id", collectionID)
			return nil
		}
		return fmt.Errorf("delete collection %s: %w", collectionID, err)
	}
	c.log.Info("Deleted collection", "collection_id", collectionID)
	return nil
}

func (c *recognitionClient) IndexFaces(ctx context.Context, collectionID, bucket, key, externalImageID string) ([]IndexedFace, error) {
	out, err := c.client.IndexFaces(ctx, &rekognition.IndexFacesInput{
		CollectionId: aws.String(collectionID),
		Image: &rektypes.Image{
			S3Object: &rektypes.S3Object{
				Bucket: aws.String(bucket),
				Name:   aws.String(key),
			},
		},
		ExternalImageId:     aws.String(externalImageID),
		DetectionAttributes: []rektypes.Attribute{rektypes.AttributeAll},
		MaxFaces:            aws.Int32(100),
		QualityFilter:       rektypes.QualityFilterAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("index faces for %s: %w", key, err)
	}

	faces := make([]IndexedFace, 0, len(out.FaceRecords))
	for _, record := range out.FaceRecords {
		if record.Face == nil || record.Face.FaceId == nil || record.Face.BoundingBox == nil {
			continue
		}
		box := record.Face.BoundingBox
		face := IndexedFace{
			FaceID: aws.ToString(record.Face.FaceId),
			BoundingBox: BoundingBox{
				Top:    float64(aws.ToFloat32(box.Top)),
				Left:   float64(aws.ToFloat32(box.Left)),
				Width:  float64(aws.ToFloat32(box.Width)),
				Height: float64(aws.ToFloat32(box.Height)),
			},
			Confidence: float64(aws.ToFloat32(record.Face.Confidence)),
		}
		if detail := record.FaceDetail; detail != nil {
			if detail.Quality != nil {
				if detail.Quality.Brightness != nil {
					b := float64(*detail.Quality.Brightness)
					face.Brightness = &b
				}
				if detail.Quality.Sharpness != nil {
					s := float64(*detail.Quality.Sharpness)
					face.Sharpness = &s
				}
			}
			if detail.Pose != nil {
				face.Pose = &Pose{
					Yaw:   float64(aws.ToFloat32(detail.Pose.Yaw)),
					Pitch: float64(aws.ToFloat32(detail.Pose.Pitch)),
					Roll:  float64(aws.ToFloat32(detail.Pose.Roll)),
				}
			}
		}
		faces = append(faces, face)
	}

	c.log.Debug("Indexed faces", "key", key, "count", len(faces))
	return faces, nil
}

func (c *recognitionClient) SearchFacesByFaceID(ctx context.Context, collectionID, faceID string, maxFaces int, similarityThreshold float64) ([]FaceMatch, error) {
	out, err := c.client.SearchFaces(ctx, &rekognition.SearchFacesInput{
		CollectionId:       aws.String(collectionID),
		FaceId:             aws.String(faceID),
		MaxFaces:           aws.Int32(int32(maxFaces)),
		FaceMatchThreshold: aws.Float32(float32(similarityThreshold)),
	})
	if err != nil {
		// The face handle not being in the collection means no matches, not
		// a failed search.
		var invalid *rektypes.InvalidParameterException
		if errors.As(err, &invalid) {
			return nil, nil
		}
		return nil, fmt.Errorf("search faces by face id %s: %w", faceID, err)
	}
	return toFaceMatches(out.FaceMatches), nil
}

func (c *recognitionClient) SearchFacesByImageBytes(ctx context.Context, collectionID string, imageBytes []byte, maxFaces int, similarityThreshold float64) ([]FaceMatch, error) {
	if len(imageBytes) > MaxImageBytes {
		return nil, fmt.Errorf("query image is %d bytes, recognition limit is %d", len(imageBytes), MaxImageBytes)
	}
	out, err := c.client.SearchFacesByImage(ctx, &rekognition.SearchFacesByImageInput{
		CollectionId:       aws.String(collectionID),
		Image:              &rektypes.Image{Bytes: imageBytes},
		MaxFaces:           aws.Int32(int32(maxFaces)),
		FaceMatchThreshold: aws.Float32(float32(similarityThreshold)),
	})
	if err != nil {
		// No detectable face in the query image.
		var invalid *rektypes.InvalidParameterException
		if errors.As(err, &invalid) {
			return nil, nil
		}
		return nil, fmt.Errorf("search faces by image bytes: %w", err)
	}
	return toFaceMatches(out.FaceMatches), nil
}

func toFaceMatches(matches []rektypes.FaceMatch) []FaceMatch {
	out := make([]FaceMatch, 0, len(matches))
	for _, m := range matches {
		if m.Face == nil || m.Face.FaceId == nil {
			continue
		}
		out = append(out, FaceMatch{
			FaceID:          aws.ToString(m.Face.FaceId),
			Similarity:      float64(aws.ToFloat32(m.Similarity)),
			ExternalImageID: aws.ToString(m.Face.ExternalImageId),
		})
	}
	return out
}
