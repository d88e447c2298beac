package extract

import (
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/domain/chat"
)

// VisionEngine performs OCR on images via Google Cloud Vision. When no
// credentials are configured the engine stays registered but reports
// ErrEngineUnavailable, so callers see a deterministic failure kind.
type VisionEngine struct {
	client *vision.ImageAnnotatorClient
}

func NewVisionEngine(ctx context.Context) *VisionEngine {
	creds := config.GetVisionCredentials()
	if creds == "" {
		log.Warn().Msg("Vision OCR not configured - image extraction will be unavailable")
		return &VisionEngine{}
	}

	var opts []option.ClientOption
	if strings.HasPrefix(creds, "{") {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	} else {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize Vision OCR client")
		return &VisionEngine{}
	}

	return &VisionEngine{client: client}
}

func (e *VisionEngine) Extract(ctx context.Context, data []byte) (string, error) {
	if e == nil || e.client == nil {
		return "", chat.ErrEngineUnavailable
	}
	if len(data) == 0 {
		return "", nil
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: data},
			Features: []*visionpb.Feature{
				{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
			},
		}},
	}

	resp, err := e.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision annotate: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", fmt.Errorf("vision annotate: %s", r0.Error.Message)
	}
	if r0.FullTextAnnotation == nil {
		return "", nil
	}

	return r0.FullTextAnnotation.Text, nil
}

func (e *VisionEngine) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	return e.client.Close()
}
