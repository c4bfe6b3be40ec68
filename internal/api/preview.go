package api

import (
	"bytes"
	"context"
	"image/png"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/screenrec/internal/api/models"
)

// registerPreviewRoutes registers the preview snapshot endpoint.
func (s *Server) registerPreviewRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-preview",
		Method:      http.MethodGet,
		Path:        "/api/preview.png",
		Summary:     "Preview Snapshot",
		Description: "PNG of the last frame presented to the live preview, or to the recording preview while recording",
		Tags:        []string{"preview"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.PreviewResponse, error) {
		comp := s.session.Composition()
		if comp == nil {
			return nil, huma.Error404NotFound("No preview")
		}
		img, ok := comp.Snapshot()
		if !ok {
			return nil, huma.Error404NotFound("Preview has not presented a frame yet")
		}

		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, huma.Error500InternalServerError("Failed to encode preview", err)
		}
		return &models.PreviewResponse{
			ContentType:  "image/png",
			CacheControl: "no-store",
			Body:         buf.Bytes(),
		}, nil
	})
}
