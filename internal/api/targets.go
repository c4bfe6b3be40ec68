package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/screenrec/internal/api/models"
	"github.com/smazurov/screenrec/internal/capture"
	"github.com/smazurov/screenrec/internal/session"
)

// registerTargetRoutes registers display listing and target selection.
func (s *Server) registerTargetRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-displays",
		Method:      http.MethodGet,
		Path:        "/api/displays",
		Summary:     "List Displays",
		Description: "List the displays that can be selected as capture targets",
		Tags:        []string{"targets"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.DisplayListResponse, error) {
		displays := s.options.Displays()
		data := make([]models.DisplayData, len(displays))
		for i, d := range displays {
			data[i] = models.DisplayData{
				Index:   d.Index,
				Name:    d.Name,
				Primary: d.Primary,
				Width:   d.Width,
				Height:  d.Height,
				X:       d.X,
				Y:       d.Y,
			}
		}
		return &models.DisplayListResponse{
			Body: models.DisplayListData{Displays: data, Count: len(data)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-target",
		Method:      http.MethodGet,
		Path:        "/api/target",
		Summary:     "Get Target",
		Description: "Get the selected capture target and its preview state",
		Tags:        []string{"targets"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.TargetResponse, error) {
		target := s.session.Target()
		if target == nil {
			return nil, huma.Error404NotFound("No capture target selected")
		}
		return &models.TargetResponse{Body: s.targetData(target)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "select-target",
		Method:      http.MethodPut,
		Path:        "/api/target",
		Summary:     "Select Target",
		Description: "Select a display or the test pattern as capture target and start its preview",
		Tags:        []string{"targets"},
		Errors:      []int{400, 401, 404, 409, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.TargetRequest) (*models.TargetResponse, error) {
		target, err := s.resolveTarget(input.Body)
		if err != nil {
			return nil, err
		}
		if err := s.session.SelectTarget(target); err != nil {
			return nil, s.mapSessionError(err)
		}
		return &models.TargetResponse{Body: s.targetData(target)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "clear-target",
		Method:      http.MethodDelete,
		Path:        "/api/target",
		Summary:     "Clear Target",
		Description: "Stop the preview and deselect the capture target",
		Tags:        []string{"targets"},
		Errors:      []int{401, 409},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*struct{}, error) {
		if err := s.session.ClearTarget(); err != nil {
			return nil, s.mapSessionError(err)
		}
		return &struct{}{}, nil
	})
}

func (s *Server) resolveTarget(req models.TargetRequestData) (capture.Target, error) {
	if req.Source != s.options.Source {
		return nil, huma.Error400BadRequest(fmt.Sprintf("capture source %q is not enabled, this server captures from %q", req.Source, s.options.Source))
	}

	switch req.Source {
	case SourceTest:
		if s.options.TestTarget == nil {
			return nil, huma.Error400BadRequest("test source has no target")
		}
		return s.options.TestTarget, nil
	default:
		for _, d := range s.options.Displays() {
			if d.Index == req.Display {
				return d, nil
			}
		}
		return nil, huma.Error404NotFound(fmt.Sprintf("display %d not found", req.Display))
	}
}

func (s *Server) targetData(target capture.Target) models.TargetData {
	size := target.Size()
	data := models.TargetData{
		ID:     target.ID(),
		Name:   target.DisplayName(),
		Width:  size.Width,
		Height: size.Height,
	}
	if p := s.session.Preview(); p != nil && p.Target() == target {
		data.Preview = string(p.State())
	}
	return data
}

// mapSessionError converts session errors to HTTP errors.
func (s *Server) mapSessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrNoTarget):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, session.ErrRecordingActive):
		return huma.Error409Conflict(err.Error())
	default:
		s.logger.Error("Session operation failed", "error", err)
		return huma.Error500InternalServerError(err.Error())
	}
}
