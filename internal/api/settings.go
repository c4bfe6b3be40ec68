package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/screenrec/internal/api/models"
)

// registerSettingsRoutes registers the saved recording settings endpoints.
func (s *Server) registerSettingsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/api/settings",
		Summary:     "Get Settings",
		Description: "Get the default recording settings",
		Tags:        []string{"settings"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.SettingsResponse, error) {
		return &models.SettingsResponse{Body: s.session.Settings().Get()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPut,
		Path:        "/api/settings",
		Summary:     "Update Settings",
		Description: "Replace and persist the default recording settings",
		Tags:        []string{"settings"},
		Errors:      []int{400, 401, 422, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.SettingsRequest) (*models.SettingsResponse, error) {
		if err := input.Body.Validate(); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		if err := s.session.UpdateSettings(input.Body); err != nil {
			s.logger.Error("Failed to save settings", "error", err)
			return nil, huma.Error500InternalServerError("Failed to save settings", err)
		}
		return &models.SettingsResponse{Body: s.session.Settings().Get()}, nil
	})
}
