package api

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/screenrec/internal/api/models"
	"github.com/smazurov/screenrec/internal/encoder"
	"github.com/smazurov/screenrec/internal/metrics"
	"github.com/smazurov/screenrec/internal/session"
)

// registerRecordingRoutes registers recording control endpoints.
func (s *Server) registerRecordingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-recording",
		Method:      http.MethodGet,
		Path:        "/api/recording",
		Summary:     "Get Recording",
		Description: "Get the current or most recent recording",
		Tags:        []string{"recording"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.RecordingResponse, error) {
		r := s.session.Recording()
		if r == nil {
			return nil, huma.Error404NotFound("No recording")
		}
		return &models.RecordingResponse{Body: recordingData(r)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "start-recording",
		Method:        http.MethodPost,
		Path:          "/api/recording",
		Summary:       "Start Recording",
		Description:   "Record the selected target. Without a body the saved settings are used; a body overrides and saves them.",
		Tags:          []string{"recording"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 409, 500},
		Security:      withAuth(),
	}, func(_ context.Context, input *models.RecordingRequest) (*models.RecordingResponse, error) {
		var opts *encoder.Options
		if input.Body != nil {
			o := s.requestOptions(*input.Body)
			opts = &o
		}

		r, err := s.session.StartRecording(s.ctx, opts)
		if err != nil {
			return nil, s.mapSessionError(err)
		}
		return &models.RecordingResponse{Body: recordingData(r)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-recording",
		Method:      http.MethodDelete,
		Path:        "/api/recording",
		Summary:     "Stop Recording",
		Description: "Stop the running recording and wait for the file to be finalized",
		Tags:        []string{"recording"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.RecordingResponse, error) {
		r := s.session.StopRecording()
		if r == nil {
			return nil, huma.Error404NotFound("No recording in progress")
		}
		select {
		case <-r.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &models.RecordingResponse{Body: recordingData(r)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "save-recording",
		Method:      http.MethodPost,
		Path:        "/api/recording/save",
		Summary:     "Save Recording",
		Description: "Move the finished recording from its temporary file to a destination",
		Tags:        []string{"recording"},
		Errors:      []int{400, 401, 404, 409, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.SaveRecordingRequest) (*models.SaveRecordingResponse, error) {
		res, err := s.finishedResult()
		if err != nil {
			return nil, err
		}

		dest := filepath.Clean(input.Body.Path)
		s.saveMu.Lock()
		defer s.saveMu.Unlock()
		if err := res.Save(dest); err != nil {
			s.logger.Error("Failed to save recording", "from", res.TempPath, "to", dest, "error", err)
			return nil, huma.Error500InternalServerError("Failed to save recording", err)
		}
		s.logger.Info("Recording saved", "path", dest)

		out := &models.SaveRecordingResponse{}
		out.Body.Path = dest
		return out, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "discard-recording",
		Method:      http.MethodDelete,
		Path:        "/api/recording/file",
		Summary:     "Discard Recording",
		Description: "Delete the temporary file of the finished recording",
		Tags:        []string{"recording"},
		Errors:      []int{401, 404, 409, 500},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*struct{}, error) {
		res, err := s.finishedResult()
		if err != nil {
			return nil, err
		}
		if err := res.Discard(); err != nil {
			return nil, huma.Error500InternalServerError("Failed to discard recording", err)
		}
		return &struct{}{}, nil
	})
}

// finishedResult returns the result of the most recent recording once it ended.
func (s *Server) finishedResult() (session.Result, error) {
	r := s.session.Recording()
	if r == nil {
		return session.Result{}, huma.Error404NotFound("No recording")
	}
	if !r.Finished() {
		return session.Result{}, huma.Error409Conflict("Recording is still in progress")
	}
	return r.Wait(), nil
}

// requestOptions merges a request over the saved settings.
func (s *Server) requestOptions(req models.RecordingRequestData) encoder.Options {
	opts := s.session.Settings().Get().Options()
	if req.Width > 0 && req.Height > 0 {
		opts.Width, opts.Height = req.Width, req.Height
	}
	if req.Bitrate > 0 {
		opts.Bitrate = req.Bitrate
	}
	if req.FrameRate > 0 {
		opts.FrameRate = req.FrameRate
	}
	if req.IncludeCursor != nil {
		opts.IncludeCursor = *req.IncludeCursor
	}
	return opts
}

func recordingData(r *session.Recording) models.RecordingData {
	target := r.Target()
	opts := r.Options()
	data := models.RecordingData{
		Status:     string(r.Status()),
		Recording:  !r.Finished(),
		TargetID:   target.ID(),
		TargetName: target.DisplayName(),
		TempPath:   r.TempPath(),
		Samples:    r.Samples(),
		StartedAt:  r.StartedAt(),
		Options: models.RecordingOptionsData{
			Width:         opts.Width,
			Height:        opts.Height,
			Bitrate:       opts.Bitrate,
			FrameRate:     opts.FrameRate,
			IncludeCursor: opts.IncludeCursor,
		},
	}
	if !r.Finished() {
		return data
	}

	res := r.Wait()
	result := &models.RecordingResultData{
		State:      string(res.State),
		Message:    res.Message,
		DurationMs: res.Duration.Milliseconds(),
		Samples:    res.Samples,
	}
	if stats := metrics.LastEncode(); stats != nil && stats.Samples == res.Samples {
		result.Frames = stats.Frames
		result.Duplicated = stats.Duplicated
		result.Skipped = stats.Skipped
		result.Speed = stats.Speed
	}
	data.Result = result
	return data
}
