package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/screenrec/internal/events"
)

// StreamOpened is the first message on every event stream.
type StreamOpened struct {
	Status string `json:"status" example:"connected" doc:"Always connected"`
}

// registerSSERoutes registers the application event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of target selection, preview state, recording and settings changes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"target-selected":       events.TargetSelectedEvent{},
		"target-cleared":        events.TargetClearedEvent{},
		"preview-state-changed": events.PreviewStateChangedEvent{},
		"recording-started":     events.RecordingStartedEvent{},
		"recording-finished":    events.RecordingFinishedEvent{},
		"settings-changed":      events.SettingsChangedEvent{},
		"connected":             StreamOpened{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.TargetSelectedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.TargetClearedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PreviewStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingStartedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingFinishedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SettingsChangedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		if err := send.Data(StreamOpened{Status: "connected"}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
