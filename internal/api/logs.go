package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/screenrec/internal/api/models"
	"github.com/smazurov/screenrec/internal/events"
	"github.com/smazurov/screenrec/internal/logging"
)

// registerLogRoutes registers the log history and log streaming endpoints.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "List Logs",
		Description: "Recent log entries from the in-memory history",
		Tags:        []string{"logs"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, input *struct {
		Limit int    `query:"limit" minimum:"0" maximum:"1000" default:"100" doc:"Maximum number of entries, 0 for all"`
		Since uint64 `query:"since" doc:"Only entries with a greater sequence number"`
	}) (*models.LogListResponse, error) {
		var entries []logging.LogEntry
		if buffer := logging.GetBuffer(); buffer != nil {
			if input.Since > 0 {
				entries = buffer.Since(input.Since)
			} else {
				entries = buffer.ReadAll()
			}
		}
		if input.Limit > 0 && len(entries) > input.Limit {
			entries = entries[len(entries)-input.Limit:]
		}
		if entries == nil {
			entries = []logging.LogEntry{}
		}
		return &models.LogListResponse{
			Body: models.LogListData{Entries: entries, Count: len(entries)},
		}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing written in between is lost;
		// the sequence number drops entries seen in both.
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		var last uint64
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				if err := send.Data(LogEvent(entry)); err != nil {
					return
				}
				last = entry.Seq
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if e, ok := event.(events.LogEntryEvent); ok && e.Seq <= last {
					continue
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

// LogEvent converts a log entry to its bus event.
func LogEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}
