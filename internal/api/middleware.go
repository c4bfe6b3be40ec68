package api

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/screenrec/internal/logging"
)

// polledPaths are fetched repeatedly by front ends and logged at debug.
var polledPaths = []string{
	"/api/preview.png",
	"/api/recording",
	"/api/health",
}

// HTTPLoggingMiddleware logs HTTP requests with a level chosen by status code.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	method := ctx.Method()
	path := ctx.URL().Path

	attrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if query := ctx.URL().RawQuery; query != "" && !strings.Contains(query, "auth=") {
		attrs = append(attrs, slog.String("query", query))
	}

	next(ctx)

	status := ctx.Status()
	attrs = append(attrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)

	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	case method == http.MethodGet && slices.Contains(polledPaths, path):
		level = slog.LevelDebug
	}
	logger.LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
}
