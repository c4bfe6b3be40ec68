package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/screenrec/internal/api/models"
	"github.com/smazurov/screenrec/internal/capture"
	"github.com/smazurov/screenrec/internal/encoder"
	"github.com/smazurov/screenrec/internal/events"
	"github.com/smazurov/screenrec/internal/logging"
	"github.com/smazurov/screenrec/internal/preview"
	"github.com/smazurov/screenrec/internal/session"
	"github.com/smazurov/screenrec/internal/settings"
	"github.com/smazurov/screenrec/internal/surface"
	"github.com/smazurov/screenrec/internal/version"
)

// Capture source kinds accepted by PUT /api/target.
const (
	SourceScreen = "screen"
	SourceTest   = "test"
)

// Controller is the session surface the API drives. *session.Controller
// satisfies it.
type Controller interface {
	SelectTarget(target capture.Target) error
	ClearTarget() error
	Target() capture.Target
	Preview() *preview.Preview
	Composition() *surface.Composition
	Recording() *session.Recording
	StartRecording(ctx context.Context, opts *encoder.Options) (*session.Recording, error)
	StopRecording() *session.Recording
	Settings() *settings.Store
	UpdateSettings(s settings.Settings) error
}

var _ Controller = (*session.Controller)(nil)

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string
	Session      Controller
	EventBus     *events.Bus

	// Source is the capture source the process was started with.
	Source string
	// TestTarget is selected for the test source.
	TestTarget capture.Target
	// Displays lists screen targets. Defaults to capture.ListDisplays.
	Displays func() []*capture.Display

	PrometheusHandler http.Handler // Optional Prometheus metrics handler
}

// Server is the HTTP control surface.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	session    Controller
	eventBus   *events.Bus
	options    *Options
	logger     *slog.Logger

	// ctx outlives requests; recordings started over HTTP run under it.
	ctx    context.Context
	cancel context.CancelFunc
	saveMu sync.Mutex
}

// basicAuthMiddleware creates middleware for HTTP basic authentication
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		// Skip auth for operations without security requirements
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		encoded := ""
		if authHeader := ctx.Header("Authorization"); authHeader != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(authHeader, prefix) {
				s.unauthorized(ctx, "Invalid authentication type")
				return
			}
			encoded = authHeader[len(prefix):]
		} else {
			// EventSource cannot set headers, so SSE clients pass ?auth=
			encoded = ctx.Query("auth")
		}
		if encoded == "" {
			s.unauthorized(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			s.unauthorized(ctx, "Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok {
			s.unauthorized(ctx, "Invalid credentials format")
			return
		}
		if subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			s.unauthorized(ctx, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

func (s *Server) unauthorized(ctx huma.Context, msg string, errs ...error) {
	ctx.SetHeader("WWW-Authenticate", `Basic realm="screenrec"`)
	_ = huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
}

// NewServer creates the API server on a Go 1.22+ ServeMux.
func NewServer(opts *Options) *Server {
	if opts.Displays == nil {
		opts.Displays = capture.ListDisplays
	}
	if opts.Source == "" {
		opts.Source = SourceScreen
	}

	mux := http.NewServeMux()

	config := huma.DefaultConfig("screenrec API", version.String())
	config.Info.Description = "Screen capture preview and recording control"
	// Empty servers list will make OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		api:      api,
		mux:      mux,
		session:  opts.Session,
		eventBus: opts.EventBus,
		options:  opts,
		logger:   logging.GetLogger("api"),
		ctx:      ctx,
		cancel:   cancel,
	}

	api.UseMiddleware(HTTPLoggingMiddleware)

	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Prometheus scrapes without credentials
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves HTTP on addr until Stop.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting screenrec API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and cancels recordings started over HTTP.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	s.cancel()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// registerRoutes sets up all API endpoints
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{}, // Empty security = no auth required
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		return &models.VersionResponse{Body: version.Get()}, nil
	})

	s.registerTargetRoutes()
	s.registerRecordingRoutes()
	s.registerSettingsRoutes()
	s.registerPreviewRoutes()
	s.registerLogRoutes()
	s.registerSSERoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
