package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/ekisa-team/speakpaint/internal/telemetry"
)

const (
	generatedPrefix   = "/generated/"
	readHeaderTimeout = 10 * time.Second
)

// Options wires the router to the application services.
type Options struct {
	Transcriber       Transcriber
	Images            ImageGenerator
	Status            StatusReporter
	Metrics           *telemetry.Metrics
	GeneratedDir      string
	RequestsPerMinute int
	Version           string
}

// NewRouter builds the HTTP handler: the JSON API, the front-end page and
// the generated images folder.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(withBaseURL)

	if opts.RequestsPerMinute > 0 {
		r.Use(limitPosts(opts.RequestsPerMinute))
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}

	cfg := huma.DefaultConfig("speakpaint", version)
	cfg.Info.Description = "Speak a description, get a picture."
	cfg.CreateHooks = nil
	api := humachi.New(r, cfg)

	NewTranscribeHandler(api, opts.Transcriber)
	NewGenerateHandler(api, opts.Images)
	NewHealthHandler(api, opts.Status)

	r.Get("/", serveIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", noDirListing(staticFiles())))
	r.Handle(generatedPrefix+"*", http.StripPrefix(generatedPrefix, noDirListing(http.FileServer(http.Dir(opts.GeneratedDir)))))

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Not found")
	})

	return r
}

// limitPosts applies a per-IP rate limit to inference requests only.
func limitPosts(requestsPerMinute int) func(http.Handler) http.Handler {
	limiter := httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeJSONError(w, http.StatusTooManyRequests, "Too many requests")
		}),
	)

	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs every request and records it in metrics under its route pattern.
func requestLogger(metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			metrics.RecordHTTPRequest(r.Method, route, status, elapsed)

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			slog.Log(r.Context(), level, "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", elapsed,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// Server runs the HTTP listener.
type Server struct {
	srv *http.Server
}

// NewServer creates a server bound to addr. There is no write timeout since
// image generation can take minutes on CPU.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
