// Package server exposes the organize and convert operations over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/local/pdforganizer/internal/config"
	"github.com/local/pdforganizer/internal/converter"
	"github.com/local/pdforganizer/internal/fetch"
	"github.com/local/pdforganizer/internal/filetype"
	"github.com/local/pdforganizer/internal/logger"
	"github.com/local/pdforganizer/internal/metrics"
	"github.com/local/pdforganizer/internal/organize"
	"github.com/local/pdforganizer/internal/stats"
	"github.com/local/pdforganizer/internal/statuscheck"
	"github.com/local/pdforganizer/internal/tempstore"
)

// Organizer runs the page operations. *organize.Service is the production
// implementation.
type Organizer interface {
	Merge(ctx context.Context, scope *tempstore.Scope, inputs []*tempstore.File) (*organize.Result, error)
	Split(ctx context.Context, scope *tempstore.Scope, inputs []*tempstore.File) (*organize.Result, error)
	Extract(ctx context.Context, scope *tempstore.Scope, inputs []*tempstore.File, spec string) (*organize.Result, error)
	Remove(ctx context.Context, scope *tempstore.Scope, inputs []*tempstore.File, spec string) (*organize.Result, error)
}

// Dependencies are the services a Server is built from.
type Dependencies struct {
	Store     *tempstore.Store
	Organizer Organizer
	Converter *converter.Service
	Detector  *filetype.Detector

	// Fetcher resolves file_url fields; nil disables remote inputs.
	Fetcher *fetch.Fetcher

	Recorder     stats.Recorder
	Counter      stats.Counter
	StatsTimeout time.Duration

	Status *statuscheck.Checker

	Upload         config.UploadConfig
	AllowedOrigins []string
	Service        string
	Version        string
}

// Server holds the HTTP handlers.
type Server struct {
	deps Dependencies
}

// New returns a Server. Missing optional dependencies get harmless defaults.
func New(deps Dependencies) *Server {
	if deps.Organizer == nil {
		deps.Organizer = organize.New()
	}
	if deps.Converter == nil {
		deps.Converter = converter.NewService(nil, nil)
	}
	if deps.Detector == nil {
		deps.Detector = filetype.New()
	}
	if deps.Recorder == nil {
		deps.Recorder = stats.Nop{}
	}
	if deps.StatsTimeout <= 0 {
		deps.StatsTimeout = 2 * time.Second
	}
	if deps.Upload.MaxFileBytes <= 0 {
		deps.Upload.MaxFileBytes = 10 << 20
	}
	if deps.Upload.MaxFiles <= 0 {
		deps.Upload.MaxFiles = 20
	}
	if len(deps.AllowedOrigins) == 0 {
		deps.AllowedOrigins = []string{"*"}
	}
	if deps.Service == "" {
		deps.Service = logger.ServiceName
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Server{deps: deps}
}

// RegisterRoutes adds every route to r. Subrouters do not inherit r's
// NotFound and MethodNotAllowed handlers, so each one gets its own.
func (s *Server) RegisterRoutes(r *mux.Router) {
	routeErrors(r)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := routeErrors(r.PathPrefix("/api").Subrouter())

	pdf := routeErrors(api.PathPrefix("/pdf").Subrouter())
	pdf.HandleFunc("/merge", s.operation(organize.OpMerge, kindsPDF, func(ctx context.Context, sc *tempstore.Scope, in *upload) (*organize.Result, error) {
		return s.deps.Organizer.Merge(ctx, sc, in.files)
	})).Methods(http.MethodPost)
	pdf.HandleFunc("/split", s.operation(organize.OpSplit, kindsPDF, func(ctx context.Context, sc *tempstore.Scope, in *upload) (*organize.Result, error) {
		return s.deps.Organizer.Split(ctx, sc, in.files)
	})).Methods(http.MethodPost)
	pdf.HandleFunc("/extract", s.operation(organize.OpExtract, kindsPDF, func(ctx context.Context, sc *tempstore.Scope, in *upload) (*organize.Result, error) {
		return s.deps.Organizer.Extract(ctx, sc, in.files, in.fields.Get("pages"))
	})).Methods(http.MethodPost)
	pdf.HandleFunc("/remove", s.operation(organize.OpRemove, kindsPDF, func(ctx context.Context, sc *tempstore.Scope, in *upload) (*organize.Result, error) {
		return s.deps.Organizer.Remove(ctx, sc, in.files, in.fields.Get("pages"))
	})).Methods(http.MethodPost)

	conv := routeErrors(api.PathPrefix("/convert").Subrouter())
	conv.HandleFunc("/jpg-to-pdf", s.operation(converter.OpImagesPDF, kindsImage, func(ctx context.Context, sc *tempstore.Scope, in *upload) (*organize.Result, error) {
		return s.deps.Converter.ImagesToPDF(ctx, sc, in.files)
	})).Methods(http.MethodPost)
	conv.HandleFunc("/pdf-to-jpg", s.operation(converter.OpPDFImages, kindsPDF, func(ctx context.Context, sc *tempstore.Scope, in *upload) (*organize.Result, error) {
		return s.deps.Converter.PDFToImages(ctx, sc, in.files)
	})).Methods(http.MethodPost)
	conv.HandleFunc("/word-to-pdf", s.operation(converter.OpWordToPDF, kindsWord, func(ctx context.Context, sc *tempstore.Scope, in *upload) (*organize.Result, error) {
		return s.deps.Converter.WordToPDF(ctx, sc, in.files)
	})).Methods(http.MethodPost)

	api.HandleFunc("/stats/global-activity", s.handleGlobalActivity).Methods(http.MethodGet)
	if s.deps.Status != nil {
		api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	}
}

// Handler returns the complete handler: routes, request middleware and CORS.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	s.RegisterRoutes(router)

	c := cors.New(cors.Options{
		AllowedOrigins: s.deps.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			requestIDHeader,
		},
		ExposedHeaders: []string{
			"Content-Disposition",
			headerPageCount,
			headerPageSelection,
			requestIDHeader,
		},
		MaxAge: 300,
	})

	return c.Handler(requestLogging(recoverer(router)))
}

func routeErrors(r *mux.Router) *mux.Router {
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": s.deps.Service,
		"status":  "running",
		"version": s.deps.Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary := s.deps.Status.Summary(r.Context())
	code := http.StatusOK
	if !summary.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, summary)
}

type activityResp struct {
	Total int64  `json:"total"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleGlobalActivity(w http.ResponseWriter, r *http.Request) {
	if s.deps.Counter == nil {
		writeJSON(w, http.StatusOK, activityResp{})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.deps.StatsTimeout)
	defer cancel()
	total, err := s.deps.Counter.Total(ctx)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("fetch activity total")
		writeJSON(w, http.StatusInternalServerError, activityResp{Error: "Failed to fetch stats"})
		return
	}
	writeJSON(w, http.StatusOK, activityResp{Total: total})
}
