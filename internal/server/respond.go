package server

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/pdforganizer/internal/filetype"
	"github.com/local/pdforganizer/internal/metrics"
	"github.com/local/pdforganizer/internal/organize"
	"github.com/local/pdforganizer/internal/tempstore"
)

const (
	headerPageCount     = "X-Page-Count"
	headerPageSelection = "X-Page-Selection"
)

// runFunc performs one operation on a parsed upload.
type runFunc func(ctx context.Context, scope *tempstore.Scope, in *upload) (*organize.Result, error)

// operation wraps run with the request lifecycle shared by every file
// endpoint: one scope per request released on every exit path, an activity
// hit, and metrics.
func (s *Server) operation(op string, kinds []filetype.Kind, run runFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		l := zerolog.Ctx(r.Context()).With().Str("op", op).Logger()
		ctx := l.WithContext(r.Context())
		r = r.WithContext(ctx)

		scope := s.deps.Store.NewScope()
		defer scope.Release()
		s.deps.Recorder.Hit()

		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody())
		res, err := s.runUpload(r, scope, kinds, run)
		if err != nil {
			metrics.ObserveOperation(op, resultLabel(err), time.Since(start))
			s.writeFailure(ctx, w, err)
			return
		}

		if err := sendResult(w, r, res); err != nil {
			l.Warn().Err(err).Msg("send result")
		}
		metrics.ObserveOperation(op, "ok", time.Since(start))
		metrics.AddPages(op, res.Pages)
		l.Info().Int("pages", res.Pages).Str("selection", res.Selection).Dur("took", time.Since(start)).Msg("operation complete")
	}
}

func (s *Server) runUpload(r *http.Request, scope *tempstore.Scope, kinds []filetype.Kind, run runFunc) (*organize.Result, error) {
	in, err := s.readUpload(r, scope, kinds)
	if err != nil {
		return nil, err
	}
	return run(r.Context(), scope, in)
}

// sendResult streams the output file as an attachment.
func sendResult(w http.ResponseWriter, r *http.Request, res *organize.Result) error {
	f, err := os.Open(res.File.Path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read the generated file.")
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read the generated file.")
		return err
	}

	h := w.Header()
	h.Set("Content-Type", res.ContentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.DownloadName}))
	h.Set("Cache-Control", "no-store")
	if res.Pages > 0 {
		h.Set(headerPageCount, strconv.Itoa(res.Pages))
	}
	if res.Selection != "" {
		h.Set(headerPageSelection, res.Selection)
	}
	http.ServeContent(w, r, res.DownloadName, info.ModTime(), f)
	return nil
}

// writeFailure maps typed errors to responses. Only ValidationError messages
// and the generic ProcessingError message ever reach the client.
func (s *Server) writeFailure(ctx context.Context, w http.ResponseWriter, err error) {
	l := zerolog.Ctx(ctx)
	var verr *organize.ValidationError
	var perr *organize.ProcessingError
	switch {
	case errors.Is(err, context.Canceled):
		// operations wrap ctx.Err() in a ProcessingError; nobody is listening
		l.Info().Err(err).Msg("client went away")
	case errors.As(err, &verr):
		l.Warn().Err(err).Int("status", verr.HTTPStatus()).Msg("request rejected")
		writeError(w, verr.HTTPStatus(), verr.Message)
	case errors.As(err, &perr):
		l.Error().Err(err).Msg("operation failed")
		writeError(w, http.StatusInternalServerError, perr.Message)
	default:
		l.Error().Err(err).Msg("unexpected error")
		writeError(w, http.StatusInternalServerError, "Internal server error.")
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case organize.IsValidation(err):
		return "invalid"
	default:
		return "failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
