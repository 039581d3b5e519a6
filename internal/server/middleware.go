package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-ID"

// requestLogging is the hlog chain: a request logger in the context, a
// request_id field echoed in X-Request-ID, and one access line per request.
func requestLogging(next http.Handler) http.Handler {
	h := hlog.AccessHandler(accessLine)(next)
	h = hlog.RequestIDHandler("request_id", requestIDHeader)(h)
	h = reuseRequestID(h)
	return hlog.NewHandler(log.Logger)(h)
}

// reuseRequestID keeps an id handed in by an upstream hop. Only xid-formatted
// ids are accepted; anything else gets a fresh one.
func reuseRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := xid.FromString(r.Header.Get(requestIDHeader)); err == nil {
			r = r.WithContext(hlog.CtxWithID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func accessLine(r *http.Request, status, size int, d time.Duration) {
	l := hlog.FromRequest(r)
	var ev *zerolog.Event
	switch {
	case status >= 500:
		ev = l.Error()
	case r.URL.Path == "/healthz" || r.URL.Path == "/metrics":
		ev = l.Debug()
	default:
		ev = l.Info()
	}
	ev.Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("bytes", size).
		Dur("duration", d).
		Msg("request")
}

// recoverer turns a handler panic into a 500. Deferred scope releases in the
// handler have already run by the time it fires.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				zerolog.Ctx(r.Context()).Error().
					Interface("panic", v).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				writeError(w, http.StatusInternalServerError, "Internal server error.")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
