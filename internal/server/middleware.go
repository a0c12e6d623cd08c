package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cbam-tracker/internal/common"
	"github.com/joseph-ayodele/cbam-tracker/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

type middleware func(next http.Handler, logger *slog.Logger) http.Handler

// chain wraps h so that the last middleware listed runs first.
func chain(h http.Handler, logger *slog.Logger, mws ...middleware) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	for _, mw := range mws {
		h = mw(h, logger)
	}
	return h
}

// requestID reuses a caller-supplied X-Request-ID or mints one, and stores it
// with a request-scoped logger in the context.
func requestID(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := common.WithRequestID(r.Context(), id)
		ctx = common.WithLogger(ctx, logger.With("req_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// accessLog logs one line per request and records the HTTP metrics. The
// route label is the matched mux pattern so paths with ids do not explode
// the label set.
func accessLog(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(rec.status), elapsed)

		log := common.LoggerFromContext(r.Context(), logger)
		level := slog.LevelInfo
		if rec.status >= 500 {
			level = slog.LevelError
		}
		log.Log(r.Context(), level, "http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", rec.status,
			"bytes", rec.bytes,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	})
}

func recoverer(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				common.LoggerFromContext(r.Context(), logger).Error("http.panic",
					"panic", p,
					"stack", string(debug.Stack()),
				)
				writeError(w, r, common.InternalErrorf("internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
