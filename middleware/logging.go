package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/livepeer/clip-job-server/errors"
	"github.com/livepeer/clip-job-server/log"
)

const traceIDHeader = "X-Trace-Id"

type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}

	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
	rw.wroteHeader = true
}

// TraceID returns the request's trace id, assigning a fresh one if the
// caller didn't supply X-Trace-Id.
func TraceID(r *http.Request) string {
	traceID := r.Header.Get(traceIDHeader)
	if traceID != "" {
		return traceID
	}
	traceID = uuid.New().String()
	r.Header.Set(traceIDHeader, traceID)
	return traceID
}

// LogRequest logs one JSON line per HTTP request/response and recovers any
// panic from the handler chain into a 500, mirroring the teacher's
// recovered-goroutine idiom at the HTTP boundary.
func LogRequest() func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		fn := func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)
			traceID := TraceID(r)

			defer func() {
				if rec := recover(); rec != nil {
					errors.WriteHTTPInternalServerError(wrapped, "Internal Server Error", nil)
					log.LogError(traceID, "panic handling request", fmt.Errorf("%v", rec), "trace", string(debug.Stack()))
				}
			}()

			next(wrapped, r, ps)
			log.Log(traceID, "handled request",
				"remote", r.RemoteAddr,
				"proto", r.Proto,
				"method", r.Method,
				"uri", r.URL.RequestURI(),
				"duration", time.Since(start).String(),
				"status", wrapped.status,
			)
		}

		return fn
	}
}
