package profiling

import (
	"log"
	"net/http"
	"runtime"
	"strconv"
	"time"
)

// Middleware adds timing headers to HTTP handlers
type Middleware struct {
	enableProfiling bool
}

// NewMiddleware creates a new profiling middleware
func NewMiddleware(enableProfiling bool) *Middleware {
	return &Middleware{
		enableProfiling: enableProfiling,
	}
}

// ProfiledHandler wraps an HTTP handler with request timing. The headers are
// set when the wrapped handler writes its status.
func (m *Middleware) ProfiledHandler(name string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enableProfiling {
			handler.ServeHTTP(w, r)
			return
		}

		startTime := time.Now()
		startGoroutines := runtime.NumGoroutine()

		w.Header().Set("X-Profiling-Enabled", "true")
		w.Header().Set("X-Handler-Name", name)
		w.Header().Set("X-Start-Time", startTime.Format(time.RFC3339Nano))

		wrapped := &responseWriter{
			ResponseWriter: w,
			start:          startTime,
			statusCode:     http.StatusOK,
		}
		handler.ServeHTTP(wrapped, r)

		log.Printf("⏱️  %s %s -> %d in %v (goroutines %d -> %d)", name, r.Method, wrapped.statusCode,
			time.Since(startTime), startGoroutines, runtime.NumGoroutine())
	})
}

// ProfiledHandlerFunc wraps an HTTP handler function with request timing
func (m *Middleware) ProfiledHandlerFunc(name string, handlerFunc http.HandlerFunc) http.Handler {
	return m.ProfiledHandler(name, handlerFunc)
}

// responseWriter stamps the elapsed time on the headers before they are sent
type responseWriter struct {
	http.ResponseWriter
	start       time.Time
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.statusCode = code
	duration := time.Since(rw.start)
	rw.Header().Set("X-Duration-Ms", strconv.FormatFloat(float64(duration.Nanoseconds())/1000000.0, 'f', 3, 64))
	rw.Header().Set("X-Status-Code", strconv.Itoa(code))
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
