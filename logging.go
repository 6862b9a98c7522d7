package incognito

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
)

// RequestTimeout bounds every request handled by the app router.
const RequestTimeout = 30 * time.Second

// RequestMiddleware is the stack every route runs behind, outermost first.
func RequestMiddleware(logger *slog.Logger) []mux.MiddlewareFunc {
	return []mux.MiddlewareFunc{
		middleware.RequestID,
		middleware.RealIP,
		RequestLogger(logger),
		middleware.Recoverer,
		middleware.Timeout(RequestTimeout),
		SecurityHeaders,
	}
}

// RequestLogger logs one line per request through slog, so access logs share
// the JSON handler and level set up in main. Must run after middleware.RequestID.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}

// SecurityHeaders sets the headers every HTML response should carry.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// redirectHome answers a request whose failure has already been logged by
// sending the browser home. The home page itself gets a bare 500 instead, so
// a broken backend cannot redirect in a loop.
func redirectHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
