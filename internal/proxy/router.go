package proxy

import (
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Middleware wraps an http.Handler and returns a new http.Handler with
// additional behavior, applied in the order it is registered with use.
type Middleware func(http.Handler) http.Handler

// basicRouter is a small http.ServeMux wrapper that applies a middleware
// stack to every registered route.
type basicRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
}

func newBasicRouter() *basicRouter {
	return &basicRouter{mux: http.NewServeMux()}
}

// use appends middleware to the stack; first added wraps outermost.
func (r *basicRouter) use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// handle registers handler for method+path, wrapped with every registered
// middleware.
func (r *basicRouter) handle(method, path string, handler http.Handler) {
	wrapped := r.apply(handler)

	r.mux.Handle(path, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.EqualFold(req.Method, method) {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wrapped.ServeHTTP(w, req)
	}))
}

func (r *basicRouter) apply(handler http.Handler) http.Handler {
	wrapped := handler
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		wrapped = r.middlewares[i](wrapped)
	}
	return wrapped
}

func (r *basicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// loggingMiddleware logs one line per request through logger (already
// stamped with the "proxy" component field), recording method, path,
// status, and duration.
func loggingMiddleware(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("request handled",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"durationMs", time.Since(start).Milliseconds())
		})
	}
}

// statusRecorder captures the status code written through it so middleware
// can log it after the handler returns.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
