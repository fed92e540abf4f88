package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codedrill/codedrill/internal/api/handlers"
	"github.com/codedrill/codedrill/internal/api/middleware"
)

// Router wraps the HTTP multiplexer with middleware and handlers
type Router struct {
	mux         *http.ServeMux
	app         *App
	users       *handlers.UserHandler
	problems    *handlers.ProblemHandler
	submissions *handlers.SubmissionHandler
}

// NewRouter creates a new API router with all routes configured
func NewRouter(app *App) http.Handler {
	r := &Router{
		mux: http.NewServeMux(),
		app: app,
	}

	// Initialize handlers
	r.users = handlers.NewUserHandler(app.Users)
	r.problems = handlers.NewProblemHandler(app.Problems)
	r.submissions = handlers.NewSubmissionHandler(app.Judge, app.Submissions)

	// Register routes
	r.registerRoutes()

	// Build middleware chain
	return r.buildMiddlewareChain(r.mux, app)
}

func (r *Router) registerRoutes() {
	// Health and observability
	r.mux.HandleFunc("GET /health", r.handleHealth)
	r.mux.HandleFunc("GET /ready", r.handleReady)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	// Users
	r.mux.HandleFunc("POST /api/v1/users", r.users.Create)
	r.mux.HandleFunc("GET /api/v1/users/{id}", r.users.Get)
	r.mux.HandleFunc("GET /api/v1/users/{id}/progress", r.users.Progress)

	// Problems
	r.mux.HandleFunc("POST /api/v1/problems", r.problems.Create)
	r.mux.HandleFunc("GET /api/v1/problems", r.problems.List)
	r.mux.HandleFunc("GET /api/v1/problems/{id}", r.problems.Get)
	r.mux.HandleFunc("DELETE /api/v1/problems/{id}", r.problems.Deactivate)
	r.mux.HandleFunc("POST /api/v1/problems/{id}/recompute", r.problems.Recompute)

	// Submissions; Run is the synchronous dry run against sample cases
	// and gets the tighter sandbox rate limit
	expensive := middleware.ExpensiveRateLimitMiddleware(middleware.DefaultRateLimitConfig())
	r.mux.HandleFunc("POST /api/v1/submissions", r.submissions.Create)
	r.mux.HandleFunc("GET /api/v1/submissions/{id}", r.submissions.Get)
	r.mux.HandleFunc("GET /api/v1/submissions/user/{id}", r.submissions.ListByUser)
	r.mux.HandleFunc("GET /api/v1/submissions/problem/{id}", r.submissions.ListByProblem)
	r.mux.Handle("POST /api/v1/submissions/run",
		expensive(middleware.Timeout(60*time.Second)(http.HandlerFunc(r.submissions.Run))))
}

func (r *Router) buildMiddlewareChain(handler http.Handler, app *App) http.Handler {
	// Apply middleware in reverse order (last applied = first executed)
	handler = middleware.Recovery(handler)
	handler = middleware.Logger(handler)

	// Skip rate limiting in debug mode for easier development
	if !app.Config.Debug {
		handler = middleware.RateLimitMiddleware(middleware.DefaultRateLimitConfig())(handler)
	}

	handler = middleware.RequestID(handler)
	handler = middleware.CORS(handler)

	return handler
}

// Health check handlers
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	r.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleReady(w http.ResponseWriter, req *http.Request) {
	checks := map[string]string{
		"database": "healthy",
		"queue":    "healthy",
	}
	ready := true

	if err := r.app.Pool.Ping(req.Context()); err != nil {
		slog.Error("database health check failed",
			"error", err,
			"request_id", middleware.GetRequestID(req.Context()),
		)
		checks["database"] = "unhealthy"
		ready = false
	}

	if r.app.Queue == nil || !r.app.Queue.IsConnected() {
		checks["queue"] = "unhealthy"
		ready = false
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not ready"
	}

	r.jsonResponse(w, status, map[string]any{
		"status": state,
		"checks": checks,
	})
}

// Helper for JSON responses
func (r *Router) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
