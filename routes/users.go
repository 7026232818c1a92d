package routes

import (
	"net/http"
	"time"

	"gigtasks/middleware"

	"github.com/gorilla/mux"
)

// WorkerRoutes registers sign-in and the worker task endpoints.
func WorkerRoutes(api *mux.Router, d Deps) {
	// Rate limiter login: 60 per IP per 5 minutes
	loginLimiter := middleware.NewIPRateLimiter(60, 5*time.Minute, d.TrustedProxies)
	// Rate limiter session: 120 per caller per minute
	callerLimiter := middleware.NewCallerRateLimiter(120, time.Minute, d.TrustedProxies)

	worker := func(h http.HandlerFunc) http.Handler {
		return d.Auth.Worker(callerLimiter.Middleware(h))
	}

	api.Handle("/auth/telegram", loginLimiter.Middleware(http.HandlerFunc(d.Session.TelegramLogin))).Methods(http.MethodPost)
	api.Handle("/logout", d.Auth.Any(callerLimiter.Middleware(http.HandlerFunc(d.Session.Logout)))).Methods(http.MethodPost)

	api.Handle("/tasks/assign", worker(d.Tasks.Assign)).Methods(http.MethodPost)
	api.Handle("/tasks/assign-any", worker(d.Tasks.AssignAny)).Methods(http.MethodPost)
	api.Handle("/tasks/current", worker(d.Tasks.Current)).Methods(http.MethodGet)
	api.Handle("/tasks/active", worker(d.Tasks.Active)).Methods(http.MethodGet)
	api.Handle("/tasks/{id}/report", worker(d.Tasks.SubmitReport)).Methods(http.MethodPost)
}
