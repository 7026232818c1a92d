package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"gigtasks/controllers"
	"gigtasks/controllers/admins"
	"gigtasks/controllers/auth"
	"gigtasks/controllers/users"
	"gigtasks/middleware"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

var defaultOrigins = []string{
	"http://localhost:3000", "http://localhost:8080", "http://127.0.0.1:3000", "http://127.0.0.1:8080",
}

// Deps is everything the router hands requests to. Webhook is nil when the
// bot is not configured.
type Deps struct {
	Auth    *middleware.Auth
	Tasks   *users.TaskController
	Review  *admins.ReviewController
	Login   *admins.LoginController
	Session *auth.Controller
	Cron    *controllers.CronController
	Webhook http.Handler

	CronKey        string
	AllowedOrigins []string
	TrustedProxies []string
}

func optionsHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "gigtasks-api",
	})
}

func InitRouter(d Deps) *mux.Router {
	r := mux.NewRouter()

	// Health check endpoint for Docker health checks (root level)
	r.HandleFunc("/health", health).Methods(http.MethodGet)

	origins := append([]string{}, defaultOrigins...)
	origins = append(origins, d.AllowedOrigins...)
	r.Use(func(next http.Handler) http.Handler {
		return handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-CRON-KEY", "X-Requested-With", "X-Request-ID"}),
			handlers.AllowCredentials(),
		)(next)
	})

	api := r.PathPrefix("/v1").Subrouter()

	// Add catch-all OPTIONS handler for CORS preflight
	api.PathPrefix("/").HandlerFunc(optionsHandler).Methods(http.MethodOptions)

	api.HandleFunc("/health", health).Methods(http.MethodGet)

	// Cron endpoints (protected via X-CRON-KEY header)
	cronLimiter := middleware.NewIPRateLimiter(1000, time.Hour, d.TrustedProxies)
	cronKey := middleware.CronKey(d.CronKey)
	api.Handle("/cron/archive-rejected", cronLimiter.Middleware(cronKey(http.HandlerFunc(d.Cron.ArchiveRejected)))).Methods(http.MethodPost)
	api.Handle("/cron/cleanup-unsubmitted", cronLimiter.Middleware(cronKey(http.HandlerFunc(d.Cron.CleanupUnsubmitted)))).Methods(http.MethodPost)

	// Telegram bot webhook, authenticated by the secret token header
	if d.Webhook != nil {
		webhookLimiter := middleware.NewIPRateLimiter(3000, time.Minute, d.TrustedProxies)
		api.Handle("/telegram/webhook", webhookLimiter.Middleware(d.Webhook)).Methods(http.MethodPost)
	}

	WorkerRoutes(api, d)
	AdminRoutes(api, d)

	return r
}
