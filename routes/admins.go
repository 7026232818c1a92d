package routes

import (
	"net/http"
	"time"

	"gigtasks/middleware"

	"github.com/gorilla/mux"
)

func AdminRoutes(api *mux.Router, d Deps) {
	// Rate limiter for admin login: 5 attempts per IP per minute
	adminLoginLimiter := middleware.NewIPRateLimiter(5, time.Minute, d.TrustedProxies)

	// Public admin routes
	api.Handle("/admin/login", adminLoginLimiter.Middleware(http.HandlerFunc(d.Login.Login))).Methods(http.MethodPost)

	// Protected admin routes
	adminRouter := api.PathPrefix("/admin").Subrouter()
	adminRouter.Use(d.Auth.Admin)

	// Task catalog
	adminRouter.HandleFunc("/tasks", d.Review.ListTasks).Methods(http.MethodGet)
	adminRouter.HandleFunc("/tasks", d.Review.CreateTasks).Methods(http.MethodPost)

	// Review
	adminRouter.HandleFunc("/assignments/{id}", d.Review.GetAssignment).Methods(http.MethodGet)
	adminRouter.HandleFunc("/assignments/{id}/approve", d.Review.Approve).Methods(http.MethodPut)
	adminRouter.HandleFunc("/assignments/{id}/reject", d.Review.Reject).Methods(http.MethodPut)
	adminRouter.HandleFunc("/assignments/{id}/archive", d.Review.Archive).Methods(http.MethodPut)

	// Worker management
	adminRouter.HandleFunc("/users", d.Review.ListWorkers).Methods(http.MethodGet)
	adminRouter.HandleFunc("/users/{tg_id:[0-9]+}/approve", d.Review.ApproveWorker).Methods(http.MethodPut)
	adminRouter.HandleFunc("/users/{tg_id:[0-9]+}/reject", d.Review.RejectWorker).Methods(http.MethodPut)
	adminRouter.HandleFunc("/users/{tg_id:[0-9]+}/block", d.Review.BlockWorker).Methods(http.MethodPut)
	adminRouter.HandleFunc("/users/{tg_id:[0-9]+}/unblock", d.Review.UnblockWorker).Methods(http.MethodPut)
}
