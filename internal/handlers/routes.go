package handlers

import (
	"net/http"

	"coursegate/internal/logger"
	"coursegate/internal/security"
)

// Router bundles the handlers served by the API
type Router struct {
	Middleware *Middleware
	Auth       *AuthHandler
	Checkout   *CheckoutHandler
	Progress   *ProgressHandler
	Access     *AccessHandler
	Admin      *AdminHandler
	Health     *HealthHandler

	// LoginLimiter and GuestLimiter throttle unauthenticated endpoints per IP
	LoginLimiter *security.RateLimiter
	GuestLimiter *security.RateLimiter
}

// Handler registers every route and wraps the mux in request logging
func (rt *Router) Handler(log *logger.Logger) http.Handler {
	mw := rt.Middleware
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", rt.Health.Health)

	// Public routes
	mux.HandleFunc("POST /api/auth/login", mw.RateLimit(rt.LoginLimiter, rt.Auth.Login))
	mux.HandleFunc("POST /api/checkout/guest", mw.RateLimit(rt.GuestLimiter, rt.Checkout.GuestCheckout))
	mux.HandleFunc("POST /api/checkout/confirm", rt.Checkout.Confirm)
	mux.HandleFunc("POST /api/webhooks/payments", rt.Checkout.Webhook)

	// Authenticated routes
	mux.HandleFunc("GET /api/me", mw.RequireAuth(rt.Auth.Me))
	mux.HandleFunc("POST /api/checkout", mw.RequireAuth(rt.Checkout.Checkout))
	mux.HandleFunc("GET /api/purchases", mw.RequireAuth(rt.Access.ListPurchases))
	mux.HandleFunc("GET /api/courses/{courseId}/access", mw.RequireAuth(rt.Access.CheckAccess))
	mux.HandleFunc("GET /api/courses/{courseId}/progress", mw.RequireAuth(rt.Progress.GetCourseProgress))
	mux.HandleFunc("GET /api/lessons/{lessonId}/progress", mw.RequireAuth(rt.Progress.GetLessonProgress))
	mux.HandleFunc("POST /api/lessons/{lessonId}/progress", mw.RequireAuth(rt.Progress.ReportProgress))
	mux.HandleFunc("POST /api/lessons/{lessonId}/complete", mw.RequireAuth(rt.Progress.CompleteLesson))

	// Admin routes
	mux.HandleFunc("POST /api/admin/access", mw.RequireAdmin(rt.Admin.GrantAccess))
	mux.HandleFunc("DELETE /api/admin/access", mw.RequireAdmin(rt.Admin.RevokeAccess))

	return Logging(log)(mux)
}
