package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"identity-service/internal/config"
	"identity-service/internal/handler"
	"identity-service/internal/metrics"
	"identity-service/internal/middleware"
)

func New(
	cfg *config.Config,
	sessionMiddleware *middleware.SessionMiddleware,
	metricsRegistry *metrics.Metrics,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	otpHandler *handler.OTPHandler,
	federatedHandler *handler.FederatedHandler,
	healthHandler *handler.HealthHandler,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM, cfg.TrustedProxies)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics(metricsRegistry))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", metricsRegistry.Handler())

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Post("/user", authHandler.Register)
		api.Post("/user/login", authHandler.Login)
		api.Post("/user/logout", authHandler.Logout)
		api.Get("/user/me", userHandler.Me)
		api.Put("/user/update", userHandler.Update)
		api.Put("/user/change-password", userHandler.ChangePassword)
		api.Put("/user/password-reset", userHandler.ResetPassword)

		api.With(sessionMiddleware.RequireSession).Post("/decode", authHandler.Decode)
		api.With(sessionMiddleware.RequireSession).Post("/checkAuthentication", authHandler.CheckAuthentication)

		api.Post("/request-password-reset", otpHandler.Request)
		api.Post("/verifyotp", otpHandler.Verify)

		api.Route("/auth/google", func(google chi.Router) {
			google.Post("/token", federatedHandler.Token)
			google.Get("/url", federatedHandler.AuthURL)
			google.Get("/login", federatedHandler.Login)
			google.Get("/callback", federatedHandler.Callback)
		})
	})

	return r
}
