package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pinion-app/api/internal/application/auth"
	"github.com/pinion-app/api/internal/application/challenge"
	"github.com/pinion-app/api/internal/application/session"
	"github.com/pinion-app/api/internal/config"
	"github.com/pinion-app/api/internal/transport/http/handler"
	appmiddleware "github.com/pinion-app/api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", cfg.AuthHeaderName},
		// Cookie-based auth needs credentialed CORS.
		AllowCredentials: true,
		MaxAge:           300,
	}))

	sessionSvc := session.NewService(session.ServiceDeps{
		TokenRepo:      deps.TokenRepo,
		UserRepo:       deps.UserRepo,
		SigningKey:     cfg.SigningKey,
		AuthExpiration: cfg.AuthExpiration,
	})
	authSvc := auth.NewService(auth.ServiceDeps{
		VerificationRepo: deps.VerificationRepo,
		UserRepo:         deps.UserRepo,
		Sessions:         sessionSvc,
		SMS:              deps.SMSSender,
		PhoneAllowed:     cfg.PhoneAllowed,
		CodeExpiration:   cfg.ChallengeExpiration,
	})

	codec := challenge.NewCodec(cfg.EncryptionKey)
	cookies := challenge.CookieConfig{
		AuthName:      cfg.AuthCookieName,
		ChallengeName: cfg.ChallengeCookieName,
		Domain:        cfg.CookieDomain,
		Secure:        cfg.SecureCookie,
		AuthMaxAge:    cfg.AuthExpiration,
		ChallengeTTL:  cfg.ChallengeExpiration,
	}

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc, sessionSvc, codec, cookies, cfg.AuthHeaderName)
	userH := handler.NewUserHandler(authSvc)
	verifH := handler.NewVerificationHandler(authSvc)

	sessionMw := appmiddleware.Session(sessionSvc, cfg.AuthHeaderName, cfg.AuthCookieName)

	// 5 requests/second, burst of 10. Applied to the public endpoints that
	// mint accounts or send SMS; the per-user code limits live in the
	// service layer.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	r.Get("/status", healthH.Ping)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(sessionMw)

			// Public: these establish identity rather than demand it.
			r.With(sensitiveRL.Limit).Post("/signup", authH.SignUp)
			r.With(sensitiveRL.Limit).Post("/login/phone", authH.LoginPhone)
			r.With(sensitiveRL.Limit).Post("/login/phone/confirm", authH.LoginPhoneConfirm)
			r.Post("/logout", authH.Logout)

			// Logged-in, verified or not.
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireLogin)

				r.Get("/me", userH.Me)
				r.With(sensitiveRL.Limit).Post("/verification-codes", verifH.Request)
				r.Post("/verification-codes/verify", verifH.Verify)
				r.Delete("/account", userH.Delete)
			})

			// Verified accounts only.
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireVerified)

				r.Put("/handle", userH.SetHandle)
				r.Post("/phones/check", userH.CheckNumbers)
			})
		})
	})

	return r
}
