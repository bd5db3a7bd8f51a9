package routes

import (
	"net/http"
	"time"

	"github.com/BradenHooton/vetconnect/internal/auth"
	"github.com/BradenHooton/vetconnect/internal/handlers"
	"github.com/BradenHooton/vetconnect/internal/middleware"
	"github.com/BradenHooton/vetconnect/internal/models"
	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Handlers groups every HTTP handler mounted by RegisterRoutes
type Handlers struct {
	Auth          *handlers.AuthHandler
	MFA           *handlers.MFAHandler
	Profile       *handlers.ProfileHandler
	Animals       *handlers.AnimalHandler
	Consultations *handlers.ConsultationHandler
	Messages      *handlers.MessageHandler
	Vets          *handlers.VetHandler
	Portfolio     *handlers.PortfolioHandler
	Maps          *handlers.MapsHandler
	Realtime      http.Handler
}

// Security holds what the auth middlewares need
type Security struct {
	Tokens              *auth.TokenManager
	Revocations         auth.TokenRevocationChecker
	Revocation          auth.RevocationConfig
	Users               auth.UserRepository
	IPConfig            *pkghttp.IPConfig
	AuthRequestsPerMin  int
	WriteRequestsPerMin int
	RequestTimeout      time.Duration
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, sec Security) {
	requireAccess := auth.AuthMiddlewareWithRevocation(sec.Tokens, sec.Revocations, sec.Revocation)
	authLimit := middleware.RateLimitByIP(sec.AuthRequestsPerMin, sec.IPConfig)
	writeLimit := middleware.RateLimitByUser(sec.WriteRequestsPerMin, sec.IPConfig)

	// Long-lived websocket connections are kept out of the request timeout
	router.Get("/realtime", h.Realtime.ServeHTTP)

	router.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(sec.RequestTimeout))

		// Public routes - the per-identifier lockout lives in the auth service,
		// httprate only caps raw volume per client address
		r.Group(func(r chi.Router) {
			r.Use(authLimit)
			r.Post("/auth/register", h.Auth.Register)
			r.Post("/auth/login", h.Auth.Login)
			r.Post("/auth/otp", h.Auth.RequestOTP)
			r.Post("/auth/otp/verify", h.Auth.VerifyOTP)
			r.Post("/auth/refresh", h.Auth.RefreshToken)
			r.Get("/auth/rate-limit", h.Auth.RateLimitStatus)
		})

		// MFA challenge and verify also accept the login MFA token
		r.Group(func(r chi.Router) {
			r.Use(authLimit)
			r.Use(auth.MFAStepMiddleware(sec.Tokens, sec.Revocations, sec.Revocation))
			r.Post("/auth/mfa/challenge", h.MFA.Challenge)
			r.Post("/auth/mfa/verify", h.MFA.Verify)
		})

		// Protected routes - access token required
		r.Group(func(r chi.Router) {
			r.Use(requireAccess)

			r.Post("/auth/logout", h.Auth.Logout)
			r.Post("/auth/logout-all", h.Auth.LogoutAll)

			r.Post("/auth/mfa/enroll", h.MFA.Enroll)
			r.Get("/auth/mfa/factors", h.MFA.ListFactors)
			r.Delete("/auth/mfa/factors/{id}", h.MFA.DeleteFactor)

			r.Get("/profile", h.Profile.Get)
			r.Put("/profile", h.Profile.Update)
			r.Post("/profile/image", h.Profile.UploadImage)

			r.Route("/animals", func(r chi.Router) {
				r.Get("/", h.Animals.List)
				r.Post("/", h.Animals.Create)
				r.Put("/{id}", h.Animals.Update)
				r.Delete("/{id}", h.Animals.Delete)
				r.Post("/{id}/image", h.Animals.UploadImage)
			})

			r.Route("/consultations", func(r chi.Router) {
				r.Get("/", h.Consultations.List)
				r.With(writeLimit).Post("/", h.Consultations.Create)
				r.With(auth.RequireRole(sec.Users, models.RoleVeterinarian)).Get("/pending", h.Consultations.ListPending)
				r.Get("/{id}", h.Consultations.Get)
				r.Patch("/{id}", h.Consultations.Update)
				r.With(auth.RequireRole(sec.Users, models.RoleVeterinarian)).Post("/{id}/accept", h.Consultations.Accept)
				r.Get("/{id}/messages", h.Messages.List)
				r.With(writeLimit).Post("/{id}/messages", h.Messages.Send)
			})
			r.Get("/messages", h.Messages.Inbox)
			r.Get("/dashboard", h.Consultations.Dashboard)

			r.Route("/vets", func(r chi.Router) {
				r.Get("/", h.Vets.Search)
				r.Get("/online", h.Vets.Online)
				r.Post("/presence", h.Vets.GoOnline)
				r.Delete("/presence", h.Vets.GoOffline)
				r.Get("/{user_id}", h.Vets.Get)
			})

			r.Route("/portfolio", func(r chi.Router) {
				r.Use(auth.RequireRole(sec.Users, models.RoleVeterinarian))
				r.Get("/", h.Portfolio.List)
				r.Post("/", h.Portfolio.Create)
				r.Put("/{id}", h.Portfolio.Update)
				r.Delete("/{id}", h.Portfolio.Delete)
				r.Post("/{id}/image", h.Portfolio.UploadImage)
			})

			r.Get("/maps/key", h.Maps.Key)
		})
	})
}
