package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"affiliatescout/internal/http/handlers"
	"affiliatescout/internal/middleware"
)

// Options configures the middleware stack around the handlers.
type Options struct {
	JWTSecret       string
	CORSOrigins     []string
	RateLimitPerMin int
	Country         middleware.CountryLookup
	Logger          zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, middleware.Logger(opts.Logger), chimw.Recoverer)
	r.Use(middleware.CORS(opts.CORSOrigins))

	r.Get("/v1/healthz", app.Health)
	r.Method(stdhttp.MethodGet, "/metrics", handlers.Metrics())

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret), middleware.RateLimit(opts.RateLimitPerMin))

		r.Route("/v1/discovery/jobs", func(r chi.Router) {
			r.Post("/", app.DiscoveryStart)
			r.Get("/{job_id}", app.DiscoveryStatus)
			r.Get("/{job_id}/export", app.DiscoveryExport)
		})

		r.With(middleware.Locale(opts.Country)).Get("/v1/settings", app.SettingsGet)
		r.Put("/v1/settings", app.SettingsPut)

		r.Get("/v1/affiliates", app.AffiliatesList)
		r.Post("/v1/schedules", app.SchedulesCreate)
	})

	return r
}
