package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"outreach/internal/auth"
	"outreach/internal/config"
	"outreach/internal/http/handler"
	mw "outreach/internal/http/middleware"
)

type Deps struct {
	Config  config.Config
	DB      *gorm.DB
	JWT     *auth.JWT
	Prefs   handler.PreferencesService
	Jobs    handler.JobAdmin
	Log     zerolog.Logger
	Metrics prometheus.Gatherer
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLogger(d.Log))
	r.Use(chimw.Recoverer)

	if len(d.Config.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(d.Config.CORSAllowedOrigins, d.Config.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{}))
	}

	ah := &handler.AuthHandler{DB: d.DB, JWT: d.JWT, Admins: auth.NewAdmins(d.Config.AdminEmails)}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	me := &handler.MeHandler{}
	r.With(auth.RequireAuth(d.JWT)).Get("/me", me.Me)

	ph := &handler.PreferencesHandler{Prefs: d.Prefs, Jobs: d.Jobs}
	r.Route("/preferences", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Get("/", ph.Get)
		r.Put("/", ph.Put)
		r.Delete("/", ph.Delete)
		r.Get("/job", ph.Job)
	})

	adm := &handler.AdminHandler{Jobs: d.Jobs}
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))
		r.Use(auth.RequireAdmin)
		r.Use(mw.RateLimit(d.Config.AdminRatePerSec, 0))

		r.Get("/scheduler", adm.Scheduler)
		r.Route("/jobs/{userID}", func(r chi.Router) {
			r.Get("/", adm.Job)
			r.Delete("/", adm.Delete)
			r.Get("/logs", adm.Logs)
			r.Post("/run", adm.Run)
			r.Post("/fail", adm.Fail)
			r.Post("/reset", adm.Reset)
		})
	})

	return r
}
