package web

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/lojf/attendance/internal/config"
	"github.com/lojf/attendance/internal/events"
	"github.com/lojf/attendance/internal/handlers"
	"github.com/lojf/attendance/internal/identity"
	"github.com/lojf/attendance/internal/metrics"
	"github.com/lojf/attendance/internal/scan"
	"github.com/lojf/attendance/internal/services"
)

// NewDeps wires the services over gdb. Counters are registered with reg.
func NewDeps(cfg config.Config, gdb *gorm.DB, reg prometheus.Registerer, log *slog.Logger) *handlers.Deps {
	m := metrics.New(reg)
	hub := events.NewHub()
	phones := services.Phones{CountryCode: cfg.PhoneCountryCode}

	dir := services.NewGormDirectory(gdb, phones)
	catalog := services.NewGormCatalog(gdb)
	ledger := services.NewLedger(gdb, catalog, dir, hub, m, log)
	childCare := services.NewChildCare(gdb, catalog, ledger, hub, m, log)
	courses := services.NewCourses(gdb, catalog, hub, m, log)
	resolver := identity.NewResolver(dir, phones)

	return &handlers.Deps{
		Cfg:       cfg,
		DB:        gdb,
		Directory: dir,
		Catalog:   catalog,
		Resolver:  resolver,
		Ledger:    ledger,
		ChildCare: childCare,
		Courses:   courses,
		LogView:   services.NewLogView(ledger, childCare, courses),
		Hub:       hub,
		Scans:     scan.NewController(resolver, ledger, m, log),
		Sessions:  scan.NewRegistry(),
		Operators: handlers.NewOperatorSessions(),
		Log:       log,
	}
}

func Router(d *handlers.Deps, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", d.Health)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(ar chi.Router) {
		// Auth endpoints (public)
		ar.Post("/operator/login", d.OperatorLogin)
		ar.Post("/operator/logout", d.OperatorLogout)

		ar.Group(func(ag chi.Router) {
			ag.Use(d.RequireOperator)

			// Reads
			ag.Post("/resolve", d.Resolve)
			ag.Get("/events/{eventID}/registrations", d.ListRegistrations)
			ag.Get("/events/{eventID}/registrations.csv", d.RegistrationsCSV)
			ag.Get("/events/{eventID}/rooms", d.ListRooms)
			ag.Get("/events/{eventID}/childcare", d.ListChildCare)
			ag.Get("/events/{eventID}/log", d.EventLog)
			ag.Get("/events/{eventID}/log/stream", d.EventLogStream)
			ag.Get("/people/{personID}/progress", d.PersonProgress)
			ag.Get("/people/{personID}/progress/{subcategoryID}", d.SubcategoryProgress)
			ag.Get("/people/{personID}/badge.png", d.Badge)

			// Mutations
			ag.Group(func(ed chi.Router) {
				ed.Use(handlers.RequireEditor)

				// Scan loop
				ed.Post("/events/{eventID}/scan", d.ScanSubmit)
				ed.Post("/events/{eventID}/scan/abort", d.ScanAbort)

				// Registrations
				ed.Post("/events/{eventID}/registrations", d.CreateRegistration)
				ed.Patch("/registrations/{id}", d.EditRegistration)
				ed.Delete("/registrations/{id}", d.DeleteRegistration)

				// Rooms & child care
				ed.Put("/events/{eventID}/rooms", d.AssignRooms)
				ed.Post("/events/{eventID}/childcare", d.CheckInChild)
				ed.Post("/childcare/{id}/checkout", d.CheckOutChild)
				ed.Delete("/childcare/{id}", d.DeleteChildCare)

				// Courses
				ed.Post("/courses/start", d.StartCourse)
				ed.Post("/courses/{id}/complete", d.CompleteCourse)
				ed.Delete("/courses/{id}", d.DeleteCourse)
				ed.Post("/people/{personID}/assignments", d.AssignCourse)
			})
		})
	})

	return r
}
