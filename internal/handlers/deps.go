package handlers

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/lojf/attendance/internal/config"
	"github.com/lojf/attendance/internal/events"
	"github.com/lojf/attendance/internal/identity"
	"github.com/lojf/attendance/internal/scan"
	"github.com/lojf/attendance/internal/services"
)

// Deps is everything the handlers reach for. Built once by web.NewDeps.
type Deps struct {
	Cfg       config.Config
	DB        *gorm.DB
	Directory services.Directory
	Catalog   services.Catalog
	Resolver  *identity.Resolver
	Ledger    *services.Ledger
	ChildCare *services.ChildCare
	Courses   *services.Courses
	LogView   *services.LogView
	Hub       *events.Hub
	Scans     *scan.Controller
	Sessions  *scan.Registry
	Operators *OperatorSessions
	Log       *slog.Logger
}
