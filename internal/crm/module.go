// Package crm wires the lead routing and SLA escalation services and
// exposes them as an HTTP module.
package crm

import (
	"context"
	"io"

	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/crm/escalation"
	"estate_portal_backend/internal/crm/handler"
	"estate_portal_backend/internal/crm/intake"
	"estate_portal_backend/internal/crm/leads"
	"estate_portal_backend/internal/crm/reassignment"
	"estate_portal_backend/internal/crm/repository"
	"estate_portal_backend/internal/crm/routing"
	"estate_portal_backend/internal/crm/timers"
	"estate_portal_backend/internal/email"
	"estate_portal_backend/internal/events"
	apphttp "estate_portal_backend/internal/http"
	"estate_portal_backend/internal/notification/inapp"
	"estate_portal_backend/platform/clock"
	"estate_portal_backend/platform/config"
	"estate_portal_backend/platform/logger"
	"estate_portal_backend/platform/metrics"
	"estate_portal_backend/platform/validator"

	"github.com/google/uuid"
)

// Store is every persistence surface the CRM services use.
type Store interface {
	repository.LeadReader
	repository.LeadWriter
	repository.TimerStore
	repository.BreachStore
	repository.AlarmStore
	repository.RuleStore
	repository.PoolStore
	repository.AgentStore
	repository.ReassignmentStore
	repository.ActivityLogger
}

// InApp persists in-app notifications.
type InApp interface {
	Create(ctx context.Context, p inapp.CreateParams) (inapp.Notification, error)
	MarkReadByLead(ctx context.Context, agentID, leadID uuid.UUID) (int64, error)
}

// Settings are the tunables of the CRM services.
type Settings struct {
	Policy             domain.SLAPolicy
	AppBaseURL         string
	FallbackAdminEmail string
	BatchSize          int
	DefaultPhoneRegion string
}

// SettingsConfig is the configuration the module reads.
type SettingsConfig interface {
	config.SLAConfig
	config.NotificationConfig
	config.IntakeConfig
}

// SettingsFromConfig maps environment configuration onto Settings.
func SettingsFromConfig(cfg SettingsConfig) Settings {
	return Settings{
		Policy: domain.SLAPolicy{
			ClaimWindow:   cfg.GetClaimWindow(),
			ContactWindow: cfg.GetContactWindow(),
			AlarmInterval: cfg.GetAlarmInterval(),
		},
		AppBaseURL:         cfg.GetAppBaseURL(),
		FallbackAdminEmail: cfg.GetFallbackAdminEmail(),
		BatchSize:          cfg.GetSweepBatchSize(),
		DefaultPhoneRegion: cfg.GetDefaultPhoneRegion(),
	}
}

// Deps groups the collaborators of the module. InApp, Bus, Clock, Metrics
// and RouteQueue are optional.
type Deps struct {
	Store      Store
	Sender     email.Sender
	InApp      InApp
	Bus        events.Bus
	Clock      clock.Clock
	Metrics    *metrics.Metrics
	Log        *logger.Logger
	Validator  *validator.Validator
	RouteQueue intake.RouteQueue
	Settings   Settings
}

// Module is the CRM bounded context.
type Module struct {
	intake       *intake.Service
	leads        *leads.Service
	timers       *timers.Service
	routing      *routing.Service
	reassignment *reassignment.Service
	escalation   *escalation.Service
	handler      *handler.Handler
	log          *logger.Logger
}

// New builds every CRM service on one store.
func New(d Deps) *Module {
	if d.Log == nil {
		d.Log = logger.NewWithWriter("production", io.Discard)
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Bus == nil {
		d.Bus = events.NopBus{}
	}
	if d.Validator == nil {
		d.Validator = validator.New()
	}
	if d.Settings.Policy == (domain.SLAPolicy{}) {
		d.Settings.Policy = domain.DefaultSLAPolicy()
	}

	var escInApp escalation.InApp
	var reassignInApp reassignment.InApp
	if d.InApp != nil {
		escInApp = d.InApp
		reassignInApp = d.InApp
	}

	m := &Module{log: d.Log}
	m.escalation = escalation.New(escalation.Deps{
		Repo:   d.Store,
		Sender: d.Sender,
		InApp:  escInApp,
		Bus:    d.Bus,
		Clock:  d.Clock,
		Policy: d.Settings.Policy,
		Settings: escalation.Settings{
			AppBaseURL:         d.Settings.AppBaseURL,
			FallbackAdminEmail: d.Settings.FallbackAdminEmail,
			BatchSize:          d.Settings.BatchSize,
		},
		Metrics: d.Metrics,
		Log:     d.Log,
	})
	m.timers = timers.New(timers.Deps{
		Repo:      d.Store,
		Notifier:  m.escalation,
		Bus:       d.Bus,
		Clock:     d.Clock,
		Policy:    d.Settings.Policy,
		Metrics:   d.Metrics,
		Log:       d.Log,
		BatchSize: d.Settings.BatchSize,
	})
	m.routing = routing.New(d.Store, m.timers, d.Bus, d.Clock, d.Metrics, d.Log)
	m.reassignment = reassignment.New(reassignment.Deps{
		Repo:    d.Store,
		InApp:   reassignInApp,
		Mailer:  m.escalation,
		Bus:     d.Bus,
		Clock:   d.Clock,
		Policy:  d.Settings.Policy,
		Metrics: d.Metrics,
		Log:     d.Log,
	})
	m.leads = leads.New(d.Store, d.Clock, d.Log)
	m.intake = intake.New(d.Store, m.routing, d.RouteQueue, d.Bus, d.Clock, d.Metrics, d.Log, d.Settings.DefaultPhoneRegion)

	m.handler = handler.New(handler.Services{
		Intake:       m.intake,
		Leads:        m.leads,
		Timers:       m.timers,
		Routing:      m.routing,
		Reassignment: m.reassignment,
		Escalation:   m.escalation,
	}, d.Validator)
	return m
}

// Name returns the module identifier.
func (m *Module) Name() string { return "crm" }

// RegisterRoutes mounts the public, agent, admin and trigger routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	public := ctx.V1.Group("/public")
	if ctx.IntakeRateLimiter != nil {
		public.Use(ctx.IntakeRateLimiter.RateLimit())
	}
	m.handler.RegisterPublicRoutes(public)
	m.handler.RegisterAgentRoutes(ctx.Protected.Group("/crm"))
	m.handler.RegisterAdminRoutes(ctx.Admin.Group("/crm"))
	if ctx.Triggers != nil {
		m.handler.RegisterTriggerRoutes(ctx.Triggers)
	}
}

// Routing exposes the router for the background route task.
func (m *Module) Routing() *routing.Service { return m.routing }

// Timers exposes the timer engine for the claim breach sweep.
func (m *Module) Timers() *timers.Service { return m.timers }

// Escalation exposes the notifier for the alarm and contact sweeps.
func (m *Module) Escalation() *escalation.Service { return m.escalation }
