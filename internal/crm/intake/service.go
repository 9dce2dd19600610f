// Package intake turns public enquiry form submissions into routed leads.
package intake

import (
	"context"
	"net/mail"
	"strings"

	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/crm/repository"
	"estate_portal_backend/internal/crm/routing"
	"estate_portal_backend/internal/events"
	"estate_portal_backend/platform/apperr"
	"estate_portal_backend/platform/clock"
	"estate_portal_backend/platform/logger"
	"estate_portal_backend/platform/metrics"
	"estate_portal_backend/platform/phone"
	"estate_portal_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	opCapture = "crm.intake.capture"

	maxMessageRunes = 4000
	maxFieldRunes   = 200
)

// Repository is the store surface intake needs.
type Repository interface {
	repository.LeadWriter
	repository.ActivityLogger
}

// Router places a stored lead.
type Router interface {
	RouteLead(ctx context.Context, leadID uuid.UUID) (routing.Result, error)
}

// RouteQueue defers routing to the background worker.
type RouteQueue interface {
	EnqueueRoute(ctx context.Context, leadID uuid.UUID) error
}

// Service captures leads.
type Service struct {
	repo          Repository
	router        Router
	queue         RouteQueue
	bus           events.Bus
	clock         clock.Clock
	metrics       *metrics.Metrics
	log           *logger.Logger
	defaultRegion string
}

// New creates the intake service. queue may be nil.
func New(repo Repository, router Router, queue RouteQueue, bus events.Bus, clk clock.Clock, m *metrics.Metrics, log *logger.Logger, defaultRegion string) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if bus == nil {
		bus = events.NopBus{}
	}
	return &Service{
		repo:          repo,
		router:        router,
		queue:         queue,
		bus:           bus,
		clock:         clk,
		metrics:       m,
		log:           log,
		defaultRegion: defaultRegion,
	}
}

// Input is a raw enquiry.
type Input struct {
	FullName    string
	Email       string
	Phone       string
	Language    string
	Source      string
	Segment     string
	BudgetRange string
	PageType    string
	Message     string
}

// Result is the stored lead and, when routing ran inline, its outcome.
type Result struct {
	Lead   domain.Lead
	Route  *routing.Result
	Queued bool
}

// CaptureLead cleans the input, stores the lead and routes it. A routing
// failure never loses the lead: it is queued for the worker when possible
// and otherwise left for the unroutable view.
func (s *Service) CaptureLead(ctx context.Context, in Input) (Result, error) {
	params, err := s.clean(in)
	if err != nil {
		return Result{}, err
	}

	lead, err := s.repo.CreateLead(ctx, params)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "store lead failed", err).WithOp(opCapture)
	}
	s.metrics.RecordLeadCaptured(lead.Language)

	if err := s.repo.AddActivity(ctx, domain.Activity{
		LeadID:    lead.ID,
		Action:    domain.ActivityCaptured,
		Note:      "Lead captured from " + orDefault(lead.Source, "website"),
		Metadata:  map[string]any{"pageType": lead.PageType},
		CreatedAt: params.CreatedAt,
	}); err != nil {
		s.log.Warn("activity write failed", "leadId", lead.ID, "error", err)
	}
	s.bus.Publish(ctx, events.LeadCaptured{
		BaseEvent: events.NewBaseEventAt(params.CreatedAt),
		LeadID:    lead.ID,
		Language:  lead.Language,
		Source:    lead.Source,
	})

	result := Result{Lead: lead}
	routed, err := s.router.RouteLead(ctx, lead.ID)
	if err == nil {
		result.Lead = routed.Lead
		result.Route = &routed
		return result, nil
	}

	retryable := apperr.Is(err, apperr.KindInternal) || apperr.Is(err, apperr.KindUnknown)
	if retryable && s.queue != nil {
		qErr := s.queue.EnqueueRoute(ctx, lead.ID)
		if qErr == nil {
			s.log.Warn("inline routing failed; queued", "leadId", lead.ID, "error", err)
			result.Queued = true
			return result, nil
		}
		s.log.Error("route enqueue failed", "leadId", lead.ID, "error", qErr)
	}
	s.log.Error("lead captured but not routed", "leadId", lead.ID, "error", err)
	return result, nil
}

func (s *Service) clean(in Input) (repository.CreateLeadParams, error) {
	p := repository.CreateLeadParams{
		FullName:    sanitize.Text(in.FullName, maxFieldRunes),
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		Language:    strings.ToLower(strings.TrimSpace(in.Language)),
		Source:      sanitize.Text(in.Source, maxFieldRunes),
		Segment:     sanitize.Text(in.Segment, maxFieldRunes),
		BudgetRange: sanitize.Text(in.BudgetRange, maxFieldRunes),
		PageType:    sanitize.Text(in.PageType, maxFieldRunes),
		Message:     sanitize.Text(in.Message, maxMessageRunes),
		CreatedAt:   s.clock.Now(),
	}

	if len(p.Language) != 2 {
		return p, apperr.Validation("language must be a two-letter code").WithOp(opCapture)
	}
	if p.Email == "" && strings.TrimSpace(in.Phone) == "" {
		return p, apperr.Validation("email or phone is required").WithOp(opCapture)
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return p, apperr.Validation("email is invalid").WithOp(opCapture)
		}
	}
	if raw := strings.TrimSpace(in.Phone); raw != "" {
		if !phone.IsValid(raw, s.defaultRegion) {
			return p, apperr.Validation("phone number is invalid").WithOp(opCapture)
		}
		p.Phone = phone.NormalizeE164(raw, s.defaultRegion)
	}
	return p, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
