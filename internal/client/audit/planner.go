package audit

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/client"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/models"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/region"
	"github.com/dmitrijs2005/aivedhaguard/internal/common"
	"github.com/dmitrijs2005/aivedhaguard/internal/logging"
	"github.com/dmitrijs2005/aivedhaguard/internal/metrics"
)

type API interface {
	StartAudit(ctx context.Context, req client.AuditRequest) (*client.AuditStarted, error)
}

type Credits interface {
	Credits() int
	DeductCredit(ctx context.Context) bool
}

type Identity interface {
	User() *models.User
}

type Store interface {
	SetItem(ctx context.Context, key, value string) error
}

// Plan is what the confirmation step shows before a credit is spent.
type Plan struct {
	Validation ValidationResult
	Region     region.Region
	StaticIPs  []string
	Credits    int
}

type Planner struct {
	api      API
	credits  Credits
	identity Identity
	store    Store
	home     region.Code
	log      logging.Logger
	metrics  *metrics.Metrics
}

// NewPlanner builds a planner; home is the client's own region, used as the
// hint when the target does not decide.
func NewPlanner(api API, credits Credits, identity Identity, store Store, home region.Code, logger logging.Logger, m *metrics.Metrics) *Planner {
	if logger == nil {
		logger = logging.Discard()
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Planner{
		api:      api,
		credits:  credits,
		identity: identity,
		store:    store,
		home:     home,
		log:      logger.With("component", "audit"),
		metrics:  m,
	}
}

// Prepare validates rawURL and selects its scan region.
func (p *Planner) Prepare(rawURL string) Plan {
	v := ValidateURL(rawURL)
	target := v.NormalizedURL
	if target == "" {
		target = rawURL
	}
	r := region.GetRegionInfo(region.SelectOptimalRegion(target, p.home))

	return Plan{
		Validation: v,
		Region:     r,
		StaticIPs:  region.GetAllStaticIPs(),
		Credits:    p.credits.Credits(),
	}
}

// Start asks the backend to run the audit described by plan. The backend
// charges the credit; locally the balance is reduced optimistically and the
// in-progress marker is set.
func (p *Planner) Start(ctx context.Context, plan Plan) (*client.AuditStarted, error) {
	if !plan.Validation.CanProceed() {
		reason := "target was not validated"
		if len(plan.Validation.Errors) > 0 {
			reason = plan.Validation.Errors[0]
		}
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidTarget, reason)
	}
	u := p.identity.User()
	if u == nil {
		return nil, common.ErrNotAuthenticated
	}
	if p.credits.Credits() <= 0 {
		return nil, common.ErrOutOfCredits
	}

	code := string(plan.Region.Code)
	started, err := p.api.StartAudit(ctx, client.AuditRequest{
		URL:    plan.Validation.NormalizedURL,
		UserID: u.Email,
		Region: code,
	})
	if err != nil {
		p.metrics.AuditStarts.WithLabelValues(code, "error").Inc()
		return nil, err
	}
	p.metrics.AuditStarts.WithLabelValues(code, "started").Inc()

	if err := p.store.SetItem(ctx, common.KeyAuditInProgress, started.ReportID); err != nil {
		p.log.Warn(ctx, "could not mark audit in progress", "report_id", started.ReportID, "error", err)
	}
	p.credits.DeductCredit(ctx)

	p.log.Info(ctx, "audit started", "report_id", started.ReportID, "region", code, "host", plan.Validation.Hostname)
	return started, nil
}
