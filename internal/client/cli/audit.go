package cli

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/audit"
	"github.com/dmitrijs2005/aivedhaguard/internal/common"
)

// CheckURL validates a target and shows where it would be scanned from.
// It does not need a session.
func (a *App) CheckURL(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.printf("Usage: check <url>\n")
		return errUsage
	}
	if a.isLoggedIn() {
		a.touch(ctx)
	}
	a.printPlan(a.auditor.Prepare(args[0]))
	return nil
}

// Audit validates the target, asks for confirmation and starts the audit,
// which costs one credit.
func (a *App) Audit(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.printf("Usage: audit <url>\n")
		return errUsage
	}
	if !a.isLoggedIn() {
		return common.ErrNotAuthenticated
	}
	a.touch(ctx)

	plan := a.auditor.Prepare(args[0])
	a.printPlan(plan)
	if !plan.Validation.CanProceed() {
		return nil
	}
	if plan.Credits <= 0 {
		return common.ErrOutOfCredits
	}

	ok, err := Confirm(a.reader, "Start the audit for 1 credit?", a.out)
	if err != nil {
		return err
	}
	if !ok {
		a.printf("Cancelled\n")
		return nil
	}

	started, err := a.auditor.Start(ctx, plan)
	if err != nil {
		return err
	}
	a.printf("Audit started, report %s\n", started.ReportID)
	return nil
}

func (a *App) printPlan(p audit.Plan) {
	v := p.Validation
	if v.NormalizedURL != "" {
		a.printf("Target: %s\n", v.NormalizedURL)
	}
	for _, e := range v.Errors {
		a.printf("  error: %s\n", e)
	}
	for _, w := range v.Warnings {
		a.printf("  warning: %s\n", w)
	}
	if !v.CanProceed() {
		return
	}
	a.printf("Region: %s (%s)\n", p.Region.Name, p.Region.Code)
	a.printf("Allow-list these scanner IPs: %s\n", strings.Join(p.StaticIPs, ", "))
	a.printf("Credits available: %d\n", p.Credits)
}
