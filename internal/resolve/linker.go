package resolve

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/alma-cli/internal/config"
	"github.com/sells-group/alma-cli/internal/model"
)

// Store is the datastore surface the linker needs. All Set/Claim writes
// are conditional single-row updates and report whether a row changed.
type Store interface {
	ListPrograms(ctx context.Context) ([]model.Program, error)
	ListOrganizations(ctx context.Context) ([]model.Organization, error)
	ListInterventionRefs(ctx context.Context) ([]model.InterventionRef, error)

	// SetProgramOrganization sets organization_id where it is still null.
	SetProgramOrganization(ctx context.Context, programID, organizationID string) (bool, error)
	// SetProgramIntervention sets alma_intervention_id and relationship_type
	// where alma_intervention_id is still null.
	SetProgramIntervention(ctx context.Context, programID, interventionID, relationshipType string) (bool, error)
	// ClaimIntervention sets linked_community_program_id where it is null
	// or already equal to programID.
	ClaimIntervention(ctx context.Context, interventionID, programID string) (bool, error)
}

// LinkerOptions configures a Linker.
type LinkerOptions struct {
	Stopwords        []string
	Thresholds       Thresholds
	Overrides        *OverrideRegistry
	WritesPerSecond  float64 // 0 disables throttling
	OrgReviewSample  int
	LinkReviewSample int
	DryRun           bool
}

// Linker runs one offline linkage batch over all programs.
type Linker struct {
	store   Store
	opts    LinkerOptions
	norm    *Normalizer
	limiter *rate.Limiter
	now     func() time.Time
}

// NewLinker creates a Linker.
func NewLinker(store Store, opts LinkerOptions) *Linker {
	l := &Linker{
		store: store,
		opts:  opts,
		norm:  NewNormalizer(opts.Stopwords),
		now:   time.Now,
	}
	if opts.WritesPerSecond > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(opts.WritesPerSecond), 1)
	}
	return l
}

// Run loads programs, organizations and interventions, resolves every
// unlinked program, and returns the run report. Per-program write errors
// are recorded in the report; only load failures abort the run.
func (l *Linker) Run(ctx context.Context) (*Report, error) {
	log := zap.L().With(zap.String("component", "linker"), zap.Bool("dry_run", l.opts.DryRun))

	var (
		programs []model.Program
		orgs     []model.Organization
		refs     []model.InterventionRef
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		programs, err = l.store.ListPrograms(gctx)
		return eris.Wrap(err, "linker: load programs")
	})
	g.Go(func() error {
		var err error
		orgs, err = l.store.ListOrganizations(gctx)
		return eris.Wrap(err, "linker: load organizations")
	})
	g.Go(func() error {
		var err error
		refs, err = l.store.ListInterventionRefs(gctx)
		return eris.Wrap(err, "linker: load interventions")
	})
	if err := g.Wait(); err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	log.Info("linker: loaded",
		zap.Int("programs", len(programs)),
		zap.Int("organizations", len(orgs)),
		zap.Int("interventions", len(refs)),
	)

	report := newReport(l.now(), l.opts.DryRun)

	orgMatcher := NewOrgMatcher(orgs, l.norm, l.opts.Thresholds)
	for _, p := range programs {
		if p.OrganizationID != nil {
			continue
		}
		if err := l.resolveOrganization(ctx, log, orgMatcher, p, report); err != nil {
			runsTotal.WithLabelValues("failed").Inc()
			return nil, err
		}
	}

	ivMatcher := NewInterventionMatcher(refs, l.norm, l.opts.Thresholds, l.opts.Overrides)
	// A forward link holds its intervention even when the back-reference
	// was never written.
	for _, p := range programs {
		if p.AlmaInterventionID != nil && *p.AlmaInterventionID != "" {
			ivMatcher.Claim(*p.AlmaInterventionID, p.ID)
		}
	}
	for _, p := range programs {
		if p.AlmaInterventionID != nil {
			continue
		}
		if err := l.resolveIntervention(ctx, log, ivMatcher, p, report); err != nil {
			runsTotal.WithLabelValues("failed").Inc()
			return nil, err
		}
	}

	report.finalize(len(programs), l.opts.OrgReviewSample, l.opts.LinkReviewSample)
	runsTotal.WithLabelValues("completed").Inc()

	log.Info("linker: complete",
		zap.Int("organizations_matched", report.Summary.OrganizationsMatched),
		zap.Int("links_created", report.Summary.LinksCreated),
		zap.Int("review_queue", report.Summary.OrganizationsNeedingReview+report.Summary.LinksNeedingReview),
		zap.Int("backreference_conflicts", report.Summary.BackreferenceConflicts),
	)

	return report, nil
}

func (l *Linker) resolveOrganization(ctx context.Context, log *zap.Logger, m *OrgMatcher, p model.Program, report *Report) error {
	org, method, score, ok := m.Match(p.Organization)
	if !ok {
		report.OrganizationNeedsReview = append(report.OrganizationNeedsReview, OrgReview{
			ProgramID:    p.ID,
			Organization: p.Organization,
		})
		orgDecisionsTotal.WithLabelValues("review", "").Inc()
		return nil
	}

	if !l.opts.DryRun {
		if err := l.wait(ctx); err != nil {
			return err
		}
		changed, err := l.store.SetProgramOrganization(ctx, p.ID, org.ID)
		if err != nil {
			log.Error("linker: update organization_id failed", zap.String("program_id", p.ID), zap.Error(err))
			report.WriteFailures = append(report.WriteFailures, WriteFailure{ProgramID: p.ID, Stage: "organization", Error: err.Error()})
			orgDecisionsTotal.WithLabelValues("error", string(method)).Inc()
			return nil
		}
		if !changed {
			log.Debug("linker: organization_id already set", zap.String("program_id", p.ID))
			orgDecisionsTotal.WithLabelValues("conflict", string(method)).Inc()
			return nil
		}
	}

	report.OrganizationMatches = append(report.OrganizationMatches, OrgMatch{
		ProgramID:      p.ID,
		OrganizationID: org.ID,
		Method:         method,
		Score:          score,
	})
	orgDecisionsTotal.WithLabelValues("matched", string(method)).Inc()
	return nil
}

func (l *Linker) resolveIntervention(ctx context.Context, log *zap.Logger, m *InterventionMatcher, p model.Program, report *Report) error {
	d := m.Match(p)
	minConfidence := max(l.opts.Thresholds.LinkMinConfidence, config.LinkConfidenceFloor)
	if d == nil || d.Confidence < minConfidence {
		reason := reasonNoMatch
		method := ""
		if d != nil {
			reason = reasonLowConfidence(d.Confidence)
			method = string(d.MatchMethod)
		}
		report.LinkNeedsReview = append(report.LinkNeedsReview, LinkReview{
			ProgramID:   p.ID,
			ProgramName: p.Name,
			Reason:      reason,
		})
		linkDecisionsTotal.WithLabelValues("review", method).Inc()
		return nil
	}

	method := string(d.MatchMethod)
	if !l.opts.DryRun {
		if err := l.wait(ctx); err != nil {
			return err
		}
		changed, err := l.store.SetProgramIntervention(ctx, p.ID, d.AlmaInterventionID, d.MatchMethod.RelationshipType())
		if err != nil {
			log.Error("linker: update alma_intervention_id failed", zap.String("program_id", p.ID), zap.Error(err))
			report.WriteFailures = append(report.WriteFailures, WriteFailure{ProgramID: p.ID, Stage: "intervention", Error: err.Error()})
			linkDecisionsTotal.WithLabelValues("error", method).Inc()
			return nil
		}
		if !changed {
			log.Debug("linker: alma_intervention_id already set", zap.String("program_id", p.ID))
			linkDecisionsTotal.WithLabelValues("conflict", method).Inc()
			return nil
		}

		claimed, err := l.store.ClaimIntervention(ctx, d.AlmaInterventionID, p.ID)
		switch {
		case err != nil:
			log.Error("linker: claim intervention failed",
				zap.String("program_id", p.ID),
				zap.String("intervention_id", d.AlmaInterventionID),
				zap.Error(err),
			)
			report.WriteFailures = append(report.WriteFailures, WriteFailure{ProgramID: p.ID, Stage: "backreference", Error: err.Error()})
		case !claimed:
			// The forward link stands; another program holds the back-reference.
			log.Warn("linker: intervention already claimed by another program",
				zap.String("program_id", p.ID),
				zap.String("intervention_id", d.AlmaInterventionID),
			)
			report.BackreferenceConflicts = append(report.BackreferenceConflicts, BackrefConflict{
				ProgramID:          p.ID,
				AlmaInterventionID: d.AlmaInterventionID,
			})
		}
	}

	m.Claim(d.AlmaInterventionID, p.ID)
	if o := d.Override(); o != nil {
		report.ManualOverridesApplied = append(report.ManualOverridesApplied, *o)
	}
	report.LinkUpdates = append(report.LinkUpdates, *d)
	linkDecisionsTotal.WithLabelValues("linked", method).Inc()
	return nil
}

func (l *Linker) wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	return eris.Wrap(l.limiter.Wait(ctx), "linker: rate limit")
}
