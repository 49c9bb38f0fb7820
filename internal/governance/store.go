package governance

import (
	"context"
	"time"

	"github.com/sells-group/alma-cli/internal/model"
)

// Store persists interventions, their links, the consent ledger and the
// usage log. Get/Latest methods return (nil, nil) when nothing matches.
type Store interface {
	InsertIntervention(ctx context.Context, iv *model.Intervention) error
	GetIntervention(ctx context.Context, id string) (*model.Intervention, error)
	ListInterventions(ctx context.Context, f model.InterventionFilter) ([]model.Intervention, int, error)

	// UpdateIntervention writes content and consent fields only while the
	// stored status is still editable. Returns false if no row changed.
	UpdateIntervention(ctx context.Context, iv *model.Intervention) (bool, error)
	// TransitionStatus moves id from one status to another with a single
	// compare-and-swap. reviewer, when non-nil, is stored with at as the
	// review stamp. Returns false if the row was not in status from.
	TransitionStatus(ctx context.Context, id string, from, to model.ReviewStatus, reviewer *string, at time.Time) (bool, error)
	UpdateSignals(ctx context.Context, id string, s model.PortfolioSignals) error

	// ReplaceLinks deletes every link of kind for id and inserts ids, atomically.
	ReplaceLinks(ctx context.Context, id string, kind model.LinkKind, ids []string) error

	AppendConsent(ctx context.Context, e *model.ConsentLedgerEntry) error
	LatestConsent(ctx context.Context, entityType, entityID string) (*model.ConsentLedgerEntry, error)
	AppendUsage(ctx context.Context, e *model.UsageLogEntry) error
	ListUsage(ctx context.Context, entityType, entityID string, f model.UsageFilter) ([]model.UsageLogEntry, error)
}

// SignalCalculator computes portfolio signals for an intervention.
// A nil result with a nil error means no signals are available.
type SignalCalculator interface {
	ComputeSignals(ctx context.Context, interventionID string) (*model.PortfolioSignals, error)
}
