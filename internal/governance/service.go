// Package governance is the mutation surface for ALMA interventions. Every
// state-changing call checks consent and review status before writing.
package governance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/alma-cli/internal/model"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// PublishDestination is recorded on usage rows for publish calls.
	PublishDestination = "JusticeHub"
)

// CreateRequest holds the fields for a new intervention.
type CreateRequest struct {
	Name                  string               `json:"name"`
	Type                  string               `json:"type"`
	Description           string               `json:"description"`
	TargetCohort          []string             `json:"target_cohort"`
	Geography             []string             `json:"geography"`
	EvidenceLevel         string               `json:"evidence_level"`
	CulturalAuthority     string               `json:"cultural_authority"`
	ConsentLevel          model.ConsentLevel   `json:"consent_level"`
	PermittedUses         []model.PermittedUse `json:"permitted_uses"`
	Contributors          []string             `json:"contributors"`
	OperatingOrganization string               `json:"operating_organization"`
	Website               string               `json:"website"`
	Metadata              map[string]any       `json:"metadata"`
}

// UpdateRequest is a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	ID                    string               `json:"id"`
	Name                  *string              `json:"name,omitempty"`
	Type                  *string              `json:"type,omitempty"`
	Description           *string              `json:"description,omitempty"`
	TargetCohort          []string             `json:"target_cohort,omitempty"`
	Geography             []string             `json:"geography,omitempty"`
	EvidenceLevel         *string              `json:"evidence_level,omitempty"`
	CulturalAuthority     *string              `json:"cultural_authority,omitempty"`
	ConsentLevel          *model.ConsentLevel  `json:"consent_level,omitempty"`
	PermittedUses         []model.PermittedUse `json:"permitted_uses,omitempty"`
	Contributors          []string             `json:"contributors,omitempty"`
	OperatingOrganization *string              `json:"operating_organization,omitempty"`
	Website               *string              `json:"website,omitempty"`
	Metadata              map[string]any       `json:"metadata,omitempty"`
}

// Service enforces the intervention lifecycle.
type Service struct {
	store   Store
	signals SignalCalculator
	now     func() time.Time
	newID   func() string
}

// NewService creates a Service. signals may be nil, in which case portfolio
// signals are never refreshed.
func NewService(store Store, signals SignalCalculator) *Service {
	return &Service{
		store:   store,
		signals: signals,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Create stores a new Draft intervention, records its initial consent,
// refreshes its signals and logs the creation.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID string) (iv *model.Intervention, err error) {
	defer func() { observe("create", err) }()

	if strings.TrimSpace(req.Name) == "" {
		return nil, newError(KindValidation, "name is required")
	}
	level := req.ConsentLevel
	if level == "" {
		level = model.ConsentPrivate
	}
	uses := req.PermittedUses
	if len(uses) == 0 {
		uses = []model.PermittedUse{model.UseQueryInternal}
	}
	if err := validateConsent(level, uses); err != nil {
		return nil, err
	}
	if err := requireAuthority(level, req.CulturalAuthority); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	iv = &model.Intervention{
		ID:                    s.newID(),
		Name:                  strings.TrimSpace(req.Name),
		Type:                  req.Type,
		Description:           req.Description,
		TargetCohort:          nonNil(req.TargetCohort),
		Geography:             nonNil(req.Geography),
		EvidenceLevel:         req.EvidenceLevel,
		CulturalAuthority:     strings.TrimSpace(req.CulturalAuthority),
		ConsentLevel:          level,
		PermittedUses:         uses,
		Contributors:          nonNil(req.Contributors),
		OperatingOrganization: req.OperatingOrganization,
		Website:               req.Website,
		ReviewStatus:          model.StatusDraft,
		Metadata:              req.Metadata,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.store.InsertIntervention(ctx, iv); err != nil {
		return nil, eris.Wrap(err, "governance: insert intervention")
	}

	log := zap.L().With(zap.String("component", "governance"), zap.String("intervention_id", iv.ID))
	log.Info("governance: intervention created", zap.String("actor", actorID), zap.String("consent_level", string(level)))

	s.appendConsent(ctx, log, iv, actorID, nil)
	iv.Signals = s.refreshSignals(ctx, log, iv.ID)
	s.logUsage(ctx, log, iv.ID, model.ActionCreate, actorID, "")

	return iv, nil
}

// GetByID returns an intervention. A view is logged when actorID is set.
func (s *Service) GetByID(ctx context.Context, id, actorID string) (*model.Intervention, error) {
	iv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != "" {
		log := zap.L().With(zap.String("component", "governance"), zap.String("intervention_id", id))
		s.logUsage(ctx, log, id, model.ActionView, actorID, "")
	}
	return iv, nil
}

// List returns interventions matching f, highest portfolio score first,
// along with the total number of matches ignoring limit and offset.
func (s *Service) List(ctx context.Context, f model.InterventionFilter) ([]model.Intervention, int, error) {
	if f.ConsentLevel != "" && !f.ConsentLevel.Valid() {
		return nil, 0, newError(KindValidation, fmt.Sprintf("unknown consent level %q", f.ConsentLevel))
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	items, total, err := s.store.ListInterventions(ctx, f)
	if err != nil {
		return nil, 0, eris.Wrap(err, "governance: list interventions")
	}
	return items, total, nil
}

// Update applies a partial update while the intervention is in Draft or
// Community Review.
func (s *Service) Update(ctx context.Context, req UpdateRequest, actorID string) (iv *model.Intervention, err error) {
	defer func() { observe("update", err) }()

	current, err := s.get(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if !current.ReviewStatus.Editable() {
		return nil, newError(KindInvalidStatusForUpdate,
			fmt.Sprintf("cannot update intervention in %s status", current.ReviewStatus))
	}

	next := *current
	consentChanged := applyUpdate(&next, req)
	if next.Name == "" {
		return nil, newError(KindValidation, "name is required")
	}
	if err := validateConsent(next.ConsentLevel, next.PermittedUses); err != nil {
		return nil, err
	}
	if err := requireAuthority(next.ConsentLevel, next.CulturalAuthority); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()

	ok, err := s.store.UpdateIntervention(ctx, &next)
	if err != nil {
		return nil, eris.Wrap(err, "governance: update intervention")
	}
	if !ok {
		return nil, newError(KindInvalidStatusForUpdate, "intervention left Draft or Community Review before the update was written")
	}

	log := zap.L().With(zap.String("component", "governance"), zap.String("intervention_id", next.ID))
	log.Info("governance: intervention updated", zap.String("actor", actorID), zap.Bool("consent_changed", consentChanged))

	if consentChanged {
		s.amendConsent(ctx, log, &next, actorID)
	}
	if sig := s.refreshSignals(ctx, log, next.ID); sig != nil {
		next.Signals = sig
	}
	s.logUsage(ctx, log, next.ID, model.ActionUpdate, actorID, "")

	return &next, nil
}

// SubmitForReview moves a Draft intervention to Community Review.
func (s *Service) SubmitForReview(ctx context.Context, id, actorID string) (err error) {
	defer func() { observe("submit", err) }()

	current, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if current.ReviewStatus != model.StatusDraft {
		return newError(KindInvalidStatusForTransition,
			fmt.Sprintf("can only submit Draft interventions, current status is %s", current.ReviewStatus))
	}

	ok, err := s.store.TransitionStatus(ctx, id, model.StatusDraft, model.StatusCommunityReview, nil, s.now().UTC())
	if err != nil {
		return eris.Wrap(err, "governance: submit for review")
	}
	if !ok {
		return newError(KindInvalidStatusForTransition, "intervention is no longer in Draft")
	}

	log := zap.L().With(zap.String("component", "governance"), zap.String("intervention_id", id))
	log.Info("governance: submitted for review", zap.String("actor", actorID))
	s.logUsage(ctx, log, id, model.ActionSubmit, actorID, "")
	return nil
}

// Approve moves a Community Review intervention to Approved and stamps the
// reviewer. Losing a concurrent approve race is not an error.
func (s *Service) Approve(ctx context.Context, id, actorID string) (err error) {
	defer func() { observe("approve", err) }()

	current, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if current.ReviewStatus != model.StatusCommunityReview {
		return newError(KindInvalidStatusForTransition,
			fmt.Sprintf("can only approve interventions in Community Review, current status is %s", current.ReviewStatus))
	}

	reviewer := actorID
	ok, err := s.store.TransitionStatus(ctx, id, model.StatusCommunityReview, model.StatusApproved, &reviewer, s.now().UTC())
	if err != nil {
		return eris.Wrap(err, "governance: approve")
	}

	log := zap.L().With(zap.String("component", "governance"), zap.String("intervention_id", id))
	if !ok {
		log.Info("governance: approve lost race, already moved on", zap.String("actor", actorID))
	} else {
		log.Info("governance: approved", zap.String("actor", actorID))
	}
	s.logUsage(ctx, log, id, model.ActionApprove, actorID, "")
	return nil
}

// Publish moves an Approved intervention to Published. The status gate is
// checked first, then consent for "Publish (JusticeHub)". Losing a
// concurrent publish race is not an error.
func (s *Service) Publish(ctx context.Context, id, actorID string) (err error) {
	defer func() { observe("publish", err) }()

	current, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if current.ReviewStatus != model.StatusApproved {
		return newError(KindInvalidStatusForTransition,
			fmt.Sprintf("can only publish Approved interventions, current status is %s", current.ReviewStatus))
	}

	res, err := s.evaluate(ctx, current, model.UsePublish, publishRules)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return newError(KindConsentNotGranted, "cannot publish: "+res.Reason)
	}

	ok, err := s.store.TransitionStatus(ctx, id, model.StatusApproved, model.StatusPublished, nil, s.now().UTC())
	if err != nil {
		return eris.Wrap(err, "governance: publish")
	}

	log := zap.L().With(zap.String("component", "governance"), zap.String("intervention_id", id))
	if !ok {
		log.Info("governance: publish lost race, already moved on", zap.String("actor", actorID))
	} else {
		log.Info("governance: published", zap.String("actor", actorID), zap.String("destination", PublishDestination))
	}
	s.logUsage(ctx, log, id, model.ActionPublish, actorID, PublishDestination)
	return nil
}

// LinkOutcomes replaces the intervention's outcome links with ids.
func (s *Service) LinkOutcomes(ctx context.Context, id string, ids []string) error {
	return s.replaceLinks(ctx, id, model.LinkOutcomes, ids)
}

// LinkEvidence replaces the intervention's evidence links with ids.
func (s *Service) LinkEvidence(ctx context.Context, id string, ids []string) error {
	return s.replaceLinks(ctx, id, model.LinkEvidence, ids)
}

// LinkContexts replaces the intervention's community context links with ids.
func (s *Service) LinkContexts(ctx context.Context, id string, ids []string) error {
	return s.replaceLinks(ctx, id, model.LinkContexts, ids)
}

func (s *Service) replaceLinks(ctx context.Context, id string, kind model.LinkKind, ids []string) (err error) {
	defer func() { observe("link_"+string(kind), err) }()

	if _, err := s.get(ctx, id); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, raw := range ids {
		v := strings.TrimSpace(raw)
		if v == "" {
			return newError(KindValidation, fmt.Sprintf("%s ids must not be empty", kind))
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}

	if err := s.store.ReplaceLinks(ctx, id, kind, unique); err != nil {
		return eris.Wrapf(err, "governance: link %s", kind)
	}
	zap.L().Debug("governance: links replaced",
		zap.String("intervention_id", id),
		zap.String("kind", string(kind)),
		zap.Int("count", len(unique)),
	)
	return nil
}

func (s *Service) get(ctx context.Context, id string) (*model.Intervention, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newError(KindValidation, "id is required")
	}
	iv, err := s.store.GetIntervention(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "governance: get intervention")
	}
	if iv == nil {
		return nil, newError(KindNotFound, fmt.Sprintf("intervention %s not found", id))
	}
	return iv, nil
}

// refreshSignals recomputes and stores portfolio signals. Failures are
// logged; the primary write has already succeeded.
func (s *Service) refreshSignals(ctx context.Context, log *zap.Logger, id string) *model.PortfolioSignals {
	if s.signals == nil {
		return nil
	}
	sig, err := s.signals.ComputeSignals(ctx, id)
	if err != nil {
		sideEffectFailuresTotal.WithLabelValues("signals").Inc()
		log.Warn("governance: compute signals failed", zap.Error(err))
		return nil
	}
	if sig == nil {
		return nil
	}
	if err := s.store.UpdateSignals(ctx, id, *sig); err != nil {
		sideEffectFailuresTotal.WithLabelValues("signals").Inc()
		log.Warn("governance: store signals failed", zap.Error(err))
		return nil
	}
	return sig
}

func (s *Service) logUsage(ctx context.Context, log *zap.Logger, id string, action model.UsageAction, actorID, destination string) {
	entry := &model.UsageLogEntry{
		ID:          s.newID(),
		EntityType:  model.EntityTypeIntervention,
		EntityID:    id,
		Action:      action,
		UserID:      actorID,
		Destination: destination,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.AppendUsage(ctx, entry); err != nil {
		sideEffectFailuresTotal.WithLabelValues("usage").Inc()
		log.Warn("governance: append usage failed", zap.String("action", string(action)), zap.Error(err))
	}
}

func applyUpdate(iv *model.Intervention, req UpdateRequest) (consentChanged bool) {
	if req.Name != nil {
		iv.Name = strings.TrimSpace(*req.Name)
	}
	if req.Type != nil {
		iv.Type = *req.Type
	}
	if req.Description != nil {
		iv.Description = *req.Description
	}
	if req.TargetCohort != nil {
		iv.TargetCohort = req.TargetCohort
	}
	if req.Geography != nil {
		iv.Geography = req.Geography
	}
	if req.EvidenceLevel != nil {
		iv.EvidenceLevel = *req.EvidenceLevel
	}
	if req.Contributors != nil {
		iv.Contributors = req.Contributors
	}
	if req.OperatingOrganization != nil {
		iv.OperatingOrganization = *req.OperatingOrganization
	}
	if req.Website != nil {
		iv.Website = *req.Website
	}
	if req.Metadata != nil {
		iv.Metadata = req.Metadata
	}

	if req.CulturalAuthority != nil {
		if v := strings.TrimSpace(*req.CulturalAuthority); v != iv.CulturalAuthority {
			iv.CulturalAuthority = v
			consentChanged = true
		}
	}
	if req.ConsentLevel != nil && *req.ConsentLevel != iv.ConsentLevel {
		iv.ConsentLevel = *req.ConsentLevel
		consentChanged = true
	}
	if req.PermittedUses != nil && !sameUses(req.PermittedUses, iv.PermittedUses) {
		iv.PermittedUses = req.PermittedUses
		consentChanged = true
	}
	return consentChanged
}

func validateConsent(level model.ConsentLevel, uses []model.PermittedUse) error {
	if !level.Valid() {
		return newError(KindValidation, fmt.Sprintf("unknown consent level %q", level))
	}
	for _, u := range uses {
		if !u.Valid() {
			return newError(KindValidation, fmt.Sprintf("unknown permitted use %q", u))
		}
	}
	return nil
}

// requireAuthority enforces that non-public knowledge names a cultural authority.
func requireAuthority(level model.ConsentLevel, authority string) error {
	if level != model.ConsentPublic && strings.TrimSpace(authority) == "" {
		return newError(KindMissingCulturalAuthority,
			fmt.Sprintf("cultural authority required for %s knowledge", level))
	}
	return nil
}

func sameUses(a, b []model.PermittedUse) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
