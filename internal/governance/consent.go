package governance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/alma-cli/internal/model"
)

// Rule names reported in PermissionResult.Checks.
const (
	RuleConsentExists     = "consent_exists"
	RuleConsentNotRevoked = "consent_not_revoked"
	RuleConsentNotExpired = "consent_not_expired"
	RuleActionPermitted   = "action_permitted"
	RuleLevelRestriction  = "consent_level_restriction"
)

// PermissionResult is the outcome of a consent check. Checks lists every
// rule evaluated, in order, up to and including the first failure.
type PermissionResult struct {
	Allowed bool                    `json:"allowed"`
	Reason  string                  `json:"reason,omitempty"`
	Checks  []model.GovernanceCheck `json:"checks"`
}

type ruleSet struct {
	// requireLedger fails the check when no ledger row exists.
	requireLedger bool
	// levelRestriction applies the per-consent-level action limits.
	levelRestriction bool
}

var (
	permissionRules = ruleSet{requireLedger: true, levelRestriction: true}

	// Publishing is gated on the intervention's own permitted uses. A
	// ledger row, when present, can still block it by revocation or expiry.
	publishRules = ruleSet{}
)

// CheckPermission reports whether action is permitted on an intervention
// under its most recent consent record.
func (s *Service) CheckPermission(ctx context.Context, id string, action model.PermittedUse) (*PermissionResult, error) {
	if !action.Valid() {
		return nil, newError(KindValidation, fmt.Sprintf("unknown permitted use %q", action))
	}
	iv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, iv, action, permissionRules)
}

func (s *Service) evaluate(ctx context.Context, iv *model.Intervention, action model.PermittedUse, rules ruleSet) (*PermissionResult, error) {
	ledger, err := s.store.LatestConsent(ctx, model.EntityTypeIntervention, iv.ID)
	if err != nil {
		return nil, eris.Wrap(err, "governance: latest consent")
	}

	res := &PermissionResult{Checks: []model.GovernanceCheck{}}
	fail := func(c model.GovernanceCheck, reason string) (*PermissionResult, error) {
		res.Checks = append(res.Checks, c)
		res.Reason = reason
		return res, nil
	}
	pass := func(rule string) {
		res.Checks = append(res.Checks, model.GovernanceCheck{Rule: rule, Passed: true})
	}

	level := iv.ConsentLevel
	uses := iv.PermittedUses

	if ledger == nil {
		if rules.requireLedger {
			return fail(model.GovernanceCheck{
				Rule:           RuleConsentExists,
				Reason:         "No consent record found",
				RequiredAction: "Record consent",
			}, "No consent record found for this entity")
		}
	} else {
		if rules.requireLedger {
			pass(RuleConsentExists)
			level = ledger.ConsentLevel
			uses = ledger.PermittedUses
		}
		if ledger.Revoked {
			c := model.GovernanceCheck{Rule: RuleConsentNotRevoked, Reason: "Consent revoked"}
			if ledger.Notes != "" {
				c.Reason = "Consent revoked: " + ledger.Notes
			}
			return fail(c, "Consent has been revoked")
		}
		pass(RuleConsentNotRevoked)

		if ledger.ConsentExpiresAt != nil && ledger.ConsentExpiresAt.Before(s.now()) {
			return fail(model.GovernanceCheck{
				Rule:           RuleConsentNotExpired,
				Reason:         "Consent expired on " + ledger.ConsentExpiresAt.UTC().Format(time.RFC3339),
				RequiredAction: "Renew consent",
			}, "Consent has expired")
		}
		pass(RuleConsentNotExpired)
	}

	if !containsUse(uses, action) {
		return fail(model.GovernanceCheck{
			Rule:           RuleActionPermitted,
			Reason:         fmt.Sprintf("Action %q not in permitted uses: %s", action, joinUses(uses)),
			RequiredAction: "Update consent to include this action",
		}, fmt.Sprintf("Action %q not permitted", action))
	}
	pass(RuleActionPermitted)

	if rules.levelRestriction {
		c := levelCheck(level, action)
		if !c.Passed {
			return fail(c, c.Reason)
		}
		res.Checks = append(res.Checks, c)
	}

	res.Allowed = true
	return res, nil
}

func levelCheck(level model.ConsentLevel, action model.PermittedUse) model.GovernanceCheck {
	switch {
	case level == model.ConsentPrivate && action != model.UseQueryInternal:
		return model.GovernanceCheck{
			Rule:           RuleLevelRestriction,
			Reason:         "Strictly Private entities can only be queried internally",
			RequiredAction: "Escalate consent level to Community Controlled or Public",
		}
	case level == model.ConsentCommunity && action == model.UseTraining:
		return model.GovernanceCheck{
			Rule:           RuleLevelRestriction,
			Reason:         "Community Controlled entities require explicit permission for AI training",
			RequiredAction: "Obtain community approval for AI training",
		}
	}
	return model.GovernanceCheck{Rule: RuleLevelRestriction, Passed: true}
}

// RevokeConsent appends a revoked copy of the current consent record.
// Later publish and permission checks fail until consent is recorded again.
func (s *Service) RevokeConsent(ctx context.Context, id, actorID, reason string) (err error) {
	defer func() { observe("revoke", err) }()

	if _, err := s.get(ctx, id); err != nil {
		return err
	}
	current, err := s.store.LatestConsent(ctx, model.EntityTypeIntervention, id)
	if err != nil {
		return eris.Wrap(err, "governance: latest consent")
	}
	if current == nil {
		return newError(KindNotFound, "No consent record found")
	}

	revoked := *current
	revoked.ID = s.newID()
	revoked.ConsentGivenBy = actorID
	revoked.ConsentGivenAt = s.now().UTC()
	revoked.Revoked = true
	if r := strings.TrimSpace(reason); r != "" {
		revoked.Notes = r
	}
	if err := s.store.AppendConsent(ctx, &revoked); err != nil {
		return eris.Wrap(err, "governance: revoke consent")
	}

	log := zap.L().With(zap.String("component", "governance"), zap.String("intervention_id", id))
	log.Info("governance: consent revoked", zap.String("actor", actorID), zap.String("reason", revoked.Notes))
	s.logUsage(ctx, log, id, model.ActionRevoke, actorID, "")
	return nil
}

// RecordConsent appends a fresh, unrevoked consent record carrying the
// intervention's current terms. expiresAt may be nil for open-ended consent.
func (s *Service) RecordConsent(ctx context.Context, id, actorID string, expiresAt *time.Time) (entry *model.ConsentLedgerEntry, err error) {
	defer func() { observe("consent", err) }()

	iv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return nil, newError(KindValidation, "consent expiry must be in the future")
	}

	entry = s.ledgerEntry(iv, actorID, expiresAt)
	if err := s.store.AppendConsent(ctx, entry); err != nil {
		return nil, eris.Wrap(err, "governance: record consent")
	}

	log := zap.L().With(zap.String("component", "governance"), zap.String("intervention_id", id))
	log.Info("governance: consent recorded", zap.String("actor", actorID))
	s.logUsage(ctx, log, id, model.ActionConsent, actorID, "")
	return entry, nil
}

// UsageHistory returns the usage log for an intervention, newest first.
func (s *Service) UsageHistory(ctx context.Context, id string, f model.UsageFilter) ([]model.UsageLogEntry, error) {
	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}
	if f.Since != nil && f.Until != nil && f.Until.Before(*f.Since) {
		return nil, newError(KindValidation, "until must not be before since")
	}
	entries, err := s.store.ListUsage(ctx, model.EntityTypeIntervention, id, f)
	if err != nil {
		return nil, eris.Wrap(err, "governance: list usage")
	}
	return entries, nil
}

// appendConsent writes a ledger row for iv's current terms. Failures are
// logged; the primary write has already succeeded.
func (s *Service) appendConsent(ctx context.Context, log *zap.Logger, iv *model.Intervention, actorID string, expiresAt *time.Time) {
	if err := s.store.AppendConsent(ctx, s.ledgerEntry(iv, actorID, expiresAt)); err != nil {
		sideEffectFailuresTotal.WithLabelValues("ledger").Inc()
		log.Warn("governance: append consent failed", zap.Error(err))
	}
}

// amendConsent records iv's edited terms. Revocation and expiry carry over
// from the latest row; only RecordConsent grants consent afresh.
func (s *Service) amendConsent(ctx context.Context, log *zap.Logger, iv *model.Intervention, actorID string) {
	latest, err := s.store.LatestConsent(ctx, model.EntityTypeIntervention, iv.ID)
	if err != nil {
		sideEffectFailuresTotal.WithLabelValues("ledger").Inc()
		log.Warn("governance: latest consent failed", zap.Error(err))
		return
	}

	entry := s.ledgerEntry(iv, actorID, nil)
	if latest != nil {
		entry.ConsentExpiresAt = latest.ConsentExpiresAt
		entry.Revoked = latest.Revoked
		if latest.Revoked {
			entry.Notes = latest.Notes
		}
	}
	if err := s.store.AppendConsent(ctx, entry); err != nil {
		sideEffectFailuresTotal.WithLabelValues("ledger").Inc()
		log.Warn("governance: append consent failed", zap.Error(err))
	}
}

func (s *Service) ledgerEntry(iv *model.Intervention, actorID string, expiresAt *time.Time) *model.ConsentLedgerEntry {
	return &model.ConsentLedgerEntry{
		ID:                  s.newID(),
		EntityType:          model.EntityTypeIntervention,
		EntityID:            iv.ID,
		ConsentLevel:        iv.ConsentLevel,
		PermittedUses:       append([]model.PermittedUse(nil), iv.PermittedUses...),
		CulturalAuthority:   iv.CulturalAuthority,
		Contributors:        append([]string{}, iv.Contributors...),
		ConsentGivenBy:      actorID,
		ConsentGivenAt:      s.now().UTC(),
		ConsentExpiresAt:    expiresAt,
		RevenueShareEnabled: true,
	}
}

func containsUse(uses []model.PermittedUse, u model.PermittedUse) bool {
	for _, v := range uses {
		if v == u {
			return true
		}
	}
	return false
}

func joinUses(uses []model.PermittedUse) string {
	parts := make([]string, len(uses))
	for i, u := range uses {
		parts[i] = string(u)
	}
	return strings.Join(parts, ", ")
}
