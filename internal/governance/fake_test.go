package governance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sells-group/alma-cli/internal/model"
)

// memStore is an in-memory Store used by the service tests.
type memStore struct {
	mu      sync.Mutex
	ivs     map[string]*model.Intervention
	links   map[model.LinkKind]map[string][]string
	ledger  []model.ConsentLedgerEntry
	usage   []model.UsageLogEntry
	signals map[string]model.PortfolioSignals

	usageErr  error
	ledgerErr error
	// beforeTransition runs inside TransitionStatus before the CAS, to
	// simulate a concurrent writer.
	beforeTransition func(id string)
}

func newMemStore() *memStore {
	return &memStore{
		ivs:     make(map[string]*model.Intervention),
		links:   make(map[model.LinkKind]map[string][]string),
		signals: make(map[string]model.PortfolioSignals),
	}
}

func (m *memStore) InsertIntervention(_ context.Context, iv *model.Intervention) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *iv
	m.ivs[iv.ID] = &cp
	return nil
}

func (m *memStore) GetIntervention(_ context.Context, id string) (*model.Intervention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv, ok := m.ivs[id]
	if !ok {
		return nil, nil
	}
	cp := *iv
	return &cp, nil
}

func (m *memStore) ListInterventions(_ context.Context, f model.InterventionFilter) ([]model.Intervention, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Intervention
	for _, iv := range m.ivs {
		if f.ConsentLevel != "" && iv.ConsentLevel != f.ConsentLevel {
			continue
		}
		if f.ReviewStatus != "" && iv.ReviewStatus != f.ReviewStatus {
			continue
		}
		out = append(out, *iv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if f.Offset >= len(out) {
		return []model.Intervention{}, total, nil
	}
	out = out[f.Offset:]
	if f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memStore) UpdateIntervention(_ context.Context, iv *model.Intervention) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.ivs[iv.ID]
	if !ok || !cur.ReviewStatus.Editable() {
		return false, nil
	}
	cp := *iv
	cp.ReviewStatus = cur.ReviewStatus
	m.ivs[iv.ID] = &cp
	return true, nil
}

func (m *memStore) TransitionStatus(_ context.Context, id string, from, to model.ReviewStatus, reviewer *string, at time.Time) (bool, error) {
	if m.beforeTransition != nil {
		m.beforeTransition(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.ivs[id]
	if !ok || cur.ReviewStatus != from {
		return false, nil
	}
	cur.ReviewStatus = to
	if reviewer != nil {
		r := *reviewer
		cur.ReviewedBy = &r
		cur.ReviewedAt = &at
	}
	return true, nil
}

func (m *memStore) UpdateSignals(_ context.Context, id string, s model.PortfolioSignals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[id] = s
	if iv, ok := m.ivs[id]; ok {
		sig := s
		iv.Signals = &sig
	}
	return nil
}

func (m *memStore) ReplaceLinks(_ context.Context, id string, kind model.LinkKind, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links[kind] == nil {
		m.links[kind] = make(map[string][]string)
	}
	m.links[kind][id] = append([]string{}, ids...)
	return nil
}

func (m *memStore) AppendConsent(_ context.Context, e *model.ConsentLedgerEntry) error {
	if m.ledgerErr != nil {
		return m.ledgerErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = append(m.ledger, *e)
	return nil
}

func (m *memStore) LatestConsent(_ context.Context, entityType, entityID string) (*model.ConsentLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.ledger) - 1; i >= 0; i-- {
		e := m.ledger[i]
		if e.EntityType == entityType && e.EntityID == entityID {
			return &e, nil
		}
	}
	return nil, nil
}

func (m *memStore) AppendUsage(_ context.Context, e *model.UsageLogEntry) error {
	if m.usageErr != nil {
		return m.usageErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, *e)
	return nil
}

func (m *memStore) ListUsage(_ context.Context, entityType, entityID string, f model.UsageFilter) ([]model.UsageLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.UsageLogEntry
	for i := len(m.usage) - 1; i >= 0; i-- {
		e := m.usage[i]
		if e.EntityType != entityType || e.EntityID != entityID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) actions(id string) []model.UsageAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.UsageAction
	for _, e := range m.usage {
		if e.EntityID == id {
			out = append(out, e.Action)
		}
	}
	return out
}

func (m *memStore) setStatus(id string, st model.ReviewStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ivs[id].ReviewStatus = st
}

type stubSignals struct {
	sig   *model.PortfolioSignals
	err   error
	calls int
}

func (s *stubSignals) ComputeSignals(_ context.Context, _ string) (*model.PortfolioSignals, error) {
	s.calls++
	return s.sig, s.err
}

var errBoom = errors.New("boom")
