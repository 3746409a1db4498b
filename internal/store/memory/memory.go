// Package memory is an in-process Store used by local runs and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"submission-workflow/internal/models"
	"submission-workflow/internal/store"
)

type Store struct {
	mu          sync.RWMutex
	submissions map[string]*models.Submission
	quotes      map[string]*models.Quote
	plans       map[string]*models.FinancePlan
	payments    map[string][]models.Payment
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		submissions: make(map[string]*models.Submission),
		quotes:      make(map[string]*models.Quote),
		plans:       make(map[string]*models.FinancePlan),
		payments:    make(map[string][]models.Payment),
	}
}

func (m *Store) Ping(context.Context) error { return nil }

// ==========================
// Submissions
// ==========================

func (m *Store) CreateSubmission(_ context.Context, s *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.submissions[s.ID]; exists {
		return store.ErrDuplicate
	}
	m.submissions[s.ID] = s.Clone()
	return nil
}

func (m *Store) GetSubmission(_ context.Context, id string) (*models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *Store) UpdateSubmission(_ context.Context, s *models.Submission, expectedStatus models.SubmissionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.submissions[s.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Status != expectedStatus || current.Version != s.Version {
		return store.ErrConflict
	}
	s.Version++
	m.submissions[s.ID] = s.Clone()
	return nil
}

func (m *Store) ListSubmissions(_ context.Context, filter models.SubmissionFilter) ([]*models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Submission, 0)
	query := strings.ToLower(filter.Query)
	for _, s := range m.submissions {
		if filter.AgencyID != "" && s.AgencyID != filter.AgencyID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(s.ClientContact.Name), query) {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.From, filter.Size), nil
}

func page(items []*models.Submission, from, size int) []*models.Submission {
	if from >= len(items) {
		return []*models.Submission{}
	}
	if from < 0 {
		from = 0
	}
	end := len(items)
	if size > 0 && from+size < end {
		end = from + size
	}
	return items[from:end]
}

// ==========================
// Quotes
// ==========================

func (m *Store) CreateQuote(_ context.Context, q *models.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.quotes[q.ID]; exists {
		return store.ErrDuplicate
	}
	m.quotes[q.ID] = q.Clone()
	return nil
}

func (m *Store) GetQuote(_ context.Context, id string) (*models.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return q.Clone(), nil
}

func (m *Store) ListQuotesBySubmission(_ context.Context, submissionID string) ([]*models.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Quote, 0)
	for _, q := range m.quotes {
		if q.SubmissionID == submissionID {
			out = append(out, q.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Store) UpdateQuote(_ context.Context, q *models.Quote, expectedStatus models.QuoteStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.quotes[q.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Status != expectedStatus || current.Version != q.Version {
		return store.ErrConflict
	}
	q.Version++
	m.quotes[q.ID] = q.Clone()
	return nil
}

// ==========================
// Finance plans
// ==========================

func (m *Store) GetFinancePlan(_ context.Context, quoteID string) (*models.FinancePlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[quoteID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePlan(p), nil
}

func (m *Store) SaveFinancePlan(_ context.Context, plan *models.FinancePlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.plans[plan.QuoteID]; ok && current.Locked() {
		return store.ErrConflict
	}
	m.plans[plan.QuoteID] = clonePlan(plan)
	return nil
}

func (m *Store) DeleteFinancePlan(_ context.Context, quoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.plans[quoteID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Locked() {
		return store.ErrConflict
	}
	delete(m.plans, quoteID)
	return nil
}

func (m *Store) LockFinancePlan(_ context.Context, quoteID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.plans[quoteID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Locked() {
		return nil
	}
	locked := clonePlan(current)
	locked.LockedAt = &at
	m.plans[quoteID] = locked
	return nil
}

func clonePlan(p *models.FinancePlan) *models.FinancePlan {
	out := *p
	out.Schedule = append([]models.AmortizationEntry(nil), p.Schedule...)
	if p.LockedAt != nil {
		at := *p.LockedAt
		out.LockedAt = &at
	}
	return &out
}

// ==========================
// Payments
// ==========================

func (m *Store) AppendPayment(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.payments[p.QuoteID]) > 0 {
		return store.ErrDuplicate
	}
	m.payments[p.QuoteID] = append(m.payments[p.QuoteID], *p)
	return nil
}

func (m *Store) ListPayments(_ context.Context, quoteID string) ([]models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Payment(nil), m.payments[quoteID]...), nil
}
