// Package postgres is the PostgreSQL Store. Each entity is one JSONB row;
// guarded updates compare status and version in the WHERE clause so a lost
// race affects zero rows.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"submission-workflow/internal/common/database"
	"submission-workflow/internal/models"
	"submission-workflow/internal/store"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type Store struct {
	client *database.PostgresClient
}

var _ store.Store = (*Store)(nil)

func New(client *database.PostgresClient) *Store {
	return &Store{client: client}
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// ==========================
// Submissions
// ==========================

func (s *Store) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	doc, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	_, err = s.client.DB.ExecContext(ctx,
		`INSERT INTO submissions (id, agency_id, status, version, document, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.AgencyID, string(sub.Status), sub.Version, doc, sub.CreatedAt, sub.UpdatedAt,
	)
	return mapWriteError(err)
}

func (s *Store) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	var raw []byte
	if err := s.client.DB.GetContext(ctx, &raw, `SELECT document FROM submissions WHERE id = $1`, id); err != nil {
		return nil, mapReadError(err)
	}
	var sub models.Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("decode submission %s: %w", id, err)
	}
	return &sub, nil
}

func (s *Store) UpdateSubmission(ctx context.Context, sub *models.Submission, expectedStatus models.SubmissionStatus) error {
	next := sub.Clone()
	next.Version = sub.Version + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	err = s.client.ExecWithCheck(ctx,
		`UPDATE submissions SET status = $1, version = $2, document = $3, updated_at = $4
		 WHERE id = $5 AND status = $6 AND version = $7`,
		string(next.Status), next.Version, doc, next.UpdatedAt,
		sub.ID, string(expectedStatus), sub.Version,
	)
	if errors.Is(err, database.ErrNoRowsAffected) {
		return s.conflictOrMissing(ctx, "submissions", "id", sub.ID)
	}
	if err != nil {
		return err
	}
	sub.Version = next.Version
	return nil
}

func (s *Store) ListSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]*models.Submission, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.AgencyID != "" {
		add("agency_id = $%d", filter.AgencyID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Query != "" {
		add("document->'clientContact'->>'name' ILIKE $%d", "%"+filter.Query+"%")
	}

	query := "SELECT document FROM submissions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Size > 0 {
		args = append(args, filter.Size)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.From > 0 {
		args = append(args, filter.From)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows [][]byte
	if err := s.client.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*models.Submission, 0, len(rows))
	for _, raw := range rows {
		var sub models.Submission
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("decode submission: %w", err)
		}
		out = append(out, &sub)
	}
	return out, nil
}

// ==========================
// Quotes
// ==========================

func (s *Store) CreateQuote(ctx context.Context, q *models.Quote) error {
	doc, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	_, err = s.client.DB.ExecContext(ctx,
		`INSERT INTO quotes (id, submission_id, status, version, document, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		q.ID, q.SubmissionID, string(q.Status), q.Version, doc, q.CreatedAt, q.UpdatedAt,
	)
	return mapWriteError(err)
}

func (s *Store) GetQuote(ctx context.Context, id string) (*models.Quote, error) {
	var raw []byte
	if err := s.client.DB.GetContext(ctx, &raw, `SELECT document FROM quotes WHERE id = $1`, id); err != nil {
		return nil, mapReadError(err)
	}
	var q models.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("decode quote %s: %w", id, err)
	}
	return &q, nil
}

func (s *Store) ListQuotesBySubmission(ctx context.Context, submissionID string) ([]*models.Quote, error) {
	var rows [][]byte
	if err := s.client.DB.SelectContext(ctx, &rows,
		`SELECT document FROM quotes WHERE submission_id = $1 ORDER BY created_at`, submissionID); err != nil {
		return nil, err
	}
	out := make([]*models.Quote, 0, len(rows))
	for _, raw := range rows {
		var q models.Quote
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("decode quote: %w", err)
		}
		out = append(out, &q)
	}
	return out, nil
}

func (s *Store) UpdateQuote(ctx context.Context, q *models.Quote, expectedStatus models.QuoteStatus) error {
	next := q.Clone()
	next.Version = q.Version + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}

	err = s.client.ExecWithCheck(ctx,
		`UPDATE quotes SET status = $1, version = $2, document = $3, updated_at = $4
		 WHERE id = $5 AND status = $6 AND version = $7`,
		string(next.Status), next.Version, doc, next.UpdatedAt,
		q.ID, string(expectedStatus), q.Version,
	)
	if errors.Is(err, database.ErrNoRowsAffected) {
		return s.conflictOrMissing(ctx, "quotes", "id", q.ID)
	}
	if err != nil {
		return err
	}
	q.Version = next.Version
	return nil
}

// ==========================
// Finance plans
// ==========================

func (s *Store) GetFinancePlan(ctx context.Context, quoteID string) (*models.FinancePlan, error) {
	var raw []byte
	if err := s.client.DB.GetContext(ctx, &raw, `SELECT document FROM finance_plans WHERE quote_id = $1`, quoteID); err != nil {
		return nil, mapReadError(err)
	}
	var plan models.FinancePlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("decode finance plan for %s: %w", quoteID, err)
	}
	return &plan, nil
}

func (s *Store) SaveFinancePlan(ctx context.Context, plan *models.FinancePlan) error {
	doc, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode finance plan: %w", err)
	}
	err = s.client.ExecWithCheck(ctx,
		`INSERT INTO finance_plans (quote_id, id, locked, document, updated_at)
		 VALUES ($1, $2, FALSE, $3, $4)
		 ON CONFLICT (quote_id) DO UPDATE
		 SET id = EXCLUDED.id, document = EXCLUDED.document, updated_at = EXCLUDED.updated_at
		 WHERE finance_plans.locked = FALSE`,
		plan.QuoteID, plan.ID, doc, time.Now().UTC(),
	)
	if errors.Is(err, database.ErrNoRowsAffected) {
		return store.ErrConflict
	}
	return mapWriteError(err)
}

func (s *Store) DeleteFinancePlan(ctx context.Context, quoteID string) error {
	err := s.client.ExecWithCheck(ctx,
		`DELETE FROM finance_plans WHERE quote_id = $1 AND locked = FALSE`, quoteID)
	if errors.Is(err, database.ErrNoRowsAffected) {
		return s.conflictOrMissing(ctx, "finance_plans", "quote_id", quoteID)
	}
	return err
}

func (s *Store) LockFinancePlan(ctx context.Context, quoteID string, at time.Time) error {
	err := s.client.ExecWithCheck(ctx,
		`UPDATE finance_plans
		 SET locked = TRUE, document = jsonb_set(document, '{lockedAt}', to_jsonb($2::text)), updated_at = NOW()
		 WHERE quote_id = $1 AND locked = FALSE`,
		quoteID, at.UTC().Format(time.RFC3339Nano),
	)
	if errors.Is(err, database.ErrNoRowsAffected) {
		// already locked is fine
		if cerr := s.conflictOrMissing(ctx, "finance_plans", "quote_id", quoteID); errors.Is(cerr, store.ErrNotFound) {
			return cerr
		}
		return nil
	}
	return err
}

// ==========================
// Payments
// ==========================

func (s *Store) AppendPayment(ctx context.Context, p *models.Payment) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payment: %w", err)
	}
	_, err = s.client.DB.ExecContext(ctx,
		`INSERT INTO payments (id, quote_id, document, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.QuoteID, doc, p.CreatedAt,
	)
	return mapWriteError(err)
}

func (s *Store) ListPayments(ctx context.Context, quoteID string) ([]models.Payment, error) {
	var rows [][]byte
	if err := s.client.DB.SelectContext(ctx, &rows,
		`SELECT document FROM payments WHERE quote_id = $1 ORDER BY created_at`, quoteID); err != nil {
		return nil, err
	}
	out := make([]models.Payment, 0, len(rows))
	for _, raw := range rows {
		var p models.Payment
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode payment: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ==========================
// Helpers
// ==========================

// conflictOrMissing tells a lost guard from a missing row.
func (s *Store) conflictOrMissing(ctx context.Context, table, column, id string) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)`, table, column)
	if err := s.client.DB.GetContext(ctx, &exists, query, id); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func mapReadError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return store.ErrDuplicate
	}
	return err
}
