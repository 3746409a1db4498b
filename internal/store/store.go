// Package store defines persistence for submissions, quotes, finance plans
// and payments. Every mutation of a submission or quote is a conditional
// single-record write guarded by the status and version the caller read.
package store

import (
	"context"
	"errors"
	"time"

	"submission-workflow/internal/models"
)

var (
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict means the conditional write lost: the record no longer has
	// the expected status/version, or the row is locked.
	ErrConflict = errors.New("store: conditional write failed")
	ErrDuplicate = errors.New("store: record already exists")
)

type SubmissionStore interface {
	CreateSubmission(ctx context.Context, s *models.Submission) error
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	// UpdateSubmission persists s only if the stored record still has
	// expectedStatus and s.Version. On success s.Version is incremented.
	UpdateSubmission(ctx context.Context, s *models.Submission, expectedStatus models.SubmissionStatus) error
	ListSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]*models.Submission, error)
}

type QuoteStore interface {
	CreateQuote(ctx context.Context, q *models.Quote) error
	GetQuote(ctx context.Context, id string) (*models.Quote, error)
	ListQuotesBySubmission(ctx context.Context, submissionID string) ([]*models.Quote, error)
	// UpdateQuote has the same conditional semantics as UpdateSubmission.
	UpdateQuote(ctx context.Context, q *models.Quote, expectedStatus models.QuoteStatus) error
}

type FinancePlanStore interface {
	GetFinancePlan(ctx context.Context, quoteID string) (*models.FinancePlan, error)
	// SaveFinancePlan inserts or replaces the plan of a quote unless the
	// stored plan is locked (ErrConflict).
	SaveFinancePlan(ctx context.Context, plan *models.FinancePlan) error
	DeleteFinancePlan(ctx context.Context, quoteID string) error
	LockFinancePlan(ctx context.Context, quoteID string, at time.Time) error
}

type PaymentStore interface {
	// AppendPayment adds a ledger entry. A quote accepts a single settling
	// payment; a second one fails with ErrDuplicate.
	AppendPayment(ctx context.Context, p *models.Payment) error
	ListPayments(ctx context.Context, quoteID string) ([]models.Payment, error)
}

// Store is the full persistence surface.
type Store interface {
	SubmissionStore
	QuoteStore
	FinancePlanStore
	PaymentStore
	Ping(ctx context.Context) error
}
