// internal/models/submission.go
package models

import (
	"encoding/json"
	"time"
)

// SubmissionStatus is the lifecycle state of a submission.
type SubmissionStatus string

const (
	SubmissionSubmitted     SubmissionStatus = "SUBMITTED"
	SubmissionRouted        SubmissionStatus = "ROUTED"
	SubmissionQuoted        SubmissionStatus = "QUOTED"
	SubmissionBindRequested SubmissionStatus = "BIND_REQUESTED"
	SubmissionBound         SubmissionStatus = "BOUND"
	SubmissionDeclined      SubmissionStatus = "DECLINED"
)

// IsTerminal reports whether no further transition is legal.
func (s SubmissionStatus) IsTerminal() bool {
	return s == SubmissionBound || s == SubmissionDeclined
}

func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionSubmitted, SubmissionRouted, SubmissionQuoted,
		SubmissionBindRequested, SubmissionBound, SubmissionDeclined:
		return true
	}
	return false
}

type ClientContact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Note is an admin remark attached to a submission.
type Note struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Submission is one insurance application owned by an agency.
// Payload is carried through untouched to document rendering.
type Submission struct {
	ID            string           `json:"id"`
	AgencyID      string           `json:"agencyId"`
	ClientContact ClientContact    `json:"clientContact"`
	Payload       json.RawMessage  `json:"payload,omitempty"`
	Status        SubmissionStatus `json:"status"`
	ActiveQuoteID string           `json:"activeQuoteId,omitempty"`

	BindRequested   bool       `json:"bindRequested"`
	BindRequestedAt *time.Time `json:"bindRequestedAt,omitempty"`
	BindRequestedBy string     `json:"bindRequestedBy,omitempty"`
	BindApproved    bool       `json:"bindApproved"`
	BindApprovedAt  *time.Time `json:"bindApprovedAt,omitempty"`
	BindApprovedBy  string     `json:"bindApprovedBy,omitempty"`

	EsignCompleted   bool             `json:"esignCompleted"`
	EsignCompletedAt *time.Time       `json:"esignCompletedAt,omitempty"`
	Documents        []DocumentRecord `json:"documents"`

	RoutedAt      *time.Time `json:"routedAt,omitempty"`
	QuotedAt      *time.Time `json:"quotedAt,omitempty"`
	DeclinedAt    *time.Time `json:"declinedAt,omitempty"`
	DeclineReason string     `json:"declineReason,omitempty"`
	Notes         []Note     `json:"notes,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Document returns the record of the given type, or nil.
// The pointer aliases the Documents slice so callers can mutate in place.
func (s *Submission) Document(t DocumentType) *DocumentRecord {
	for i := range s.Documents {
		if s.Documents[i].DocumentType == t {
			return &s.Documents[i]
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	out := *s
	if s.Payload != nil {
		out.Payload = append(json.RawMessage(nil), s.Payload...)
	}
	out.Documents = append([]DocumentRecord(nil), s.Documents...)
	out.Notes = append([]Note(nil), s.Notes...)
	return &out
}

// SubmissionFilter narrows submission listings.
type SubmissionFilter struct {
	AgencyID string           `json:"agencyId,omitempty"`
	Status   SubmissionStatus `json:"status,omitempty"`
	Query    string           `json:"query,omitempty"`
	From     int              `json:"from,omitempty"`
	Size     int              `json:"size,omitempty"`
}

// SubmissionPage is one page of a listing with the total match count.
type SubmissionPage struct {
	Submissions []*Submission `json:"submissions"`
	Total       int64         `json:"total"`
}
