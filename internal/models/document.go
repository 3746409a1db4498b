package models

import "time"

type DocumentType string

const (
	DocumentProposal         DocumentType = "PROPOSAL"
	DocumentFinanceAgreement DocumentType = "FINANCE_AGREEMENT"
	DocumentCarrierForm      DocumentType = "CARRIER_FORM"
)

func (t DocumentType) Valid() bool {
	switch t {
	case DocumentProposal, DocumentFinanceAgreement, DocumentCarrierForm:
		return true
	}
	return false
}

type SignatureStatus string

const (
	SignatureGenerated SignatureStatus = "GENERATED"
	SignatureSent      SignatureStatus = "SENT"
	SignatureSigned    SignatureStatus = "SIGNED"
	SignatureDeclined  SignatureStatus = "DECLINED"
)

// IsTerminal reports SIGNED or DECLINED.
func (s SignatureStatus) IsTerminal() bool {
	return s == SignatureSigned || s == SignatureDeclined
}

// DocumentRecord is one generated artifact embedded in a submission.
type DocumentRecord struct {
	DocumentType       DocumentType    `json:"documentType"`
	SignatureStatus    SignatureStatus `json:"signatureStatus"`
	FileName           string          `json:"fileName"`
	URL                string          `json:"url"`
	Generation         int             `json:"generation"`
	GeneratedAt        time.Time       `json:"generatedAt"`
	SentForSignatureAt *time.Time      `json:"sentForSignatureAt,omitempty"`
	SignedAt           *time.Time      `json:"signedAt,omitempty"`
	DeclinedAt         *time.Time      `json:"declinedAt,omitempty"`
	EsignEnvelopeID    string          `json:"esignEnvelopeId,omitempty"`
}

// SignatureOutcome is what an e-sign provider reports for a document.
type SignatureOutcome string

const (
	OutcomeSigned   SignatureOutcome = "SIGNED"
	OutcomeDeclined SignatureOutcome = "DECLINED"
)

func (o SignatureOutcome) Valid() bool {
	return o == OutcomeSigned || o == OutcomeDeclined
}

// EnvelopeRef is the signer-facing reference returned when documents are sent.
type EnvelopeRef struct {
	EnvelopeID string `json:"envelopeId"`
	SigningURL string `json:"signingUrl,omitempty"`
}
