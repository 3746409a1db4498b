// Package validation checks request bodies against JSON schemas before they
// are decoded into domain types.
package validation

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	apperrors "submission-workflow/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

// Schema names.
const (
	SchemaSubmissionCreate = "submission-create"
	SchemaQuoteEntry       = "quote-entry"
	SchemaFinanceInput     = "finance-input"
	SchemaFinancePlan      = "finance-plan"
	SchemaPaymentRequest   = "payment-request"
	SchemaSignatureEvent   = "signature-event"
)

// Bounds shared by the finance calculator and plan selection. The tenure
// ceiling matches finance.MaxTenureMonths.
const (
	downPaymentSchema = `{"type": "number", "minimum": 0, "maximum": 100}`
	tenureSchema      = `{"type": "integer", "minimum": 1, "maximum": 600}`
	interestSchema    = `{"type": "number", "minimum": 0}`
)

// Money travels as a decimal string or a JSON number.
const amountSchema = `{"type": ["string", "number"], "pattern": "^-?[0-9]+(\\.[0-9]+)?$"}`

var schemaSources = map[string]string{
	SchemaSubmissionCreate: `{
		"type": "object",
		"required": ["clientContact"],
		"properties": {
			"agencyId": {"type": "string"},
			"clientContact": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name":  {"type": "string", "minLength": 1, "maxLength": 200},
					"email": {"type": "string", "format": "email"},
					"phone": {"type": "string", "pattern": "^\\+?[0-9 ()-]{7,20}$"}
				}
			},
			"payload": {"type": "object"}
		}
	}`,
	SchemaQuoteEntry: `{
		"type": "object",
		"required": ["submissionId", "carrierId", "carrierQuoteUSD"],
		"properties": {
			"submissionId":    {"type": "string", "minLength": 1},
			"carrierId":       {"type": "string", "minLength": 1},
			"carrierQuoteUSD": ` + amountSchema + `,
			"feeComponents": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["name", "kind", "amountUSD"],
					"properties": {
						"name":      {"type": "string", "minLength": 1},
						"kind":      {"enum": ["FEE", "TAX"]},
						"amountUSD": ` + amountSchema + `
					}
				}
			}
		}
	}`,
	SchemaFinanceInput: `{
		"type": "object",
		"required": ["totalAmountUSD", "downPaymentPercent", "tenureMonths", "annualInterestPercent"],
		"properties": {
			"totalAmountUSD":        {"type": "number", "minimum": 0},
			"downPaymentPercent":    ` + downPaymentSchema + `,
			"tenureMonths":          ` + tenureSchema + `,
			"annualInterestPercent": ` + interestSchema + `
		}
	}`,
	SchemaFinancePlan: `{
		"type": "object",
		"required": ["downPaymentPercent", "tenureMonths", "annualInterestPercent"],
		"properties": {
			"downPaymentPercent":    ` + downPaymentSchema + `,
			"tenureMonths":          ` + tenureSchema + `,
			"annualInterestPercent": ` + interestSchema + `
		}
	}`,
	SchemaPaymentRequest: `{
		"type": "object",
		"required": ["quoteId", "paymentType", "amountUSD", "paymentMethod"],
		"properties": {
			"quoteId":       {"type": "string", "minLength": 1},
			"paymentType":   {"enum": ["FULL", "DOWN_PAYMENT"]},
			"amountUSD":     ` + amountSchema + `,
			"paymentMethod": {"type": "string", "minLength": 1},
			"financePlanId": {"type": "string"}
		}
	}`,
	SchemaSignatureEvent: `{
		"type": "object",
		"required": ["submissionId"],
		"anyOf": [{"required": ["outcome"]}, {"required": ["status"]}],
		"properties": {
			"submissionId": {"type": "string", "minLength": 1},
			"documentType": {"enum": ["", "PROPOSAL", "FINANCE_AGREEMENT", "CARRIER_FORM"]},
			"outcome":      {"enum": ["SIGNED", "DECLINED"]},
			"status":       {"enum": ["SIGNED", "DECLINED"]},
			"envelopeId":   {"type": "string"}
		}
	}`,
}

var (
	compileOnce sync.Once
	compiled    map[string]*gojsonschema.Schema
	compileErr  error
)

func schemas() (map[string]*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[string]*gojsonschema.Schema, len(schemaSources))
		for name, src := range schemaSources {
			s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[name] = s
		}
	})
	return compiled, compileErr
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ValidateJSON checks a raw document against a named schema.
func ValidateJSON(schema string, body []byte) (*ValidationResult, error) {
	return validate(schema, gojsonschema.NewBytesLoader(body))
}

// ValidateValue checks an already decoded value, such as Zeebe job
// variables, against a named schema.
func ValidateValue(schema string, v interface{}) (*ValidationResult, error) {
	return validate(schema, gojsonschema.NewGoLoader(v))
}

func validate(name string, doc gojsonschema.JSONLoader) (*ValidationResult, error) {
	all, err := schemas()
	if err != nil {
		return nil, err
	}
	s, ok := all[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}

	result, err := s.Validate(doc)
	if err != nil {
		// not JSON at all
		return &ValidationResult{Errors: []ValidationError{{
			Field:   "(root)",
			Message: err.Error(),
			Code:    "MALFORMED_JSON",
		}}}, nil
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fieldOf(desc),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	sort.Slice(out.Errors, func(i, j int) bool { return out.Errors[i].Field < out.Errors[j].Field })
	return out, nil
}

// fieldOf names the offending property. Required errors are reported on the
// parent object, so the missing property is appended.
func fieldOf(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if desc.Type() != "required" {
		return field
	}
	prop, _ := desc.Details()["property"].(string)
	if prop == "" {
		return field
	}
	if field == "(root)" {
		return prop
	}
	return field + "." + prop
}

// Check validates body and converts a failure into VALIDATION_FAILED.
func Check(schema string, body []byte) error {
	result, err := ValidateJSON(schema, body)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return result.Err()
}

// CheckFinance is Check for finance terms: violations are reported as
// INVALID_FINANCE_INPUT carrying the same field list.
func CheckFinance(schema string, body []byte) error {
	result, err := ValidateJSON(schema, body)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if result.Valid {
		return nil
	}
	e := apperrors.NewInvalidFinanceInputError(strings.Join(result.GetErrorMessages(), "; "))
	return e.WithMetadata("fields", result.fields())
}

// Err returns nil for a valid result, VALIDATION_FAILED otherwise.
func (vr *ValidationResult) Err() error {
	if vr.Valid {
		return nil
	}
	e := apperrors.NewValidationError(strings.Join(vr.GetErrorMessages(), "; "))
	return e.WithMetadata("fields", vr.fields())
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			return true
		}
	}
	return false
}

func (vr *ValidationResult) fields() []string {
	seen := make(map[string]bool)
	var out []string
	for _, err := range vr.Errors {
		if !seen[err.Field] {
			seen[err.Field] = true
			out = append(out, err.Field)
		}
	}
	return out
}
