package support

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"supportdesk_back/apperr"
)

// Model statuses.
const (
	StatusDraftOK    = "DRAFT_OK"
	StatusNeedsHuman = "NEEDS_HUMAN"
)

// Action types a draft may carry.
const (
	ActionAskClarifyingQuestion = "ASK_CLARIFYING_QUESTION"
	ActionRequestOrderID        = "REQUEST_ORDER_ID"
	ActionOfferDiscount         = "OFFER_DISCOUNT"
	ActionRequestReturn         = "REQUEST_RETURN"
	ActionEscalateToHuman       = "ESCALATE_TO_HUMAN"
)

// Action is one follow-up suggested by the model. Only the fields of its
// type are set.
type Action struct {
	Type     string   `json:"type" validate:"required,oneof=ASK_CLARIFYING_QUESTION REQUEST_ORDER_ID OFFER_DISCOUNT REQUEST_RETURN ESCALATE_TO_HUMAN"`
	Question string   `json:"question,omitempty"`
	Amount   *float64 `json:"amount,omitempty"`
	Currency string   `json:"currency,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// ModelOutput is a validated model reply.
type ModelOutput struct {
	Status     string
	Confidence float64
	Subject    string
	Body       string
	Actions    []Action
	Reasons    []string
}

// rawOutput uses pointers so a missing key is distinguishable from a zero
// value.
type rawOutput struct {
	Status     *string   `json:"status" validate:"required,oneof=DRAFT_OK NEEDS_HUMAN"`
	Confidence *float64  `json:"confidence" validate:"required"`
	Draft      *rawDraft `json:"draft" validate:"required"`
	Actions    []Action  `json:"actions" validate:"required,dive"`
	Reasons    []string  `json:"reasons" validate:"required"`
}

type rawDraft struct {
	Subject *string `json:"subject" validate:"required"`
	Body    *string `json:"body" validate:"required"`
}

var fencePattern = regexp.MustCompile("(?i)```(?:json)?")

// ParseModelOutput extracts the JSON object from a completion. Text without
// a parseable object fails with apperr.ErrMalformedModelOutput; an object
// that breaks the contract fails with apperr.ErrValidation.
func ParseModelOutput(content string) (*ModelOutput, error) {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(content, ""))
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("support: no JSON object in model output: %w", apperr.ErrMalformedModelOutput)
	}
	slice := []byte(cleaned[start : end+1])
	if !json.Valid(slice) {
		return nil, fmt.Errorf("support: model output is not valid JSON: %w", apperr.ErrMalformedModelOutput)
	}

	var raw rawOutput
	if err := json.Unmarshal(slice, &raw); err != nil {
		return nil, fmt.Errorf("support: model output shape: %v: %w", err, apperr.ErrValidation)
	}
	if err := validate.Struct(raw); err != nil {
		return nil, fmt.Errorf("support: model output: %s: %w", describe(err), apperr.ErrValidation)
	}

	return &ModelOutput{
		Status:     *raw.Status,
		Confidence: *raw.Confidence,
		Subject:    strings.TrimSpace(*raw.Draft.Subject),
		Body:       strings.TrimSpace(*raw.Draft.Body),
		Actions:    raw.Actions,
		Reasons:    raw.Reasons,
	}, nil
}
