package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/go-playground/validator/v10"

	"supportdesk_back/apperr"
)

const defaultSource = "api"

var validate = validator.New()

// TicketRequest is the wire shape of POST /support/generate. Body text may
// arrive as body, text or snippet depending on the integration.
type TicketRequest struct {
	TenantID  string    `json:"tenantId" validate:"max=64"`
	RequestID string    `json:"requestId" validate:"max=64"`
	Source    string    `json:"source" validate:"max=32"`
	Channel   string    `json:"channel" validate:"omitempty,oneof=email chat ticket"`
	Subject   string    `json:"subject" validate:"max=1000"`
	Body      string    `json:"body" validate:"max=20000"`
	Text      string    `json:"text" validate:"max=20000"`
	Snippet   string    `json:"snippet" validate:"max=20000"`
	From      string    `json:"from" validate:"max=320"`
	Email     string    `json:"email" validate:"max=320"`
	Customer  *Customer `json:"customer"`
	Order     *Order    `json:"order"`
}

type Customer struct {
	Name     string `json:"name" validate:"max=200"`
	Email    string `json:"email" validate:"max=320"`
	Language string `json:"language" validate:"omitempty,oneof=nl en"`
}

type Order struct {
	OrderID     string   `json:"orderId" validate:"max=64"`
	ProductName string   `json:"productName" validate:"max=200"`
	PricePaid   *float64 `json:"pricePaid" validate:"omitempty,gte=0"`
	Currency    string   `json:"currency" validate:"omitempty,oneof=EUR USD"`
}

// Ticket is a validated, normalized request.
type Ticket struct {
	TenantID  string
	RequestID string
	Source    string
	Channel   string
	Subject   string
	Body      string
	From      string
	Customer  Customer
	Order     *Order
}

// Query is the text used for knowledge retrieval.
func (t Ticket) Query() string {
	return strings.TrimSpace(t.Subject + " " + t.Body)
}

// ParseTicket decodes data strictly. Unknown fields, a missing tenant and a
// ticket without both subject and body fail with apperr.ErrValidation.
func ParseTicket(data []byte) (Ticket, error) {
	var req TicketRequest
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return Ticket{}, fmt.Errorf("support: invalid request: %v: %w", err, apperr.ErrValidation)
	}
	return req.Normalize()
}

// Normalize validates the request and folds its aliases.
func (r TicketRequest) Normalize() (Ticket, error) {
	if err := validate.Struct(r); err != nil {
		return Ticket{}, fmt.Errorf("support: %s: %w", describe(err), apperr.ErrValidation)
	}

	ticket := Ticket{
		TenantID:  strings.TrimSpace(r.TenantID),
		RequestID: strings.TrimSpace(r.RequestID),
		Source:    strings.TrimSpace(r.Source),
		Channel:   r.Channel,
		Subject:   strings.TrimSpace(r.Subject),
		Body:      firstNonBlank(r.Body, r.Text, r.Snippet),
		Order:     r.Order,
	}
	if ticket.TenantID == "" {
		return Ticket{}, fmt.Errorf("support: missing required field: tenantId: %w", apperr.ErrValidation)
	}
	if ticket.Subject == "" && ticket.Body == "" {
		return Ticket{}, fmt.Errorf("support: missing subject/body: %w", apperr.ErrValidation)
	}
	if ticket.Source == "" {
		ticket.Source = defaultSource
	}

	if r.Customer != nil {
		ticket.Customer = *r.Customer
	}
	ticket.Customer.Name = strings.TrimSpace(ticket.Customer.Name)
	ticket.Customer.Email = strings.TrimSpace(ticket.Customer.Email)

	rawFrom := firstNonBlank(r.From, r.Email)
	ticket.From = extractAddress(rawFrom)
	if ticket.Customer.Email == "" {
		ticket.Customer.Email = ticket.From
	}
	if ticket.Customer.Name == "" {
		ticket.Customer.Name = displayName(rawFrom)
	}
	return ticket, nil
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// extractAddress pulls the address out of "Name <addr>" headers and keeps
// anything unparseable as-is.
func extractAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		return addr.Address
	}
	if start, end := strings.Index(raw, "<"), strings.LastIndex(raw, ">"); start >= 0 && end > start {
		return strings.TrimSpace(raw[start+1 : end])
	}
	return raw
}

func displayName(raw string) string {
	if addr, err := mail.ParseAddress(strings.TrimSpace(raw)); err == nil {
		return strings.TrimSpace(addr.Name)
	}
	return ""
}

func describe(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s failed %s", field.Namespace(), field.Tag()))
	}
	return strings.Join(parts, "; ")
}
