package support

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk_back/apperr"
)

func TestParseTicketFoldsAliases(t *testing.T) {
	ticket, err := ParseTicket([]byte(`{
		"tenantId": " tenant-a ",
		"subject": "Waar blijft mijn bestelling?",
		"text": "Ik wacht al een week.",
		"from": "Jan Jansen <jan@example.com>",
		"channel": "email",
		"order": {"orderId": "1001", "pricePaid": 49.95, "currency": "EUR"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", ticket.TenantID)
	assert.Equal(t, "Ik wacht al een week.", ticket.Body)
	assert.Equal(t, "jan@example.com", ticket.From)
	assert.Equal(t, "jan@example.com", ticket.Customer.Email)
	assert.Equal(t, "Jan Jansen", ticket.Customer.Name)
	assert.Equal(t, defaultSource, ticket.Source)
	require.NotNil(t, ticket.Order)
	assert.Equal(t, 49.95, *ticket.Order.PricePaid)
	assert.Equal(t, "Waar blijft mijn bestelling? Ik wacht al een week.", ticket.Query())
}

func TestParseTicketPrefersExplicitCustomer(t *testing.T) {
	ticket, err := ParseTicket([]byte(`{"tenantId":"t","snippet":"hoi","email":"x@y.nl","customer":{"name":"Piet","email":"piet@z.nl","language":"en"}}`))
	require.NoError(t, err)
	assert.Equal(t, "hoi", ticket.Body)
	assert.Equal(t, "x@y.nl", ticket.From)
	assert.Equal(t, "piet@z.nl", ticket.Customer.Email)
	assert.Equal(t, "Piet", ticket.Customer.Name)
	assert.Equal(t, "en", ticket.Customer.Language)
}

func TestParseTicketRejects(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"tenantId":`,
		"missing tenant":   `{"subject":"hoi"}`,
		"missing content":  `{"tenantId":"t","subject":"  ","body":""}`,
		"unknown field":    `{"tenantId":"t","subject":"hoi","priority":"high"}`,
		"bad channel":      `{"tenantId":"t","subject":"hoi","channel":"fax"}`,
		"bad language":     `{"tenantId":"t","subject":"hoi","customer":{"language":"de"}}`,
		"bad currency":     `{"tenantId":"t","subject":"hoi","order":{"currency":"GBP"}}`,
		"negative price":   `{"tenantId":"t","subject":"hoi","order":{"pricePaid":-1}}`,
		"wrong field type": `{"tenantId":"t","subject":42}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTicket([]byte(raw))
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestExtractAddress(t *testing.T) {
	assert.Equal(t, "a@b.nl", extractAddress("a@b.nl"))
	assert.Equal(t, "a@b.nl", extractAddress(`"Smith, A" <a@b.nl>`))
	assert.Equal(t, "weird", extractAddress("weird"))
	assert.Equal(t, "x@y", extractAddress("broken <x@y>"))
	assert.Empty(t, extractAddress("   "))
}
