package support

import (
	"fmt"
	"strings"

	"supportdesk_back/agentconfig"
)

const outputContract = `{
  "status": "DRAFT_OK" | "NEEDS_HUMAN",
  "confidence": number between 0 and 1,
  "draft": { "subject": string, "body": string },
  "actions": [
    { "type": "ASK_CLARIFYING_QUESTION", "question": string }
    | { "type": "REQUEST_ORDER_ID" }
    | { "type": "OFFER_DISCOUNT", "amount": number, "currency": "EUR" | "USD" }
    | { "type": "REQUEST_RETURN" }
    | { "type": "ESCALATE_TO_HUMAN", "reason": string }
  ],
  "reasons": [string]
}`

var toneInstructions = map[string]string{
	agentconfig.ToneFriendly: "Write in a warm, friendly and approachable tone.",
	agentconfig.ToneFormal:   "Write in a polite, formal tone and address the customer formally.",
	agentconfig.ToneDirect:   "Write short, direct and to the point.",
}

// BuildSystemPrompt renders the tenant policy and output contract. A
// non-empty knowledge block is appended as grounding.
func BuildSystemPrompt(cfg agentconfig.Config, knowledge string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a customer support agent for %s. You write reply drafts for incoming customer tickets.\n\n", cfg.CompanyName)

	b.WriteString("Rules:\n")
	if tone, ok := toneInstructions[cfg.Tone]; ok {
		fmt.Fprintf(&b, "- %s\n", tone)
	}
	if cfg.EmpathyEnabled {
		b.WriteString("- Acknowledge the customer's frustration with empathy before solving the problem.\n")
	} else {
		b.WriteString("- Stay factual; keep empathy phrases to a minimum.\n")
	}
	if cfg.AllowDiscount {
		fmt.Fprintf(&b, "- You may offer a discount of at most %.2f when it is clearly justified. Never exceed this amount.\n", cfg.MaxDiscountAmount)
	} else {
		b.WriteString("- Never offer a discount, voucher or refund amount.\n")
	}
	b.WriteString("- Never invent facts, policies, prices, dates or order details that are not in the ticket or the internal knowledge.\n")
	b.WriteString("- If information is missing, ask for it with ASK_CLARIFYING_QUESTION or REQUEST_ORDER_ID, or answer NEEDS_HUMAN.\n")
	b.WriteString("- Write the draft in the language requested in the ticket message.\n")

	b.WriteString("\nClosing:\n")
	b.WriteString("- Do not end the body with a closing, greeting or signature. The server appends the signature.\n")
	fmt.Fprintf(&b, "- Forbidden endings include \"Met vriendelijke groet\", \"Kind regards\", \"Best regards\", \"Groeten\", \"Team %s\" and \"%s\".\n", cfg.CompanyName, cfg.CompanyName)

	b.WriteString("\nDecision:\n")
	b.WriteString("- DRAFT_OK when the question is clear and can be answered with the available information.\n")
	b.WriteString("- NEEDS_HUMAN for legal threats, fraud, safety issues, complex complaints or when you are unsure.\n")
	b.WriteString("- Confidence 0.8-1.0: clear question, complete answer. 0.4-0.7: information is missing. 0.0-0.3: escalate.\n")

	b.WriteString("\nRespond with only one JSON object, without markdown, in exactly this shape:\n")
	b.WriteString(outputContract)

	if strings.TrimSpace(knowledge) != "" {
		b.WriteString("\n\nRelevant internal knowledge:\n")
		b.WriteString(knowledge)
	}
	return b.String()
}

// BuildUserPrompt renders the ticket. The reply language is the customer's
// when given, otherwise the tenant default.
func BuildUserPrompt(ticket Ticket, cfg agentconfig.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reply language: %s\n", replyLanguage(ticket, cfg))
	if ticket.Channel != "" {
		fmt.Fprintf(&b, "Channel: %s\n", ticket.Channel)
	}
	fmt.Fprintf(&b, "Subject: %s\n", orDash(ticket.Subject))
	fmt.Fprintf(&b, "Message:\n%s\n", orDash(ticket.Body))

	b.WriteString("\nCustomer:\n")
	fmt.Fprintf(&b, "- Name: %s\n", orDash(ticket.Customer.Name))
	fmt.Fprintf(&b, "- Email: %s\n", orDash(ticket.Customer.Email))

	if order := ticket.Order; order != nil {
		b.WriteString("\nOrder:\n")
		fmt.Fprintf(&b, "- Order id: %s\n", orDash(order.OrderID))
		fmt.Fprintf(&b, "- Product: %s\n", orDash(order.ProductName))
		if order.PricePaid != nil {
			fmt.Fprintf(&b, "- Price paid: %.2f %s\n", *order.PricePaid, order.Currency)
		}
	}

	b.WriteString("\nThe signature is added by the server; do not write one.")
	return b.String()
}

func replyLanguage(ticket Ticket, cfg agentconfig.Config) string {
	if ticket.Customer.Language != "" {
		return ticket.Customer.Language
	}
	if cfg.DefaultLanguage != "" {
		return cfg.DefaultLanguage
	}
	return agentconfig.DefaultLanguage
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
