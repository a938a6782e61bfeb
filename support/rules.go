package support

import (
	"strings"
)

// RuleConfidence is the fixed confidence of a deterministic reply.
const RuleConfidence = 0.95

// Rule is a keyword-triggered canned reply. Templates are keyed by language
// and contain a {name} placeholder.
type Rule struct {
	Intent    string
	Keywords  []string
	Templates map[string]string
	// Fallback names the customer when the ticket carries no name.
	Fallback map[string]string
}

// Match is a rule hit on one ticket.
type Match struct {
	Rule    *Rule
	Keyword string
}

// RuleSet checks rules in order; the first hit wins.
type RuleSet struct {
	rules []Rule
}

func NewRuleSet(rules ...Rule) *RuleSet {
	return &RuleSet{rules: rules}
}

// DefaultRules holds the damaged-on-arrival reply.
func DefaultRules() *RuleSet {
	return NewRuleSet(damageRule)
}

var damageRule = Rule{
	Intent:   "damage",
	Keywords: []string{"beschadigd", "kapot", "defect", "ingedeukt", "scheur", "kras", "damaged", "broken"},
	Templates: map[string]string{
		"nl": "Beste {name},\n\n" +
			"Wat vervelend om te horen dat uw product beschadigd is aangekomen. Onze excuses voor het ongemak.\n\n" +
			"We lossen dit direct voor u op:\n" +
			"- We sturen kosteloos een vervangend exemplaar naar u op.\n" +
			"- U hoeft het beschadigde product niet terug te sturen.\n" +
			"- U ontvangt binnen 24 uur een bevestiging met de verzendinformatie.\n\n" +
			"Mocht u nog vragen hebben, staat ons team voor u klaar.",
		"en": "Dear {name},\n\n" +
			"We are sorry to hear that your product arrived damaged. Our apologies for the inconvenience.\n\n" +
			"Here is how we will resolve this right away:\n" +
			"- We will send you a replacement free of charge.\n" +
			"- You do not need to return the damaged product.\n" +
			"- Within 24 hours you will receive a confirmation with the shipping details.\n\n" +
			"If you have any further questions, our team is happy to help.",
	},
	Fallback: map[string]string{"nl": "klant", "en": "customer"},
}

// Match returns the first rule whose keyword occurs in subject or body,
// case-insensitively. A nil set never matches.
func (s *RuleSet) Match(subject, body string) (Match, bool) {
	if s == nil {
		return Match{}, false
	}
	haystack := strings.ToLower(subject + " " + body)
	for i := range s.rules {
		rule := &s.rules[i]
		for _, keyword := range rule.Keywords {
			if strings.Contains(haystack, strings.ToLower(keyword)) {
				return Match{Rule: rule, Keyword: keyword}, true
			}
		}
	}
	return Match{}, false
}

// Render fills the template for language, falling back to Dutch, and
// appends the signature.
func (r *Rule) Render(language, name, signature string) string {
	template, ok := r.Templates[language]
	if !ok {
		language = "nl"
		template = r.Templates[language]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.Fallback[language]
	}
	return AppendSignature(strings.ReplaceAll(template, "{name}", name), signature)
}
