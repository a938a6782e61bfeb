package support

import (
	"math"
	"regexp"
	"strings"

	"supportdesk_back/agentconfig"
	"supportdesk_back/config"
)

// Routing decisions.
const (
	RouteAuto        = "AUTO"
	RouteHumanReview = "HUMAN_REVIEW"
	RouteAutoReply   = "AUTO_REPLY"
)

// Event outcomes.
const (
	OutcomeAuto        = "auto"
	OutcomeAutoReply   = "auto_reply"
	OutcomeHumanReview = "human_review"
	OutcomeError       = "error"
)

// Weights blends retrieval and model confidence.
type Weights struct {
	Retrieval     float64
	Model         float64
	AutoThreshold float64
}

func DefaultWeights() Weights {
	return Weights{Retrieval: 0.6, Model: 0.4, AutoThreshold: 0.6}
}

// WeightsFromEnv reads ROUTING_* overrides. Negative weights fall back to
// the defaults.
func WeightsFromEnv() Weights {
	defaults := DefaultWeights()
	w := Weights{
		Retrieval:     config.Float("ROUTING_RETRIEVAL_WEIGHT", defaults.Retrieval),
		Model:         config.Float("ROUTING_MODEL_WEIGHT", defaults.Model),
		AutoThreshold: config.Float("ROUTING_AUTO_THRESHOLD", defaults.AutoThreshold),
	}
	if w.Retrieval < 0 || w.Model < 0 {
		w.Retrieval, w.Model = defaults.Retrieval, defaults.Model
	}
	return w
}

// Clamp01 bounds x to [0,1]. NaN maps to 0.
func Clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// FinalConfidence blends the top similarity with the model's own
// confidence when knowledge was used, and passes the model value through
// otherwise.
func (w Weights) FinalConfidence(knowledgeUsed bool, topSimilarity, modelConfidence float64) float64 {
	model := Clamp01(modelConfidence)
	if !knowledgeUsed {
		return model
	}
	return Clamp01(Clamp01(topSimilarity)*w.Retrieval + model*w.Model)
}

// Route sends low-confidence drafts and drafts the model flagged to a human.
func (w Weights) Route(final float64, status string) string {
	if final < w.AutoThreshold || status == StatusNeedsHuman {
		return RouteHumanReview
	}
	return RouteAuto
}

func outcomeFor(route string) string {
	switch route {
	case RouteAuto:
		return OutcomeAuto
	case RouteAutoReply:
		return OutcomeAutoReply
	default:
		return OutcomeHumanReview
	}
}

// FilterActions drops discount offers the tenant does not allow: all of
// them when discounts are off, and those above the cap otherwise. The
// input is not modified and the result is stable under reapplication.
func FilterActions(actions []Action, cfg agentconfig.Config) []Action {
	filtered := make([]Action, 0, len(actions))
	for _, action := range actions {
		if action.Type == ActionOfferDiscount {
			if !cfg.AllowDiscount {
				continue
			}
			if action.Amount != nil && *action.Amount > cfg.MaxDiscountAmount {
				continue
			}
		}
		filtered = append(filtered, action)
	}
	return filtered
}

// AppendSignature trims body and appends a non-blank signature after a
// blank line.
func AppendSignature(body, signature string) string {
	body = strings.TrimSpace(body)
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return body
	}
	if body == "" {
		return signature
	}
	return body + "\n\n" + signature
}

// Closing modes.
const (
	ClosingFlag  = "flag"
	ClosingStrip = "strip"
)

// WarningModelClosing marks a draft whose model text ended in a closing.
const WarningModelClosing = "model_closing_detected"

var closingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(met\s+)?(vriendelijke|hartelijke)\s+groet(en)?[,.!]?$`),
	regexp.MustCompile(`(?i)^(met\s+)?groet(en)?[,.!]?$`),
	regexp.MustCompile(`(?i)^(kind|best|warm)\s+regards[,.!]?$`),
	regexp.MustCompile(`(?i)^(regards|sincerely|yours sincerely|cheers)[,.!]?$`),
}

// signerPatterns match a team line. Without the company name they only count
// directly below a closing phrase.
var signerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(het\s+)?team\s+\S+(\s+\S+)?[,.!]?$`),
	regexp.MustCompile(`(?i)^(the\s+)?\S+(\s+\S+)?\s+team[,.!]?$`),
}

// ClosingPolicy detects model-written sign-offs at the end of a draft. The
// server owns the signature, so a closing is either flagged or stripped.
type ClosingPolicy struct {
	mode string
}

func NewClosingPolicy(mode string) ClosingPolicy {
	if strings.EqualFold(strings.TrimSpace(mode), ClosingStrip) {
		return ClosingPolicy{mode: ClosingStrip}
	}
	return ClosingPolicy{mode: ClosingFlag}
}

func ClosingPolicyFromEnv() ClosingPolicy {
	return NewClosingPolicy(config.String("SUPPORT_CLOSING_MODE", ClosingFlag))
}

// Apply inspects the trailing lines of body. It reports whether a closing
// was found and, in strip mode, returns the body without it.
func (p ClosingPolicy) Apply(body, companyName string) (string, bool) {
	lines := strings.Split(strings.TrimRight(body, " \t\r\n"), "\n")
	company := companyPatterns(companyName)
	cut := len(lines)
	for cut > 0 {
		line := strings.TrimSpace(lines[cut-1])
		if line == "" {
			cut--
			continue
		}
		if matchesAny(closingPatterns, line) || matchesAny(company, line) {
			cut--
			continue
		}
		if matchesAny(signerPatterns, line) && matchesAny(closingPatterns, previousLine(lines, cut-1)) {
			cut--
			continue
		}
		break
	}
	for cut > 0 && strings.TrimSpace(lines[cut-1]) == "" {
		cut--
	}
	trimmedLen := len(lines)
	for trimmedLen > 0 && strings.TrimSpace(lines[trimmedLen-1]) == "" {
		trimmedLen--
	}
	found := cut < trimmedLen
	if !found || p.mode != ClosingStrip {
		return body, found
	}
	return strings.Join(lines[:cut], "\n"), true
}

// companyPatterns match the bare company name and team lines naming it.
func companyPatterns(companyName string) []*regexp.Regexp {
	name := strings.TrimSpace(companyName)
	if name == "" {
		return nil
	}
	quoted := strings.Join(strings.Fields(regexp.QuoteMeta(name)), `\s+`)
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)^` + quoted + `[,.!]?$`),
		regexp.MustCompile(`(?i)^(het\s+|the\s+)?team\s+` + quoted + `[,.!]?$`),
		regexp.MustCompile(`(?i)^(het\s+|the\s+)?` + quoted + `(\s+\S+)?\s+team[,.!]?$`),
	}
}

func previousLine(lines []string, index int) string {
	for i := index - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func matchesAny(patterns []*regexp.Regexp, line string) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(line) {
			return true
		}
	}
	return false
}
