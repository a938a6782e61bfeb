package support

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"supportdesk_back/agentconfig"
	"supportdesk_back/apperr"
	"supportdesk_back/config"
	"supportdesk_back/knowledge"
	"supportdesk_back/llm"
	"supportdesk_back/metrics"
)

const (
	defaultMaxTokens = 600
	eventTimeout     = 5 * time.Second
)

// Completer runs one chat completion.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (llm.Completion, error)
}

// Retriever finds grounding knowledge for a ticket.
type Retriever interface {
	Retrieve(ctx context.Context, scope knowledge.Scope, query string) (knowledge.Retrieval, error)
}

type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from"`
}

type KnowledgeSummary struct {
	Used          bool               `json:"used"`
	TopSimilarity *float64           `json:"topSimilarity"`
	Sources       []knowledge.Source `json:"sources"`
}

type Meta struct {
	RequestID string `json:"requestId"`
	Model     string `json:"model,omitempty"`
	Tier      string `json:"tier,omitempty"`
	Intent    string `json:"intent,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

// Response is the generate result returned to integrations.
type Response struct {
	Status     string           `json:"status"`
	Confidence float64          `json:"confidence"`
	Routing    string           `json:"routing"`
	Draft      Draft            `json:"draft"`
	Knowledge  KnowledgeSummary `json:"knowledge"`
	Actions    []Action         `json:"actions"`
	Reasons    []string         `json:"reasons"`
	Meta       Meta             `json:"meta"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// Options tunes generation.
type Options struct {
	Weights   Weights
	Closing   ClosingPolicy
	Rules     *RuleSet
	MaxTokens int
	Metrics   *metrics.Metrics
}

func OptionsFromEnv(m *metrics.Metrics) Options {
	return Options{
		Weights:   WeightsFromEnv(),
		Closing:   ClosingPolicyFromEnv(),
		Rules:     DefaultRules(),
		MaxTokens: config.Int("LLM_MAX_TOKENS", defaultMaxTokens),
		Metrics:   m,
	}
}

// Service turns tickets into routed reply drafts.
type Service struct {
	configs   agentconfig.Store
	retriever Retriever
	completer Completer
	events    EventSink
	weights   Weights
	closing   ClosingPolicy
	rules     *RuleSet
	maxTokens int
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(configs agentconfig.Store, retriever Retriever, completer Completer, events EventSink, opts Options) *Service {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	return &Service{
		configs:   configs,
		retriever: retriever,
		completer: completer,
		events:    events,
		weights:   opts.Weights,
		closing:   opts.Closing,
		rules:     opts.Rules,
		maxTokens: opts.MaxTokens,
		metrics:   opts.Metrics,
		now:       time.Now,
	}
}

// Generate answers one ticket. Rule hits reply without calling the model
// and fall back to the default config when the tenant has none; the model
// path needs a stored config. Every terminal path records an event.
func (s *Service) Generate(ctx context.Context, ticket Ticket) (*Response, error) {
	started := s.now()
	if ticket.RequestID == "" {
		ticket.RequestID = uuid.NewString()
	}

	cfg, err := s.configs.Get(ctx, ticket.TenantID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, s.fail(ctx, ticket, started, fmt.Errorf("support: load agent config: %w", err))
	}

	if match, ok := s.rules.Match(ticket.Subject, ticket.Body); ok {
		ruleCfg := agentconfig.Defaults(ticket.TenantID)
		if cfg != nil {
			ruleCfg = *cfg
		}
		return s.ruleReply(ctx, ticket, ruleCfg, match, started), nil
	}
	if cfg == nil {
		return nil, s.fail(ctx, ticket, started, fmt.Errorf("support: load agent config: %w", err))
	}

	retrieval, err := s.retriever.Retrieve(ctx, knowledge.TenantScope(ticket.TenantID), ticket.Query())
	if err != nil {
		return nil, s.fail(ctx, ticket, started, fmt.Errorf("support: retrieve knowledge: %w", err))
	}

	completion, err := s.completer.Complete(ctx,
		BuildSystemPrompt(*cfg, retrieval.Context()),
		BuildUserPrompt(ticket, *cfg),
		s.maxTokens)
	if err != nil {
		if errors.Is(err, apperr.ErrProvider) {
			s.metrics.ObserveProviderFailure("chat")
		}
		return nil, s.fail(ctx, ticket, started, fmt.Errorf("support: generate draft: %w", err))
	}

	output, err := ParseModelOutput(completion.Content)
	if err != nil {
		return nil, s.fail(ctx, ticket, started, err)
	}

	final := s.weights.FinalConfidence(retrieval.Used(), retrieval.TopSimilarity, output.Confidence)
	route := s.weights.Route(final, output.Status)

	var warnings []string
	body, closed := s.closing.Apply(output.Body, cfg.CompanyName)
	if closed {
		warnings = append(warnings, WarningModelClosing)
	}
	body = AppendSignature(body, cfg.Signature)

	subject := output.Subject
	if subject == "" {
		subject = replySubject(ticket.Subject)
	}

	resp := &Response{
		Status:     output.Status,
		Confidence: final,
		Routing:    route,
		Draft:      Draft{Subject: subject, Body: body, From: ticket.From},
		Knowledge:  summarize(retrieval),
		Actions:    FilterActions(output.Actions, *cfg),
		Reasons:    output.Reasons,
		Meta: Meta{
			RequestID: ticket.RequestID,
			Model:     completion.Model,
			Tier:      retrieval.Tier,
			LatencyMs: s.since(started).Milliseconds(),
		},
		Warnings: warnings,
	}
	if resp.Reasons == nil {
		resp.Reasons = []string{}
	}

	s.record(ctx, &Event{
		TenantID:      ticket.TenantID,
		RequestID:     ticket.RequestID,
		Source:        ticket.Source,
		Channel:       ticket.Channel,
		Subject:       truncateRunes(ticket.Subject, subjectPreviewRunes),
		Confidence:    &final,
		LatencyMs:     resp.Meta.LatencyMs,
		DraftText:     &body,
		Outcome:       outcomeFor(route),
		Tier:          retrieval.Tier,
		Model:         completion.Model,
		CustomerEmail: MaskEmail(ticket.Customer.Email),
	})
	s.metrics.ObserveRouting(outcomeFor(route), &final, s.since(started))
	log.Info().
		Str("tenant_id", ticket.TenantID).
		Str("request_id", ticket.RequestID).
		Str("routing", route).
		Float64("confidence", final).
		Str("tier", retrieval.Tier).
		Msg("support draft generated")
	return resp, nil
}

func (s *Service) ruleReply(ctx context.Context, ticket Ticket, cfg agentconfig.Config, match Match, started time.Time) *Response {
	body := match.Rule.Render(replyLanguage(ticket, cfg), ticket.Customer.Name, cfg.Signature)
	confidence := RuleConfidence
	latency := s.since(started).Milliseconds()
	intent := match.Rule.Intent

	s.record(ctx, &Event{
		TenantID:      ticket.TenantID,
		RequestID:     ticket.RequestID,
		Source:        ticket.Source,
		Channel:       ticket.Channel,
		Subject:       truncateRunes(ticket.Subject, subjectPreviewRunes),
		Intent:        &intent,
		Confidence:    &confidence,
		LatencyMs:     latency,
		DraftText:     &body,
		Outcome:       OutcomeAutoReply,
		CustomerEmail: MaskEmail(ticket.Customer.Email),
	})
	s.metrics.ObserveRouting(OutcomeAutoReply, &confidence, s.since(started))
	log.Info().
		Str("tenant_id", ticket.TenantID).
		Str("request_id", ticket.RequestID).
		Str("intent", intent).
		Str("keyword", match.Keyword).
		Msg("support rule reply")

	return &Response{
		Status:     RouteAutoReply,
		Confidence: confidence,
		Routing:    RouteAutoReply,
		Draft:      Draft{Subject: replySubject(ticket.Subject), Body: body, From: ticket.From},
		Knowledge:  KnowledgeSummary{Sources: []knowledge.Source{}},
		Actions:    []Action{},
		Reasons:    []string{},
		Meta:       Meta{RequestID: ticket.RequestID, Intent: intent, LatencyMs: latency},
	}
}

// fail records an error event and returns err unchanged.
func (s *Service) fail(ctx context.Context, ticket Ticket, started time.Time, err error) error {
	elapsed := s.since(started)
	s.record(ctx, &Event{
		TenantID:      ticket.TenantID,
		RequestID:     ticket.RequestID,
		Source:        ticket.Source,
		Channel:       ticket.Channel,
		Subject:       truncateRunes(ticket.Subject, subjectPreviewRunes),
		LatencyMs:     elapsed.Milliseconds(),
		Outcome:       OutcomeError,
		CustomerEmail: MaskEmail(ticket.Customer.Email),
		Error:         err.Error(),
	})
	s.metrics.ObserveRouting(OutcomeError, nil, elapsed)
	log.Error().Err(err).
		Str("tenant_id", ticket.TenantID).
		Str("request_id", ticket.RequestID).
		Msg("support generate failed")
	return err
}

// record writes the event on a context detached from request
// cancellation. Failures only log.
func (s *Service) record(ctx context.Context, event *Event) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()
	if err := s.events.Append(ctx, event); err != nil {
		log.Warn().Err(err).Str("request_id", event.RequestID).Msg("support event insert failed")
	}
}

func (s *Service) since(started time.Time) time.Duration {
	return s.now().Sub(started)
}

func summarize(r knowledge.Retrieval) KnowledgeSummary {
	summary := KnowledgeSummary{Used: r.Used(), Sources: r.Sources()}
	if r.Used() && r.TopSimilarity > 0 {
		top := r.TopSimilarity
		summary.TopSimilarity = &top
	}
	return summary
}

func replySubject(subject string) string {
	if subject == "" {
		return "Re:"
	}
	return "Re: " + subject
}
