package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentinelgate/policyd/internal/adapter/inbound/policyproto"
	"github.com/sentinelgate/policyd/internal/ctxkey"
	"github.com/sentinelgate/policyd/internal/domain/inquiry"
	"github.com/sentinelgate/policyd/internal/domain/ratelimit"
	"github.com/sentinelgate/policyd/internal/domain/rule"
)

const tracerName = "policyd/service"

// loggerFromContext retrieves the per-connection logger the Connection
// Server attaches to ctx (remote address already bound in), falling back
// to nil so the caller can use its own default.
func loggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return nil
}

// RuleEvaluatorSource supplies a consistent rule-set snapshot for one
// inquiry. Satisfied by *rule.Registry.
type RuleEvaluatorSource interface {
	Snapshot() rule.Evaluator
}

// RateLimitChecker decides whether an inquiry is over any configured
// limit. Satisfied by *ratelimit.Checker.
type RateLimitChecker interface {
	Check(ctx context.Context, attrs map[string]string) (ratelimit.Verdict, bool, error)
}

// MetricsRecorder records per-decision metrics. Satisfied by
// *obshttp.Metrics; nil-safe when not wired.
type MetricsRecorder interface {
	RecordInquiry(action string)
}

// DecisionPipeline wires the Attribute Codec, Rule Evaluator, Rate
// Limiter, Inquiry Store, and Observer into the per-inquiry decision.
type DecisionPipeline struct {
	rules    RuleEvaluatorSource
	limiter  RateLimitChecker
	records  inquiry.Store
	observer Observer
	metrics  MetricsRecorder
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	tracer   trace.Tracer
}

// PipelineOption configures optional DecisionPipeline collaborators.
type PipelineOption func(*DecisionPipeline)

// WithMetrics wires a MetricsRecorder into the pipeline.
func WithMetrics(m MetricsRecorder) PipelineOption {
	return func(p *DecisionPipeline) { p.metrics = m }
}

// NewDecisionPipeline builds a DecisionPipeline. observer may be nil, in
// which case decision events are discarded.
func NewDecisionPipeline(rules RuleEvaluatorSource, limiter RateLimitChecker, records inquiry.Store, observer Observer, logger *slog.Logger, opts ...PipelineOption) *DecisionPipeline {
	if observer == nil {
		observer = NopObserver{}
	}
	p := &DecisionPipeline{
		rules:    rules,
		limiter:  limiter,
		records:  records,
		observer: observer,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decide runs one framed inquiry through the rule evaluator, then (on no
// match) the rate limiter, persists the resulting record, fans it out to
// the Observer, and returns the verdict line to write back on the wire.
// The only error Decide itself returns is one that prevents any verdict
// at all; store and observer failures are logged and never block the
// verdict, since the verdict is computed in-memory before persistence.
func (p *DecisionPipeline) Decide(ctx context.Context, raw []byte) ([]byte, error) {
	attrs, _ := policyproto.ParseInquiry(raw)
	if err := policyproto.Validate(attrs); err != nil {
		return policyproto.InvalidRequestResponse(), nil
	}

	ctx, span := p.tracer.Start(ctx, "policyd.decide")
	defer span.End()

	logger := p.logger
	if ctxLogger := loggerFromContext(ctx); ctxLogger != nil {
		logger = ctxLogger
	}

	timestamp := p.now().UTC()
	version := inquiry.DetermineVersion(attrs)

	var matched *rule.Match
	action, customText := "DUNNO", ""

	evaluator := p.rules.Snapshot()
	if m, ok := evaluator.Evaluate(attrs); ok {
		matched = &m
		action, customText = m.Action, m.CustomText
	} else if lv, blocked, err := p.limiter.Check(ctx, attrs); err != nil {
		logger.ErrorContext(ctx, "rate limiter check failed", "error", err)
	} else if blocked {
		action, customText = "REJECT", lv.CustomText
	}

	verdictText := action
	if customText != "" {
		verdictText = action + " " + customText
	}

	if matched != nil {
		span.SetAttributes(attribute.Int("rule_id", matched.RuleID))
	}
	span.SetAttributes(attribute.String("verdict", verdictText))

	if p.metrics != nil {
		p.metrics.RecordInquiry(action)
	}

	record := inquiry.Record{
		ID:        p.newID(),
		Attrs:     attrs,
		Timestamp: timestamp,
		Matched:   matched,
		Version:   version,
		Verdict:   verdictText,
	}

	if err := p.records.SaveInquiry(ctx, record); err != nil {
		logger.ErrorContext(ctx, "persist inquiry record failed", "id", record.ID, "error", err)
	}

	p.observer.Emit(ctx, UpdatesChannel, Event{Record: record, Version: version, Verdict: verdictText})

	return policyproto.FormatVerdict(action, customText), nil
}
