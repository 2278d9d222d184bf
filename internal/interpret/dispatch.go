package interpret

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/cantor/internal/markup"
	"github.com/MrWong99/cantor/internal/observe"
)

// Source names the interpreter that produced a markup.
type Source string

const (
	SourceRules Source = "rules"
	SourceLLM   Source = "llm"
)

// Result is the outcome of [Dispatcher.Interpret].
type Result struct {
	// Markup is the new markup. It is never empty for non-empty input.
	Markup string

	// Source is the interpreter that produced Markup.
	Source Source

	// UpstreamErr is the language-model failure that caused a fallback to
	// the rules, or nil. It is informational and never needs handling.
	UpstreamErr error
}

// ModelInterpreter is the language-model side of a [Dispatcher]. [*LLM]
// implements it.
type ModelInterpreter interface {
	Interpret(ctx context.Context, req Request) (string, error)
}

// DispatcherOption configures a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithModel enables the language-model path. A nil interpreter leaves the
// dispatcher rules-only.
func WithModel(m ModelInterpreter) DispatcherOption {
	return func(d *Dispatcher) { d.model = m }
}

// WithMetrics records interpretation metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher chooses between the language model and the rule interpreter.
// It is safe for concurrent use.
type Dispatcher struct {
	model   ModelInterpreter
	metrics *observe.Metrics
}

// NewDispatcher returns a rules-only dispatcher unless [WithModel] is given.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// HasModel reports whether the language-model path is configured.
func (d *Dispatcher) HasModel() bool { return d.model != nil }

// Interpret always returns markup. With a model configured it is asked
// first; on any model error the rule interpreter answers from the same
// inputs and the error is carried in [Result.UpstreamErr].
func (d *Dispatcher) Interpret(ctx context.Context, req Request) Result {
	ctx, span := observe.StartSpan(ctx, "interpret")
	defer span.End()
	start := time.Now()

	res := d.interpret(ctx, req)

	span.SetAttributes(
		attribute.String("interpret.source", string(res.Source)),
		attribute.Bool("interpret.fallback", res.UpstreamErr != nil),
	)
	observe.FailSpan(span, res.UpstreamErr)
	d.metrics.InterpretDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("source", string(res.Source))))
	return res
}

func (d *Dispatcher) interpret(ctx context.Context, req Request) Result {
	if d.model != nil {
		out, err := d.model.Interpret(ctx, req)
		if err == nil {
			return Result{Markup: out, Source: SourceLLM}
		}
		d.metrics.InterpretFallbacks.Add(ctx, 1)
		observe.Logger(ctx).Warn("language model interpretation failed, using rules", "error", err)
		return Result{
			Markup:      markup.InterpretWithRules(req.SacredText, req.Feedback, req.CurrentMarkup),
			Source:      SourceRules,
			UpstreamErr: err,
		}
	}
	return Result{
		Markup: markup.InterpretWithRules(req.SacredText, req.Feedback, req.CurrentMarkup),
		Source: SourceRules,
	}
}
