// Package observe provides application-wide observability primitives for
// parley: OpenTelemetry metrics, tracing, structured logging helpers, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be scraped
// from the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all parley metrics.
const meterName = "github.com/parley-voice/parley"

// Utterance kinds recorded via [Metrics.RecordUtterance].
const (
	UtteranceReply         = "reply"
	UtteranceRepeatPrompt  = "repeat_prompt"
	UtteranceNoAudioPrompt = "no_audio_prompt"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// TurnDuration tracks the full question-to-answer cycle, from the moment
	// the buffered question is taken to the end of the spoken reply.
	TurnDuration metric.Float64Histogram

	// ReplyDuration tracks reply-generation latency.
	ReplyDuration metric.Float64Histogram

	// TranscriptEvents counts transcript fragments received from the
	// transcription service. Use with attribute.Bool("final", ...).
	TranscriptEvents metric.Int64Counter

	// Utterances counts spoken utterances. Use with
	// attribute.String("kind", ...): reply, repeat_prompt, no_audio_prompt.
	Utterances metric.Int64Counter

	// ReplyFailures counts failed reply generations.
	ReplyFailures metric.Int64Counter

	// PlaybackFatals counts playback queues aborted after consecutive device
	// failures.
	PlaybackFatals metric.Int64Counter

	// TerminalErrors counts streaming clients that exhausted their reconnect
	// budget.
	TerminalErrors metric.Int64Counter

	// StateTransitions counts coordinator state changes. Use with
	// attribute.String("from", ...), attribute.String("to", ...).
	StateTransitions metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// turnBuckets defines histogram bucket boundaries (in seconds) sized for
// seconds-scale conversation turns rather than sub-second RPCs.
var turnBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 15, 30, 60, 120,
}

// replyBuckets covers the expected latency range of a chat completion.
var replyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("parley.turn.duration",
		metric.WithDescription("Duration of a full question-to-answer turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(turnBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReplyDuration, err = m.Float64Histogram("parley.reply.duration",
		metric.WithDescription("Latency of reply generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(replyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptEvents, err = m.Int64Counter("parley.transcript.events",
		metric.WithDescription("Total transcript fragments received, by finality."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("parley.utterances",
		metric.WithDescription("Total spoken utterances by kind."),
	); err != nil {
		return nil, err
	}
	if met.ReplyFailures, err = m.Int64Counter("parley.reply.failures",
		metric.WithDescription("Total failed reply generations."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackFatals, err = m.Int64Counter("parley.playback.fatals",
		metric.WithDescription("Total playback queues aborted after consecutive device failures."),
	); err != nil {
		return nil, err
	}
	if met.TerminalErrors, err = m.Int64Counter("parley.speech.terminal_errors",
		metric.WithDescription("Total streaming clients that exhausted their reconnect budget."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("parley.state.transitions",
		metric.WithDescription("Total coordinator state transitions by from/to state."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("parley.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTurn records one completed question-to-answer cycle.
func (m *Metrics) RecordTurn(ctx context.Context, d time.Duration) {
	m.TurnDuration.Record(ctx, d.Seconds())
}

// RecordReply records one reply generation with the given outcome status
// ("ok" or "error").
func (m *Metrics) RecordReply(ctx context.Context, d time.Duration, status string) {
	m.ReplyDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
	if status != "ok" {
		m.ReplyFailures.Add(ctx, 1)
	}
}

// RecordTranscript records one received transcript fragment.
func (m *Metrics) RecordTranscript(ctx context.Context, final bool) {
	m.TranscriptEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("final", final)),
	)
}

// RecordUtterance records one spoken utterance of the given kind.
func (m *Metrics) RecordUtterance(ctx context.Context, kind string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordStateTransition records one coordinator state change.
func (m *Metrics) RecordStateTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}
