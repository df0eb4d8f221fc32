package keyslot

import (
	"context"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/rbaliyan/config-keyslot"

// Restore outcomes recorded on the keyslot.restores counter.
const (
	outcomeRestored = "restored"
	outcomeMatched  = "matched"
	outcomeConflict = "conflict"
	outcomeInvalid  = "invalid"
)

type telemetry struct {
	tracer      trace.Tracer
	generations metric.Int64Counter
	restores    metric.Int64Counter
	ciphers     metric.Int64Counter
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider, log logr.Logger) *telemetry {
	meter := mp.Meter(instrumentationName)
	return &telemetry{
		tracer: tp.Tracer(instrumentationName),
		generations: counter(meter, log, "keyslot.generations",
			"Key material generation attempts by result."),
		restores: counter(meter, log, "keyslot.restores",
			"Snapshot restore attempts by outcome."),
		ciphers: counter(meter, log, "keyslot.ciphers",
			"Cipher instances issued by mode."),
	}
}

// counter falls back to a no-op instrument so a misbehaving meter never
// disables the store.
func counter(meter metric.Meter, log logr.Logger, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("1"))
	if err != nil {
		log.Error(err, "failed to create counter", "name", name)
		return noop.Int64Counter{}
	}
	return c
}

func (t *telemetry) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (t *telemetry) generation(ctx context.Context, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	t.generations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (t *telemetry) restore(ctx context.Context, outcome string) {
	t.restores.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (t *telemetry) cipher(ctx context.Context, mode Mode) {
	t.ciphers.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode.String())))
}

// fail records err on the span and returns it unchanged.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
