package engine

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrijr/statum/pkg/api"
)

const tracerName = "github.com/petrijr/statum"

// Metric definitions. They register with the default Prometheus registry
// and are shared by every engine in the process.
var (
	// inputsTotal counts Send calls by schematic and outcome kind.
	inputsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statum_inputs_total",
		Help: "Total number of inputs sent to machines by schematic and outcome",
	}, []string{"schematic", "outcome"})

	// conflictsTotal counts commits that lost a compare-and-swap race.
	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statum_conflicts_total",
		Help: "Total number of state commits rejected by a concurrent writer",
	}, []string{"schematic"})

	// connectorInvocationsTotal counts entry connector calls.
	connectorInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statum_connector_invocations_total",
		Help: "Total number of entry connector invocations by connector and outcome",
	}, []string{"connector", "outcome"})

	// sendDuration tracks end-to-end Send latency, retries included.
	sendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statum_send_duration_seconds",
		Help:    "Duration of Send calls by schematic and outcome",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"schematic", "outcome"})
)

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(api.KindOf(err))
}

func sanitizeSchematic(name string) string {
	if name == "" {
		return "unknown"
	}
	return name
}

// startSendSpan creates the span covering one Send call.
// The caller is responsible for calling finishSpan.
func startSendSpan(ctx context.Context, machineID string, input any) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "statum.machine.send")
	span.SetAttributes(
		attribute.String("statum.machine_id", machineID),
		attribute.String("statum.input", fmt.Sprint(input)),
	)
	return ctx, span
}

// startConnectorSpan creates a child span for an entry connector call.
func startConnectorSpan(ctx context.Context, key string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "statum.connector.on_entry")
	span.SetAttributes(attribute.String("statum.connector", key))
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("statum.error_kind", string(api.KindOf(err))))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
