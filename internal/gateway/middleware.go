package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/lthms/litmap/internal/telemetry"
)

// Limited throttles calls to the wrapped gateway with a token bucket.
type Limited struct {
	next    Gateway
	limiter *rate.Limiter
}

// NewLimited allows perSecond calls per second with the given burst. A
// non-positive perSecond disables throttling.
func NewLimited(next Gateway, perSecond float64, burst int) *Limited {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (l *Limited) Generate(ctx context.Context, req Request) (Response, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limit: %w", err)
	}
	return l.next.Generate(ctx, req)
}

// Recorder stores provenance of generation calls.
type Recorder interface {
	LogGatewayCall(model, operation, outcome string, duration time.Duration)
}

// Observed records every call in metrics, a trace span and an optional
// Recorder.
type Observed struct {
	next     Gateway
	model    string
	recorder Recorder
}

func NewObserved(next Gateway, model string, rec Recorder) *Observed {
	return &Observed{next: next, model: model, recorder: rec}
}

func (o *Observed) Generate(ctx context.Context, req Request) (Response, error) {
	op := Operation(ctx)
	ctx, span := telemetry.Tracer("gateway").Start(ctx, "gateway.generate")
	span.SetAttributes(
		attribute.String("gateway.model", o.model),
		attribute.String("gateway.operation", op),
		attribute.Int("gateway.prior_turns", len(req.PriorTurns)),
	)
	defer span.End()

	start := time.Now()
	resp, err := o.next.Generate(ctx, req)
	elapsed := time.Since(start)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case resp.Error != "":
		outcome = "error"
		span.SetStatus(codes.Error, resp.Error)
	}

	telemetry.GatewayCalls.WithLabelValues(o.model, op, outcome).Inc()
	telemetry.GatewayLatency.WithLabelValues(o.model, op).Observe(elapsed.Seconds())
	if o.recorder != nil {
		o.recorder.LogGatewayCall(o.model, op, outcome, elapsed)
	}
	slog.Debug("gateway: call finished", "model", o.model, "operation", op, "outcome", outcome, "duration", elapsed)
	return resp, err
}
