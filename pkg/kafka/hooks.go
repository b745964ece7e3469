package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	xlogger "NewsSignal/pkg/logger"
	"NewsSignal/pkg/tracing"
)

// Delivery is one handling attempt as hooks see it. Before may replace
// Data; the handler receives whatever Data holds afterwards.
type Delivery struct {
	Topic string
	Msg   kafka.Message
	Data  []byte
}

// Hook wraps handling attempts. A Before error skips the handler and is
// not retried. After runs once per attempt for every hook whose Before
// succeeded, with the attempt's outcome.
type Hook interface {
	Before(ctx context.Context, d *Delivery) (context.Context, error)
	After(ctx context.Context, d *Delivery, err error)
}

// Hooks runs Before in order and After in reverse. A panicking hook is
// turned into an ERR_PANIC HookError.
type Hooks []Hook

func (hs Hooks) Before(ctx context.Context, d *Delivery) (context.Context, error) {
	for i, h := range hs {
		next, err := safeBefore(h, ctx, d)
		if err != nil {
			hs[:i].After(ctx, d, err)
			return ctx, err
		}
		ctx = next
	}
	return ctx, nil
}

func (hs Hooks) After(ctx context.Context, d *Delivery, err error) {
	for i := len(hs) - 1; i >= 0; i-- {
		func() {
			defer func() { _ = recover() }()
			hs[i].After(ctx, d, err)
		}()
	}
}

func safeBefore(h Hook, ctx context.Context, d *Delivery) (next context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = ctx, &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("hook panic: %v", r)}
		}
	}()
	return h.Before(ctx, d)
}

// HookError classifies a hook rejection.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *HookError) Unwrap() error { return e.Err }

var ErrInvalidPayload = errors.New("payload is not valid JSON")

// TracingHook continues the trace carried in the message headers and
// wraps each attempt in a consumer span.
type TracingHook struct{}

func (TracingHook) Before(ctx context.Context, d *Delivery) (context.Context, error) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier{&d.Msg.Headers})
	ctx, _ = tracing.StartSpan(ctx, "kafka.consume "+d.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", d.Topic),
			attribute.Int("messaging.kafka.partition", d.Msg.Partition),
			attribute.Int64("messaging.kafka.offset", d.Msg.Offset),
		))
	return ctx, nil
}

func (TracingHook) After(ctx context.Context, _ *Delivery, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// JSONHook rejects payloads that are not JSON, sending them to the DLQ
// without retries.
type JSONHook struct{}

func (JSONHook) Before(ctx context.Context, d *Delivery) (context.Context, error) {
	if !json.Valid(d.Data) {
		return ctx, &HookError{Code: "ERR_VALIDATION", Err: ErrInvalidPayload}
	}
	return ctx, nil
}

func (JSONHook) After(context.Context, *Delivery, error) {}

// LogHook logs failed attempts.
type LogHook struct {
	Logger *xlogger.Logger
}

func (LogHook) Before(ctx context.Context, _ *Delivery) (context.Context, error) { return ctx, nil }

func (h LogHook) After(ctx context.Context, d *Delivery, err error) {
	if err == nil || h.Logger == nil {
		return
	}
	h.Logger.Warn("kafka message failed",
		xlogger.String("topic", d.Topic),
		xlogger.Int("partition", d.Msg.Partition),
		xlogger.Int64("offset", d.Msg.Offset),
		xlogger.String("trace_id", tracing.TraceID(ctx)),
		xlogger.Error(err))
}

// headerCarrier adapts kafka headers to the OpenTelemetry propagator.
type headerCarrier struct {
	headers *[]kafka.Header
}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}
