package emit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into a short OpenTelemetry span.
//
// Span names are the event message, suffixed with the node ID for node events
// ("node completed: retrieval"). Standard attributes are ragflow.run_id,
// ragflow.step and ragflow.node_id; meta entries are attached as attributes,
// with well-known keys mapped into the ragflow.* namespace. An "error" meta
// entry marks the span as failed.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter that records spans with tracer.
//
// Example:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	emitter := emit.NewOTelEmitter(otel.Tracer("ragflow"))
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit implements Emitter.
func (o *OTelEmitter) Emit(event Event) {
	name := event.Msg
	if event.NodeID != "" {
		name = event.Msg + ": " + event.NodeID
	}

	_, span := o.tracer.Start(context.Background(), name)
	defer span.End()

	span.SetAttributes(
		attribute.String("ragflow.run_id", event.RunID),
		attribute.Int("ragflow.step", event.Step),
		attribute.String("ragflow.node_id", event.NodeID),
	)
	o.addMetadataAttributes(span, event.Meta)

	if msg, ok := event.Meta["error"].(string); ok && msg != "" {
		span.SetStatus(codes.Error, msg)
		span.RecordError(errors.New(msg))
	}
}

// Flush forces the global tracer provider to export pending spans when it
// supports ForceFlush.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

var metaAttributeKeys = map[string]string{
	"latency_ms": "ragflow.node.latency_ms",
	"user_id":    "ragflow.user_id",
	"session_id": "ragflow.session_id",
	"intent":     "ragflow.intent",
	"grade":      "ragflow.grade",
	"iteration":  "ragflow.iteration",
	"model":      "ragflow.llm.model",
	"tokens_in":  "ragflow.llm.tokens_in",
	"tokens_out": "ragflow.llm.tokens_out",
}

func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	for key, value := range meta {
		attrKey := key
		if mapped, ok := metaAttributeKeys[key]; ok {
			attrKey = mapped
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
