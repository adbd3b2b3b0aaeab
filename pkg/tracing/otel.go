// Copyright 2026 fanjia1024
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartTurnSpan 开始单轮编排 span
func StartTurnSpan(ctx context.Context, threadID string, domain string) (context.Context, trace.Span) {
	tracer := otel.Tracer("islander-chat")
	ctx, span := tracer.Start(ctx, "turn.handle",
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.String("turn.domain", domain),
		),
	)
	return ctx, span
}

// StartOfferSpan 开始库存摘要查询 span
func StartOfferSpan(ctx context.Context, fingerprint string) (context.Context, trace.Span) {
	tracer := otel.Tracer("islander-chat")
	ctx, span := tracer.Start(ctx, "offers.summary",
		trace.WithAttributes(
			attribute.String("offers.fingerprint", fingerprint),
		),
	)
	return ctx, span
}
