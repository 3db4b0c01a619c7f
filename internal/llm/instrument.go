package llm

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/pkg/logger"
	"github.com/capitalize-ai/chatsync/pkg/metrics"
	"github.com/capitalize-ai/chatsync/pkg/tracing"
)

// instrumented records metrics and spans for every completion and turns
// failures and blank output into generation errors.
type instrumented struct {
	Client
	log *logger.Logger
}

// Instrument wraps c. The returned client reports a model.KindGeneration
// error when the call fails or the model returns only whitespace.
func Instrument(c Client, log *logger.Logger) Client {
	if log == nil {
		log = logger.Nop()
	}
	return &instrumented{Client: c, log: log.Component("llm")}
}

func (c *instrumented) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	ctx, span := tracing.Tracer("chatsync/llm").Start(ctx, "llm.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", c.Name()),
			attribute.String("llm.model", req.Model),
			attribute.Int("llm.messages", len(req.Messages)),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.Client.Complete(ctx, req)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		metrics.RecordGeneration(c.Name(), req.Model, "error", elapsed, 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn("completion failed",
			zap.String("provider", c.Name()),
			zap.String("model", req.Model),
			zap.Error(err),
		)
		return nil, model.WrapError(model.KindGeneration, "llm.complete", err)
	}

	if strings.TrimSpace(resp.Content) == "" {
		metrics.RecordGeneration(c.Name(), req.Model, "empty", elapsed, resp.TokensIn, resp.TokensOut)
		span.SetStatus(codes.Error, "empty completion")
		return nil, model.NewError(model.KindGeneration, "llm.complete", "model returned an empty response")
	}

	metrics.RecordGeneration(c.Name(), req.Model, "ok", elapsed, resp.TokensIn, resp.TokensOut)
	span.SetAttributes(
		attribute.Int("llm.tokens_in", resp.TokensIn),
		attribute.Int("llm.tokens_out", resp.TokensOut),
	)
	c.log.Debug("completion finished",
		zap.String("provider", c.Name()),
		zap.String("model", req.Model),
		zap.Int64("latency_ms", resp.LatencyMs),
	)
	return resp, nil
}
