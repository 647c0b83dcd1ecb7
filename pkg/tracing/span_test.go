package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "navigator.run", "trace-1")
	_, guard := StartChildSpan(ctx, "guardrail_check")
	guard.SetAttr("allowed", true)
	guard.End()
	rctx, retrieve := StartChildSpan(ctx, "retrieve")
	_, inner := StartChildSpan(rctx, "rank")
	inner.End()
	retrieve.End()
	root.End()

	assert.Equal(t, []string{"guardrail_check", "retrieve"}, root.ChildNames())
	assert.Equal(t, "trace-1", inner.TraceID)
	v, ok := guard.Attr("allowed")
	require.True(t, ok)
	assert.Equal(t, true, v)
	assert.Same(t, root, SpanFromContext(ctx))
}

func TestNilSpanIsSafe(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	assert.Nil(t, span)
	assert.Nil(t, SpanFromContext(ctx))

	span.SetAttr("k", "v")
	span.End()
	span.Log(nil)
	_, ok := span.Attr("k")
	assert.False(t, ok)
	assert.Nil(t, span.ChildNames())
}

func TestLogWritesEverySpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, root := StartSpan(context.Background(), "navigator.run", "trace-2")
	_, child := StartChildSpan(ctx, "synthesize")
	child.SetAttr("sections", 2)
	child.End()
	root.End()
	root.Log(logger)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "msg=span"))
	assert.Contains(t, out, "span=navigator.run")
	assert.Contains(t, out, "span=synthesize")
	assert.Contains(t, out, "sections=2")
	assert.Contains(t, out, "depth=1")
}
