package logctx

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
}

func TestFromContext_NoLogger(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestFromContext_NilLogger(t *testing.T) {
	ctx := WithLogger(context.Background(), nil)

	assert.Same(t, slog.Default(), FromContext(ctx))
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	ctx = With(ctx, "partition", 3)
	FromContext(ctx).Info("sorted")

	assert.Contains(t, buf.String(), "msg=sorted")
	assert.Contains(t, buf.String(), "partition=3")
}
