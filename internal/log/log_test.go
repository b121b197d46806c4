package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAttrsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json")

	ctx := ContextAttrs(context.Background(), slog.String("request_id", "r-1"))
	logger.InfoContext(ctx, "hello", "camera", "50")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "r-1", rec["request_id"])
	assert.Equal(t, "50", rec["camera"])
}

func TestContextAttrsDoNotAlias(t *testing.T) {
	base := ContextAttrs(context.Background(), slog.String("a", "1"))
	left := ContextAttrs(base, slog.String("b", "2"))
	right := ContextAttrs(base, slog.String("c", "3"))

	assert.Len(t, left.Value(slogKey).([]slog.Attr), 2)
	assert.Equal(t, "c", right.Value(slogKey).([]slog.Attr)[1].Key)
	assert.Equal(t, "b", left.Value(slogKey).([]slog.Attr)[1].Key)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", "text")
	logger.Info("dropped")
	assert.Empty(t, buf.String())
	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}
