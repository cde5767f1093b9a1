package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRequestID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		require.Len(t, id, 10)
		for _, c := range id {
			assert.Contains(t, base36Chars, string(c))
		}
		seen[id] = true
	}
	// 100 draws from a 36^10 space never collide in practice.
	assert.Len(t, seen, 100)
}

func TestRequestContext_RoundTrip(t *testing.T) {
	ctx := WithRequestContext(context.Background(), "req-123", "user-42-10.0.0.1")

	reqCtx := GetRequestContext(ctx)
	assert.Equal(t, "req-123", reqCtx.RequestID)
	assert.Equal(t, "user-42-10.0.0.1", reqCtx.ClientID)
	assert.False(t, reqCtx.StartTime.IsZero())

	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Equal(t, "user-42-10.0.0.1", GetClientID(ctx))
}

func TestRequestContext_MissingDefaults(t *testing.T) {
	assert.Equal(t, "unknown", GetRequestID(context.Background()))
	assert.Equal(t, "unknown", GetRequestContext(nil).RequestID)
	assert.Equal(t, int64(0), GetElapsedTime(context.Background()))
}

func TestRequestContext_Metadata(t *testing.T) {
	ctx := WithRequestContext(context.Background(), "req-123", "")

	SetMetadata(ctx, "action", "force_open")
	v, ok := GetMetadata(ctx, "action")
	require.True(t, ok)
	assert.Equal(t, "force_open", v)

	_, ok = GetMetadata(ctx, "missing")
	assert.False(t, ok)
}
