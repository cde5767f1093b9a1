package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// contextKey is a private key type for request context storage.
type contextKey string

const requestContextKey contextKey = "shiftguard_request_context"

// RequestContext carries per-request tracing fields through the call
// chain so every log line of one request can be correlated.
type RequestContext struct {
	RequestID string
	ClientID  string
	StartTime time.Time
	Metadata  map[string]interface{}
}

var (
	randSource = rand.NewSource(time.Now().UnixNano())
	randMutex  sync.Mutex
	// base36 alphabet, lowercase letters plus digits
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateRequestID returns a 10-character base36 request ID, for
// example "mgrn0zfqda". Cheaper than a UUID and short enough to read
// in a log line.
func GenerateRequestID() string {
	randMutex.Lock()
	defer randMutex.Unlock()

	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[randSource.Int63()%36]
	}
	return string(b)
}

// WithRequestContext injects a RequestContext into ctx. Called once per
// request by the logging middleware.
func WithRequestContext(ctx context.Context, requestID, clientID string) context.Context {
	reqCtx := &RequestContext{
		RequestID: requestID,
		ClientID:  clientID,
		StartTime: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
	return context.WithValue(ctx, requestContextKey, reqCtx)
}

// GetRequestContext extracts the RequestContext, returning a placeholder
// with RequestID "unknown" when none was injected.
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return &RequestContext{
			RequestID: "unknown",
			Metadata:  make(map[string]interface{}),
		}
	}

	if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return reqCtx
	}

	return &RequestContext{
		RequestID: "unknown",
		Metadata:  make(map[string]interface{}),
	}
}

// GetRequestID extracts just the request ID.
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetClientID extracts the client identifier the middleware resolved.
func GetClientID(ctx context.Context) string {
	return GetRequestContext(ctx).ClientID
}

// SetMetadata attaches an extra tracing field to the request context.
func SetMetadata(ctx context.Context, key string, value interface{}) {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.Metadata == nil {
		reqCtx.Metadata = make(map[string]interface{})
	}
	reqCtx.Metadata[key] = value
}

// GetMetadata reads an extra tracing field from the request context.
func GetMetadata(ctx context.Context, key string) (interface{}, bool) {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.Metadata == nil {
		return nil, false
	}
	value, ok := reqCtx.Metadata[key]
	return value, ok
}

// GetElapsedTime returns milliseconds since the request started, or 0
// when no request context exists.
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
