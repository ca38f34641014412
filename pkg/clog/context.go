package clog

import (
	"context"
	"sync"
)

// ctxAttrs accumulates log attributes over the lifetime of a request so the
// final access log line carries everything handlers attached along the way.
type ctxAttrs struct {
	mu         sync.RWMutex
	attributes map[string]any
}

type ctxAttrsKey struct{}

func ContextWithSlog(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxAttrsKey{}, &ctxAttrs{
		attributes: make(map[string]any),
	})
}

func AddAttribute(ctx context.Context, key string, value any) {
	a, ok := ctx.Value(ctxAttrsKey{}).(*ctxAttrs)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attributes[key] = value
}

func AddAttributes(ctx context.Context, attributes map[string]any) {
	a, ok := ctx.Value(ctxAttrsKey{}).(*ctxAttrs)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	mergeMaps(a.attributes, attributes)
}

func GetAttribute[T any](ctx context.Context, key string) T {
	a, ok := ctx.Value(ctxAttrsKey{}).(*ctxAttrs)
	if !ok {
		return *new(T)
	}
	a.mu.RLock()
	iVal, ok := a.attributes[key]
	a.mu.RUnlock()
	if !ok {
		return *new(T)
	}
	val, ok := iVal.(T)
	if !ok {
		return *new(T)
	}
	return val
}

func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if vMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				mergeMaps(dstMap, vMap)
				continue
			}
		}
		dst[k] = v
	}
}

const (
	ErrorAttributeKey = "error.message"
	StackAttributeKey = "error.stack"
)

func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func GetError(ctx context.Context) error {
	return GetAttribute[error](ctx, ErrorAttributeKey)
}

func AddStack(ctx context.Context, stack string) {
	AddAttribute(ctx, StackAttributeKey, stack)
}

func GetStack(ctx context.Context) string {
	return GetAttribute[string](ctx, StackAttributeKey)
}

func GetAttributes(ctx context.Context) map[string]any {
	a, ok := ctx.Value(ctxAttrsKey{}).(*ctxAttrs)
	if !ok {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	copied := make(map[string]any, len(a.attributes))
	for k, v := range a.attributes {
		copied[k] = v
	}
	return copied
}
