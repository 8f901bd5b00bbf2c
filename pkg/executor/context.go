package executor

import "context"

type batchKey struct{}

// BatchInfo identifies the batch entry a command executes under.
type BatchInfo struct {
	ID    string
	Index int
}

// WithBatch tags ctx with the owning batch so hook events fired inside
// Execute carry the batch id and entry index.
func WithBatch(ctx context.Context, id string, index int) context.Context {
	return context.WithValue(ctx, batchKey{}, BatchInfo{ID: id, Index: index})
}

// BatchFromContext reports the batch tag, if any.
func BatchFromContext(ctx context.Context) (BatchInfo, bool) {
	info, ok := ctx.Value(batchKey{}).(BatchInfo)
	return info, ok
}
