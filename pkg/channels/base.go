// Package channels hosts the transport fronts that bridge external
// callers to the gateway: an HTTP API, a WebSocket API with event
// broadcasts, and a filesystem drop directory. Every channel speaks the
// same wire envelopes; only the framing differs.
package channels

import (
	"context"
	"net"
	"strings"
	"sync"
)

// Channel is one transport front. Start returns once the channel is
// accepting work; the channel stops when ctx is cancelled or Stop is
// called.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
}

// BaseChannel carries the state every channel shares: a name, a running
// flag, and a remote-host allowlist.
type BaseChannel struct {
	name      string
	allowList []string

	mu      sync.RWMutex
	running bool
}

// NewBaseChannel builds the shared channel state.
func NewBaseChannel(name string, allowList []string) *BaseChannel {
	return &BaseChannel{name: name, allowList: allowList}
}

// Name returns the channel's registered name.
func (b *BaseChannel) Name() string { return b.name }

// IsRunning reports whether the channel is serving.
func (b *BaseChannel) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

func (b *BaseChannel) setRunning(v bool) {
	b.mu.Lock()
	b.running = v
	b.mu.Unlock()
}

// IsAllowed checks a remote address against the allowlist. An empty list
// allows everyone; "*" is a wildcard entry; otherwise the remote's host
// part must match an entry exactly.
func (b *BaseChannel) IsAllowed(remote string) bool {
	if len(b.allowList) == 0 {
		return true
	}
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	host = strings.TrimSpace(host)
	for _, allowed := range b.allowList {
		if allowed == "*" || allowed == host {
			return true
		}
	}
	return false
}
