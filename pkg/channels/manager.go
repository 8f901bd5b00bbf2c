package channels

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Srjnnnn/blendgate/pkg/logger"
)

// Manager owns the configured channels and starts and stops them as a
// group. Channels are independent: one failing to start does not stop the
// others.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	order    []string
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// Add registers a channel under its own name. Later additions with the
// same name replace earlier ones.
func (m *Manager) Add(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := ch.Name()
	if _, exists := m.channels[name]; !exists {
		m.order = append(m.order, name)
	}
	m.channels[name] = ch
}

// GetChannel returns the named channel.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// Names lists registered channel names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll starts every channel in registration order. Failures are
// logged and collected; surviving channels keep running.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	order := make([]string, len(m.order))
	copy(order, m.order)
	m.mu.RUnlock()

	var firstErr error
	for _, name := range order {
		ch, ok := m.GetChannel(name)
		if !ok {
			continue
		}
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "start_failed", map[string]interface{}{
				"channel": name,
				"error":   err,
			})
			if firstErr == nil {
				firstErr = fmt.Errorf("start channel %s: %w", name, err)
			}
			continue
		}
		logger.InfoCF("channels", "started", map[string]interface{}{
			"channel": name,
		})
	}
	return firstErr
}

// StopAll stops every running channel in reverse registration order.
func (m *Manager) StopAll() {
	m.mu.RLock()
	order := make([]string, len(m.order))
	copy(order, m.order)
	m.mu.RUnlock()

	for i := len(order) - 1; i >= 0; i-- {
		ch, ok := m.GetChannel(order[i])
		if !ok || !ch.IsRunning() {
			continue
		}
		if err := ch.Stop(); err != nil {
			logger.WarnCF("channels", "stop_failed", map[string]interface{}{
				"channel": order[i],
				"error":   err,
			})
		}
	}
}

// States reports each channel's running flag, for the gateway status
// surface.
func (m *Manager) States() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	states := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		states[name] = ch.IsRunning()
	}
	return states
}

// RunningCount reports how many channels are serving.
func (m *Manager) RunningCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, ch := range m.channels {
		if ch.IsRunning() {
			count++
		}
	}
	return count
}
