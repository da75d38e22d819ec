// Package status carries system-level status text (for example rate-limit
// waits) from background work to whichever front-end is attached.
package status

import "sync"

// Callback receives status messages for display.
type Callback func(message string)

// Manager fans status updates out to a single registered callback.
// It is constructed explicitly and passed by reference; there is no
// package-level instance.
type Manager struct {
	mu       sync.Mutex
	callback Callback
}

// NewManager constructs an empty status manager.
func NewManager() *Manager {
	return &Manager{}
}

// RegisterCallback sets the active status consumer. Passing nil detaches it.
func (m *Manager) RegisterCallback(callback Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = callback
}

// Update delivers a status message to the consumer, if any is attached.
func (m *Manager) Update(message string) {
	m.mu.Lock()
	callback := m.callback
	m.mu.Unlock()
	if callback != nil {
		callback(message)
	}
}
