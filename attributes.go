package beacon

import "sync"

// AttributeManager holds global attributes copied onto every recorded event,
// e.g. the language currently selected on the page.
type AttributeManager struct {
	attributes map[string]any
	mu         sync.RWMutex
}

// NewAttributeManager creates an empty attribute manager.
func NewAttributeManager() *AttributeManager {
	return &AttributeManager{
		attributes: make(map[string]any),
	}
}

// Set stores an attribute. A nil value removes it.
func (m *AttributeManager) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == nil {
		delete(m.attributes, key)
		return
	}
	m.attributes[key] = value
}

// Get returns a single attribute.
func (m *AttributeManager) Get(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attributes[key]
}

// Snapshot returns a copy of all attributes, or nil when there are none so
// events omit the field entirely.
func (m *AttributeManager) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.attributes) == 0 {
		return nil
	}

	result := make(map[string]any, len(m.attributes))
	for k, v := range m.attributes {
		result[k] = v
	}
	return result
}

// Clear removes all attributes
func (m *AttributeManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attributes = make(map[string]any)
}
