package workflow

import "sync"

// Context accumulates stage outputs within one run, keyed by stage name.
// Writes are append-only: once a stage's entry exists it is immutable.
// Safe for concurrent reads; writes are serialized by the owning run.
type Context struct {
	mu      sync.RWMutex
	entries map[string]map[string]any
}

// NewContext creates an empty context store.
func NewContext() *Context {
	return &Context{entries: make(map[string]map[string]any)}
}

// ContextFrom rebuilds a context store from a persisted snapshot.
func ContextFrom(snapshot map[string]map[string]any) *Context {
	c := NewContext()
	for key, payload := range snapshot {
		c.entries[key] = clonePayload(payload)
	}
	return c
}

// Put stores a stage's output. It fails with DuplicateKeyError if the key is
// already present.
func (c *Context) Put(key string, value map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return &DuplicateKeyError{Key: key}
	}
	c.entries[key] = clonePayload(value)
	return nil
}

// Get returns the output stored under key. It fails with KeyNotFoundError if
// the key is absent. The returned payload is a copy.
func (c *Context) Get(key string) (map[string]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	payload, ok := c.entries[key]
	if !ok {
		return nil, &KeyNotFoundError{Key: key}
	}
	return clonePayload(payload), nil
}

// HasAll reports whether every key is present. Pure check, no side effects.
func (c *Context) HasAll(keys []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, key := range keys {
		if _, ok := c.entries[key]; !ok {
			return false
		}
	}
	return true
}

// MissingKey returns the first key from keys that is absent, or "" when all
// are present. Used for error attribution.
func (c *Context) MissingKey(keys []string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, key := range keys {
		if _, ok := c.entries[key]; !ok {
			return key
		}
	}
	return ""
}

// Len returns the number of entries.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a deep copy of all entries. Collaborators receive this
// copy, never the live store, so they cannot introduce hidden write paths.
func (c *Context) Snapshot() map[string]map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]map[string]any, len(c.entries))
	for key, payload := range c.entries {
		out[key] = clonePayload(payload)
	}
	return out
}

func clonePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
