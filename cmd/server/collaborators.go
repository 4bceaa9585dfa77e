package main

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lychee-technology/viewplane"
)

// memoryThings is an in-process thing registry. Production hosts plug in
// the engine-wide registry instead; this one backs the standalone server
// and doubles as the Publisher by flagging properties for publication.
type memoryThings struct {
	mu     sync.RWMutex
	things map[string]*viewplane.Thing
	forms  map[string]*viewplane.Thing // placeholder things by live form name
}

func newMemoryThings() *memoryThings {
	return &memoryThings{
		things: make(map[string]*viewplane.Thing),
		forms:  make(map[string]*viewplane.Thing),
	}
}

// Put registers or replaces a thing.
func (m *memoryThings) Put(t *viewplane.Thing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.things[t.ID] = t
}

func (m *memoryThings) GetThingByOwner(ownerID string) *viewplane.Thing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.things[ownerID]
}

func (m *memoryThings) LiveThings(nodeID string) []*viewplane.Thing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*viewplane.Thing
	for _, t := range m.things {
		if t.NodeID == nodeID && t.FormName != "" {
			out = append(out, t)
		}
	}
	return out
}

func (m *memoryThings) RegisterPlaceholder(formName string) *viewplane.Thing {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.forms[formName]; ok {
		return t
	}
	t := &viewplane.Thing{
		ID:       uuid.NewString(),
		FormName: formName,
	}
	m.forms[formName] = t
	m.things[t.ID] = t
	return t
}

// SetPublication implements viewplane.Publisher.
func (m *memoryThings) SetPublication(t *viewplane.Thing, property string, enabled bool) {
	if t == nil {
		return
	}
	t.GetProperty(property).Publish = enabled
}

// staticAccess answers permission checks from a user -> role-mask table
// loaded at startup. Users absent from the table carry no roles; an empty
// table grants everything, which keeps local development friction-free.
type staticAccess struct {
	masks map[string]int
}

func newStaticAccess(path string) *staticAccess {
	a := &staticAccess{masks: make(map[string]int)}
	if path == "" {
		return a
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		zap.S().Warnw("access table not loaded, granting all", "file", path, "error", err)
		return a
	}
	if err := json.Unmarshal(raw, &a.masks); err != nil {
		zap.S().Warnw("access table corrupt, granting all", "file", path, "error", err)
		a.masks = make(map[string]int)
	}
	return a
}

func (a *staticAccess) HasUserAccess(userID string, accessMask int) bool {
	if len(a.masks) == 0 {
		return true
	}
	return a.masks[userID]&accessMask != 0
}
