package viewplane

import (
	"sync"
)

// Property is a handle onto one named value of a Thing. Publish marks the
// property for change publication to subscribed client nodes.
type Property struct {
	Name    string `json:"name"`
	Value   any    `json:"value,omitempty"`
	Publish bool   `json:"publish,omitempty"`
}

// Thing is a runtime entity owned by the external thing registry. The
// subscription engine reads and annotates things but never owns their
// lifecycle.
type Thing struct {
	ID       string `json:"id"`
	NodeID   string `json:"nodeId"`
	FormName string `json:"formName,omitempty"`
	// ControlType names the SmartControlType handler used to render the
	// thing on dynamically composed screens.
	ControlType string `json:"controlType,omitempty"`
	AccessMask  int    `json:"accessMask"`
	// FldOrder is the screen position previously assigned to this thing on
	// a live screen; zero means no position has been assigned yet.
	// Concurrent paths read and write it through Position/EnsurePosition.
	FldOrder int `json:"fldOrder,omitempty"`

	mu    sync.RWMutex
	props map[string]*Property
}

// getPropertyLocked returns the named property, creating it on first
// access. Callers hold t.mu.
func (t *Thing) getPropertyLocked(name string) *Property {
	if t.props == nil {
		t.props = make(map[string]*Property)
	}
	p, ok := t.props[name]
	if !ok {
		p = &Property{Name: name}
		t.props[name] = p
	}
	return p
}

// GetProperty returns the named property, creating it on first access.
func (t *Thing) GetProperty(name string) *Property {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getPropertyLocked(name)
}

// SetProperty sets the named property value, creating it if absent.
func (t *Thing) SetProperty(name string, value any) *Property {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.getPropertyLocked(name)
	p.Value = value
	return p
}

// SetPropertyIfNil stores value when the named property is absent or
// still nil and returns the value left in place. Concurrent callers all
// observe the same winner.
func (t *Thing) SetPropertyIfNil(name string, value any) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.getPropertyLocked(name)
	if p.Value == nil {
		p.Value = value
	}
	return p.Value
}

// Position returns the assigned live-screen position, zero when none has
// been assigned yet.
func (t *Thing) Position() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.FldOrder
}

// EnsurePosition assigns the given position when none is set yet and
// returns the effective position.
func (t *Thing) EnsurePosition(order int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FldOrder == 0 {
		t.FldOrder = order
	}
	return t.FldOrder
}

// ThingRegistry resolves runtime entities. Implemented by the engine's
// host; internals of the thing store are out of scope here.
type ThingRegistry interface {
	// GetThingByOwner resolves a thing by its owner ID, nil when unknown.
	GetThingByOwner(ownerID string) *Thing
	// LiveThings lists runtime-tagged live entities belonging to a node.
	LiveThings(nodeID string) []*Thing
	// RegisterPlaceholder creates (or returns) the backing placeholder
	// thing for a dynamically composed live form.
	RegisterPlaceholder(formName string) *Thing
}

// Publisher activates or deactivates change publication for one property
// of a thing. Target scope and transport are the publisher's concern.
type Publisher interface {
	SetPublication(t *Thing, property string, enabled bool)
}

// Sender pushes a payload to one client node on a message topic, keyed by
// the screen or form GUID being delivered.
type Sender interface {
	Send(nodeID, topic string, payload any) error
}

// AccessChecker answers role-mask permission checks for a user. A zero
// access mask always passes.
type AccessChecker interface {
	HasUserAccess(userID string, accessMask int) bool
}
