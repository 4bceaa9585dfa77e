package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/lychee-technology/viewplane"
)

// fakeThings is an in-memory thing registry for tests.
type fakeThings struct {
	mu           sync.Mutex
	byOwner      map[string]*viewplane.Thing
	live         map[string][]*viewplane.Thing
	placeholders map[string]*viewplane.Thing
}

func newFakeThings() *fakeThings {
	return &fakeThings{
		byOwner:      make(map[string]*viewplane.Thing),
		live:         make(map[string][]*viewplane.Thing),
		placeholders: make(map[string]*viewplane.Thing),
	}
}

func (f *fakeThings) add(t *viewplane.Thing) *viewplane.Thing {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byOwner[t.ID] = t
	return t
}

func (f *fakeThings) addLive(t *viewplane.Thing) *viewplane.Thing {
	f.add(t)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[t.NodeID] = append(f.live[t.NodeID], t)
	return t
}

func (f *fakeThings) GetThingByOwner(ownerID string) *viewplane.Thing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byOwner[ownerID]
}

func (f *fakeThings) LiveThings(nodeID string) []*viewplane.Thing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live[nodeID]
}

func (f *fakeThings) RegisterPlaceholder(formName string) *viewplane.Thing {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.placeholders[formName]; ok {
		return t
	}
	t := &viewplane.Thing{ID: "placeholder-" + formName, FormName: formName}
	f.placeholders[formName] = t
	f.byOwner[t.ID] = t
	return t
}

// pubEvent records one SetPublication call.
type pubEvent struct {
	ThingID  string
	Property string
	Enabled  bool
}

// capturePublisher records publication toggles for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []pubEvent
}

func (p *capturePublisher) SetPublication(t *viewplane.Thing, property string, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pubEvent{ThingID: t.ID, Property: property, Enabled: enabled})
}

func (p *capturePublisher) all() []pubEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]pubEvent, len(p.events))
	copy(out, p.events)
	return out
}

// sentMessage records one Send call.
type sentMessage struct {
	NodeID  string
	Topic   string
	Payload any
}

// captureSender records pushed messages, optionally failing for chosen
// nodes.
type captureSender struct {
	mu       sync.Mutex
	messages []sentMessage
	failFor  map[string]bool
}

func (s *captureSender) Send(nodeID, topic string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[nodeID] {
		return fmt.Errorf("node %s unreachable", nodeID)
	}
	s.messages = append(s.messages, sentMessage{NodeID: nodeID, Topic: topic, Payload: payload})
	return nil
}

func (s *captureSender) all() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// maskAccess grants access when the user's mask overlaps the required one.
// An empty table grants everything, mirroring the server's static checker.
type maskAccess struct {
	masks map[string]int
}

func (a *maskAccess) HasUserAccess(userID string, accessMask int) bool {
	if len(a.masks) == 0 {
		return true
	}
	return a.masks[userID]&accessMask != 0
}

// mapStorage is an in-memory override storage keyed by record path.
type mapStorage struct {
	mu      sync.Mutex
	records map[string][]byte
	failOn  map[string]error
}

func newMapStorage() *mapStorage {
	return &mapStorage{records: make(map[string][]byte)}
}

func (s *mapStorage) put(key string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = raw
}

func (s *mapStorage) ReadRecord(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failOn[key]; ok {
		return nil, err
	}
	return s.records[key], nil
}
