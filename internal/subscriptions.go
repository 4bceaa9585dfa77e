package internal

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lychee-technology/viewplane"
)

// nodeRecord is the liveness record of one client node.
type nodeRecord struct {
	LastSeen   time.Time
	ElementID  string
	OwnerID    string
	DataItem   string
	HasLiveSub bool
}

// subEntry is one (element, node) subscription relation.
type subEntry struct {
	NodeID      string
	OwnerID     string
	DataItem    string
	ControlType viewplane.ControlType
	Live        bool
	LastSeen    time.Time
}

// Registry tracks live node-element-thing subscriptions and node liveness.
// It exclusively owns the node and element maps; all structural mutation
// goes through one coarse lock per map, presence lookups take the read
// side only. No call into the thing registry or publisher happens while a
// lock is held.
type Registry struct {
	sessionTimeout   time.Duration
	heartbeatEnabled bool
	things           viewplane.ThingRegistry
	pub              viewplane.Publisher
	now              func() time.Time

	nodeMu sync.RWMutex
	nodes  map[string]*nodeRecord

	elemMu   sync.RWMutex
	elements map[string]map[string]*subEntry // elementID -> nodeID -> entry
	owners   map[string]int                  // ownerID -> subscribed element count

	sweepMu sync.Mutex // TryLock-ed: overlapping sweeps are skipped, not queued
}

// NewRegistry creates a subscription registry.
func NewRegistry(cfg viewplane.SessionConfig, things viewplane.ThingRegistry, pub viewplane.Publisher) *Registry {
	return &Registry{
		sessionTimeout:   cfg.Timeout,
		heartbeatEnabled: cfg.EnableHeartbeat,
		things:           things,
		pub:              pub,
		now:              time.Now,
		nodes:            make(map[string]*nodeRecord),
		elements:         make(map[string]map[string]*subEntry),
		owners:           make(map[string]int),
	}
}

func (r *Registry) withClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// RegisterNode upserts the liveness record for a node and reports whether
// the node was already known. Empty optional arguments and a nil
// hasLiveSub never clobber previously stored values.
func (r *Registry) RegisterNode(nodeID, elementID, ownerID, dataItem string, hasLiveSub *bool) bool {
	if nodeID == "" {
		return false
	}

	r.nodeMu.Lock()
	defer r.nodeMu.Unlock()

	rec, known := r.nodes[nodeID]
	if !known {
		rec = &nodeRecord{}
		r.nodes[nodeID] = rec
	}
	rec.LastSeen = r.now()
	if elementID != "" {
		rec.ElementID = elementID
	}
	if ownerID != "" {
		rec.OwnerID = ownerID
	}
	if dataItem != "" {
		rec.DataItem = dataItem
	}
	if hasLiveSub != nil {
		rec.HasLiveSub = *hasLiveSub
	}
	return known
}

// UpdateHeartbeat refreshes the last-seen time of a known node. Unknown
// nodes and disabled heartbeat tracking make this a no-op.
func (r *Registry) UpdateHeartbeat(nodeID string) {
	if !r.heartbeatEnabled {
		return
	}
	r.nodeMu.Lock()
	defer r.nodeMu.Unlock()
	if rec, ok := r.nodes[nodeID]; ok {
		rec.LastSeen = r.now()
	}
}

// IsNodeKnown reports whether a node has a heartbeat within twice the
// session timeout.
func (r *Registry) IsNodeKnown(nodeID string) bool {
	r.nodeMu.RLock()
	defer r.nodeMu.RUnlock()
	rec, ok := r.nodes[nodeID]
	if !ok {
		return false
	}
	return r.now().Sub(rec.LastSeen) <= 2*r.sessionTimeout
}

// IsElementLive reports whether at least one subscription of the element
// has its liveness flag set.
func (r *Registry) IsElementLive(elementID string) bool {
	r.elemMu.RLock()
	defer r.elemMu.RUnlock()
	for _, ent := range r.elements[elementID] {
		if ent.Live {
			return true
		}
	}
	return false
}

// IsOwnerKnown reports whether any subscribed element belongs to the owner.
func (r *Registry) IsOwnerKnown(ownerID string) bool {
	r.elemMu.RLock()
	defer r.elemMu.RUnlock()
	return r.owners[ownerID] > 0
}

// RegisterSubscription resolves the owning thing of a data-bound field and
// records a live subscription keyed by (element, node). Repeated
// registrations with the same keys refresh liveness without creating a
// duplicate entry. Table fields skip per-property publication; table rows
// subscribe through a coarser table-level mechanism. Returns the resolved
// thing, or nil when the field has no data item or the owner is unknown.
func (r *Registry) RegisterSubscription(cc viewplane.ClientContext, fld *viewplane.FieldDefinition) *viewplane.Thing {
	if fld == nil || fld.DataItem == "" {
		return nil
	}
	thing := r.things.GetThingByOwner(fld.OwnerID)
	if thing == nil {
		zap.S().Debugw("subscription owner not resolved", "ownerId", fld.OwnerID, "dataItem", fld.DataItem)
		return nil
	}

	elementID := fld.ID.String()

	r.elemMu.Lock()
	subs, ok := r.elements[elementID]
	if !ok {
		subs = make(map[string]*subEntry)
		r.elements[elementID] = subs
		r.owners[fld.OwnerID]++
	}
	ent, ok := subs[cc.NodeID]
	if !ok {
		ent = &subEntry{
			NodeID:      cc.NodeID,
			OwnerID:     fld.OwnerID,
			DataItem:    fld.DataItem,
			ControlType: fld.Type,
		}
		subs[cc.NodeID] = ent
	}
	ent.Live = true
	ent.LastSeen = r.now()
	r.elemMu.Unlock()

	if fld.Type != viewplane.ControlTable {
		r.pub.SetPublication(thing, fld.DataItem, true)
	}
	return thing
}

// UnsubscribeNode marks every subscription of a node dead and cascades
// element and owner cleanup, exactly like a sweep would for that node.
func (r *Registry) UnsubscribeNode(nodeID string) {
	r.retireNodes([]string{nodeID})
}

// SweepStale removes every node whose heartbeat age exceeds twice the
// session timeout and cascades subscription cleanup for the removed
// nodes. Overlapping sweeps are skipped: if another sweep holds the sweep
// lock the call returns -1 immediately. Victims are collected first so the
// node lock is held only briefly.
func (r *Registry) SweepStale(now time.Time) int {
	if !r.sweepMu.TryLock() {
		return -1
	}
	defer r.sweepMu.Unlock()

	if !r.heartbeatEnabled {
		return 0
	}

	cutoff := 2 * r.sessionTimeout

	var victims []string
	r.nodeMu.Lock()
	for nodeID, rec := range r.nodes {
		if now.Sub(rec.LastSeen) > cutoff {
			victims = append(victims, nodeID)
		}
	}
	for _, nodeID := range victims {
		delete(r.nodes, nodeID)
	}
	r.nodeMu.Unlock()

	if len(victims) > 0 {
		zap.S().Infow("sweeping stale nodes", "count", len(victims))
		r.retireNodes(victims)
	}
	return len(victims)
}

// retireNodes marks the nodes' subscriptions dead and removes elements
// that have no live subscriber left. Publication deactivation happens
// after the element lock is released.
func (r *Registry) retireNodes(nodeIDs []string) {
	type deactivation struct {
		ownerID  string
		dataItem string
		table    bool
	}
	var pending []deactivation

	r.elemMu.Lock()
	for elementID, subs := range r.elements {
		touched := false
		for _, nodeID := range nodeIDs {
			if ent, ok := subs[nodeID]; ok {
				ent.Live = false
				touched = true
			}
		}
		if !touched {
			continue
		}
		anyLive := false
		for _, ent := range subs {
			if ent.Live {
				anyLive = true
				break
			}
		}
		if anyLive {
			continue
		}
		// No live subscriber left: drop the element entirely and release
		// its owner-liveness entry.
		for _, ent := range subs {
			pending = append(pending, deactivation{
				ownerID:  ent.OwnerID,
				dataItem: ent.DataItem,
				table:    ent.ControlType == viewplane.ControlTable,
			})
			if r.owners[ent.OwnerID] > 0 {
				r.owners[ent.OwnerID]--
				if r.owners[ent.OwnerID] == 0 {
					delete(r.owners, ent.OwnerID)
				}
			}
			break
		}
		delete(r.elements, elementID)
	}
	r.elemMu.Unlock()

	for _, d := range pending {
		if d.table {
			continue
		}
		if thing := r.things.GetThingByOwner(d.ownerID); thing != nil {
			r.pub.SetPublication(thing, d.dataItem, false)
		}
	}
}

// subscriber identifies one interested (element, node) pair.
type subscriber struct {
	ElementID string
	NodeID    string
}

// SubscribersFor lists the live (element, node) pairs interested in a
// property of an owner. Used by the change router to push updates only to
// interested nodes.
func (r *Registry) SubscribersFor(ownerID, dataItem string) []subscriber {
	r.elemMu.RLock()
	defer r.elemMu.RUnlock()
	var out []subscriber
	for elementID, subs := range r.elements {
		for nodeID, ent := range subs {
			if ent.Live && ent.OwnerID == ownerID && ent.DataItem == dataItem {
				out = append(out, subscriber{ElementID: elementID, NodeID: nodeID})
			}
		}
	}
	return out
}

// subscriptionCount returns the number of entries recorded for an element.
func (r *Registry) subscriptionCount(elementID string) int {
	r.elemMu.RLock()
	defer r.elemMu.RUnlock()
	return len(r.elements[elementID])
}
