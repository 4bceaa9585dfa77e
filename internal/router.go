package internal

import (
	"go.uber.org/zap"

	"github.com/lychee-technology/viewplane"
)

// propertyUpdate is the payload pushed to a client node when a subscribed
// property changes.
type propertyUpdate struct {
	Element  string `json:"element"`
	OwnerID  string `json:"ownerId"`
	DataItem string `json:"dataItem"`
	Value    any    `json:"value"`
}

// ChangeRouter fans one property-change event out to exactly the client
// nodes holding a live subscription on the backing property. Nodes without
// an interest never see the event.
type ChangeRouter struct {
	subs   *Registry
	sender viewplane.Sender
}

// NewChangeRouter creates a change router.
func NewChangeRouter(subs *Registry, sender viewplane.Sender) *ChangeRouter {
	return &ChangeRouter{subs: subs, sender: sender}
}

// PropertyChanged routes a change on (owner, property) to interested
// nodes. Send failures are logged per node and do not stop delivery to
// the remaining subscribers.
func (r *ChangeRouter) PropertyChanged(ownerID, property string, value any) {
	interested := r.subs.SubscribersFor(ownerID, property)
	if len(interested) == 0 {
		return
	}
	for _, sub := range interested {
		update := propertyUpdate{
			Element:  sub.ElementID,
			OwnerID:  ownerID,
			DataItem: property,
			Value:    value,
		}
		if err := r.sender.Send(sub.NodeID, "property/"+sub.ElementID, update); err != nil {
			zap.S().Warnw("property update delivery failed",
				"nodeId", sub.NodeID, "element", sub.ElementID, "error", err)
		}
	}
}
