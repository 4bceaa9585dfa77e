package viewplane

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ModelCatalog is the read-mostly form/dashboard/panel catalog consumed by
// the engine. Implementations keep the field slice of every form sorted by
// ascending FldOrder so materialization never scans.
type ModelCatalog interface {
	LookupForm(id uuid.UUID) *FormDefinition
	LookupField(id uuid.UUID) *FieldDefinition
	LookupDashboard(id uuid.UUID) *DashboardDefinition
	LookupPanel(id string) *PanelInfo
}

// OverrideStorage reads persisted layout-override records by key. Keys are
// relative paths like "<modelId>.cdeFOR" or "<userId>/<formId>.cdeFOR".
// A missing record returns (nil, nil).
type OverrideStorage interface {
	ReadRecord(ctx context.Context, key string) ([]byte, error)
}

// ViewEngine provides per-client view materialization and live
// subscription tracking.
type ViewEngine interface {
	// MaterializeForm resolves a form for one client. Returns (nil, nil)
	// when the form is unknown or the caller lacks access.
	MaterializeForm(ctx context.Context, formID uuid.UUID, cc ClientContext) (*MaterializedForm, error)

	// GenerateScreen assembles a dashboard for one client. Returns
	// (nil, nil) when the dashboard is unknown or access is denied.
	GenerateScreen(ctx context.Context, screenID uuid.UUID, cc ClientContext) (*Screen, error)

	// GenerateLiveScreen assembles a dynamically user-composed screen from
	// live-tagged things. Returns (nil, nil) when the target thing is
	// missing or access is denied.
	GenerateLiveScreen(ctx context.Context, screenID uuid.UUID, cc ClientContext) (*Screen, error)

	// AssembleDynamicScreens emits one dashboard panel per distinct live
	// form plus one per uncovered live-screen thing.
	AssembleDynamicScreens(ctx context.Context, cc ClientContext) []*PanelInfo

	// RegisterNode upserts a node liveness record and reports whether the
	// node was already known.
	RegisterNode(nodeID, elementID, ownerID, dataItem string, hasLiveSub *bool) bool

	// UpdateHeartbeat refreshes a known node's last-seen time.
	UpdateHeartbeat(nodeID string)

	// SweepStale removes nodes whose heartbeat age exceeds twice the
	// session timeout and cascades element and owner cleanup. Returns the
	// number of removed nodes, or -1 when another sweep is running.
	SweepStale(now time.Time) int

	// UnsubscribeNode drops a disconnecting node's liveness record and
	// subscriptions without waiting for the sweeper.
	UnsubscribeNode(nodeID string)

	// PropertyChanged routes a property-change event to every client node
	// holding a live subscription on the backing property.
	PropertyChanged(ownerID, property string, value any)

	// NotifyClient pushes a transient toast message to one client node.
	NotifyClient(n Notification) error
}
