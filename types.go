package viewplane

import (
	"github.com/google/uuid"
)

// Platform identifies the rendering platform of a requesting client.
// PlatformAny is the wildcard layer in per-platform property overrides:
// its bag is merged first and platform-specific keys win on conflict.
type Platform string

const (
	PlatformAny     Platform = "any"
	PlatformDesktop Platform = "desktop"
	PlatformMobile  Platform = "mobile"
	PlatformTablet  Platform = "tablet"
	PlatformWall    Platform = "wall"
)

// PropertyBag holds style and behavior options for a field or form.
// Only keys that are present participate in merges and visibility checks;
// an absent key is never the same as a key set to its zero value.
type PropertyBag map[string]any

// Well-known bag keys consumed by the visibility filter.
const (
	BagHide                   = "Hide"
	BagShow                   = "Show"
	BagRequireFirstNode       = "RequireFirstNode"
	BagAllowAllNodes          = "AllowAllNodes"
	BagHideAddButton          = "HideAddButton"
	BagShowAddButton          = "ShowAddButton"
	BagRequireFirstNodeForAdd = "RequireFirstNodeForAdd"
	BagAllowAddOnAllNodes     = "AllowAddOnAllNodes"
	BagTileWidth              = "TileWidth"
	BagContent                = "Content"
)

// Clone returns a deep-enough copy of the bag. Values are copied by
// assignment; bags hold scalars and strings only.
func (b PropertyBag) Clone() PropertyBag {
	if b == nil {
		return nil
	}
	out := make(PropertyBag, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Bool reads a boolean key. The second return reports presence, which the
// visibility filter depends on (present-and-false is distinct from absent).
func (b PropertyBag) Bool(key string) (value, present bool) {
	if b == nil {
		return false, false
	}
	raw, ok := b[key]
	if !ok {
		return false, false
	}
	v, ok := raw.(bool)
	if !ok {
		return false, false
	}
	return v, true
}

// IsTrue reports whether the key is present and set to true.
func (b PropertyBag) IsTrue(key string) bool {
	v, ok := b.Bool(key)
	return ok && v
}

// ControlType identifies the renderable control kind of a field.
type ControlType string

const (
	ControlSingleEnded ControlType = "SingleEnded"
	ControlSingleCheck ControlType = "SingleCheck"
	ControlComboBox    ControlType = "ComboBox"
	ControlSlider      ControlType = "Slider"
	ControlGauge       ControlType = "Gauge"
	ControlTileButton  ControlType = "TileButton"
	ControlFacePlate   ControlType = "FacePlate"
	// ControlTable rows subscribe through a coarser table-level mechanism,
	// so individual columns never activate per-property publication.
	ControlTable       ControlType = "Table"
	ControlUserControl ControlType = "UserControl"
)

// FieldDefinition is the authored description of one renderable unit on a
// form. The canonical definition is immutable after authoring; every
// materialization works on a per-client clone.
type FieldDefinition struct {
	ID       uuid.UUID   `json:"id"`
	FormID   uuid.UUID   `json:"formId"`
	OwnerID  string      `json:"ownerId"` // owning thing
	FldOrder int         `json:"fldOrder"`
	Type     ControlType `json:"type"`

	AccessMask       int  `json:"accessMask"`
	ExcludeOnMobile  bool `json:"excludeOnMobile,omitempty"`
	RequireFirstNode bool `json:"requireFirstNode,omitempty"`

	// DataItem names the backing property on the owning thing. Empty means
	// the field is not data-bound and never registers a subscription.
	DataItem string `json:"dataItem,omitempty"`

	// PlatformBags maps platform to its authored option overrides.
	PlatformBags map[Platform]PropertyBag `json:"platformBags,omitempty"`

	// PropertyBag is the merged, client-facing bag. It is empty on the
	// canonical definition and populated during materialization.
	PropertyBag PropertyBag `json:"propertyBag,omitempty"`

	// TargetElement is the client-side element this field binds to; set
	// when the field is attached to a dashboard panel.
	TargetElement string `json:"targetElement,omitempty"`
}

// Clone deep-copies the field so materialization never mutates the
// authored definition.
func (f *FieldDefinition) Clone() *FieldDefinition {
	out := *f
	out.PropertyBag = f.PropertyBag.Clone()
	if f.PlatformBags != nil {
		out.PlatformBags = make(map[Platform]PropertyBag, len(f.PlatformBags))
		for p, bag := range f.PlatformBags {
			out.PlatformBags[p] = bag.Clone()
		}
	}
	return &out
}

// FormDefinition is a named, access-controlled ordered collection of
// fields plus form-level metadata. One definition serves many clients.
type FormDefinition struct {
	ID          uuid.UUID `json:"id"`
	ModelID     string    `json:"modelId"`
	Title       string    `json:"title"`
	TemplateRef string    `json:"templateRef,omitempty"`
	TileWidth   int       `json:"tileWidth"`
	AccessMask  int       `json:"accessMask"`
	AllowAdd    bool      `json:"allowAdd"`

	// StartGroup can be set as a side effect of model-level layout
	// overrides and names the group opened first on the client.
	StartGroup string `json:"startGroup,omitempty"`

	// PlatformBags carries form-level option overrides, consulted for the
	// add-button permission check.
	PlatformBags map[Platform]PropertyBag `json:"platformBags,omitempty"`

	// Fields in ascending FldOrder. Catalogs keep this slice sorted.
	Fields []*FieldDefinition `json:"fields"`
}

// Clone copies the form shell without cloning fields; field clones are
// produced one by one while the permitted list is computed.
func (f *FormDefinition) Clone() *FormDefinition {
	out := *f
	if f.PlatformBags != nil {
		out.PlatformBags = make(map[Platform]PropertyBag, len(f.PlatformBags))
		for p, bag := range f.PlatformBags {
			out.PlatformBags[p] = bag.Clone()
		}
	}
	out.Fields = nil
	return &out
}

// MaterializedForm is the client-ready result of materializing a form for
// one client context.
type MaterializedForm struct {
	ID            uuid.UUID          `json:"id"`
	Title         string             `json:"title"`
	TileWidth     int                `json:"tileWidth"`
	AllowAdd      bool               `json:"allowAdd"`
	StartGroup    string             `json:"startGroup,omitempty"`
	TargetElement string             `json:"targetElement,omitempty"`
	Fields        []*FieldDefinition `json:"fields"`
}

// FieldOrderOverride is one persisted per-field layout override entry,
// matched against the field's original FldOrder.
type FieldOrderOverride struct {
	FldOrder int `json:"fldOrder"`
	// NewOrder relocates the field when positive and deletes it when
	// negative. Zero leaves the original order in place.
	NewOrder int `json:"newOrder,omitempty"`
	// PropertyBag replaces the field's merged bag wholesale when present.
	PropertyBag PropertyBag `json:"propertyBag,omitempty"`
}

// ScreenOptions is a persisted per-(model, user) layout override record.
// Model-level records form the base layer; the user-level record is
// applied on top and may also override the identifying ID.
type ScreenOptions struct {
	ID         string               `json:"id"`
	TileWidth  int                  `json:"tileWidth,omitempty"`
	StartGroup string               `json:"startGroup,omitempty"`
	Fields     []FieldOrderOverride `json:"fields,omitempty"`
}

// Panel flag bits controlling where a dashboard tile is shown.
const (
	PanelFlagCloudTrust    = 2   // require a trusted user when served from the cloud
	PanelFlagNoMobile      = 4   // excluded on mobile clients
	PanelFlagFirstNodeOnly = 128 // require first node (or a trusted user)
)

// PanelInfo describes one dashboard tile.
type PanelInfo struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	FldOrder int    `json:"fldOrder"`
	// ControlClass references the panel content, either a pseudo-panel
	// kind or an embedded form in the form "<Kind>:<FormGUID>".
	ControlClass string `json:"controlClass"`
	Flags        int    `json:"flags"`
	HTML         string `json:"html,omitempty"`
	AccessMask   int    `json:"accessMask"`
}

// DashboardDefinition is an access-controlled ordered panel collection.
type DashboardDefinition struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	AccessMask int       `json:"accessMask"`
	PanelIDs   []string  `json:"panelIds"`
}

// Screen is the assembled, client-ready dashboard payload.
type Screen struct {
	ID     uuid.UUID           `json:"id"`
	Title  string              `json:"title"`
	Panels []*PanelInfo        `json:"panels"`
	Forms  []*MaterializedForm `json:"forms,omitempty"`
}

// ClientContext is the ephemeral per-request descriptor supplied by the
// caller for every materialization call. It is never persisted.
type ClientContext struct {
	UserID   string   `json:"userId"`
	NodeID   string   `json:"nodeId"`
	Platform Platform `json:"platform"`
	// Locale is carried for host collaborators that localize titles and
	// content snippets on their side of the catalog and storage
	// contracts; the engine itself does not consult it.
	Locale        string `json:"locale,omitempty"`
	IsFirstNode   bool   `json:"isFirstNode"`
	IsUserTrusted bool   `json:"isUserTrusted"`
	IsMobile      bool   `json:"isMobile"`
	IsCloud       bool   `json:"isCloud"`
}

// NotificationSeverity grades client toast messages.
type NotificationSeverity string

const (
	SeverityInfo    NotificationSeverity = "info"
	SeverityWarning NotificationSeverity = "warning"
	SeverityError   NotificationSeverity = "error"
)

// Notification is a transient toast-style message pushed back to the
// originating client, used for action failures that have no screen to
// render into.
type Notification struct {
	NodeID   string               `json:"nodeId"`
	Title    string               `json:"title"`
	Message  string               `json:"message"`
	Severity NotificationSeverity `json:"severity"`
}
