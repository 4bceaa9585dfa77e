package internal

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lychee-technology/viewplane"
)

// liveFieldIDProp stores the field GUID assigned to a thing the first time
// it appears on a live screen, so re-renders keep stable element IDs.
const liveFieldIDProp = "_fieldId"

// pseudoPanelKinds are panel control classes that never reference an
// embedded form and are skipped during form resolution.
var pseudoPanelKinds = map[string]struct{}{
	"navigator": {},
	"info":      {},
	"updater":   {},
	"action":    {},
}

// Assembler resolves a dashboard's panel list into permitted, localized
// panel and embedded-form data, and builds dynamically composed live
// screens from runtime-tagged things.
type Assembler struct {
	catalog viewplane.ModelCatalog
	access  viewplane.AccessChecker
	mat     *Materializer
	subs    *Registry
	things  viewplane.ThingRegistry
	pub     viewplane.Publisher
	ctrl    *ControlRegistry

	// orderMu serializes live-screen position allocation across
	// concurrent renders.
	orderMu sync.Mutex
}

// NewAssembler creates a screen assembler.
func NewAssembler(catalog viewplane.ModelCatalog, access viewplane.AccessChecker, mat *Materializer,
	subs *Registry, things viewplane.ThingRegistry, pub viewplane.Publisher, ctrl *ControlRegistry) *Assembler {
	return &Assembler{
		catalog: catalog,
		access:  access,
		mat:     mat,
		subs:    subs,
		things:  things,
		pub:     pub,
		ctrl:    ctrl,
	}
}

// GenerateScreen assembles a dashboard for one client. A missing
// dashboard or a failed access check on either the screen or the
// dashboard returns (nil, nil): a denied screen simply does not render and
// never leaks which panels exist.
func (a *Assembler) GenerateScreen(ctx context.Context, screenID uuid.UUID, cc viewplane.ClientContext) (*viewplane.Screen, error) {
	dash := a.catalog.LookupDashboard(screenID)
	if dash == nil {
		return nil, nil
	}
	if dash.AccessMask != 0 && !a.access.HasUserAccess(cc.UserID, dash.AccessMask) {
		zap.S().Debugw("dashboard access denied", "screenId", screenID, "userId", cc.UserID)
		return nil, nil
	}
	if screenPanel := a.catalog.LookupPanel(screenID.String()); screenPanel != nil {
		if screenPanel.AccessMask != 0 && !a.access.HasUserAccess(cc.UserID, screenPanel.AccessMask) {
			zap.S().Debugw("screen access denied", "screenId", screenID, "userId", cc.UserID)
			return nil, nil
		}
	}

	var panels []*viewplane.PanelInfo
	for _, panelID := range dash.PanelIDs {
		panel := a.catalog.LookupPanel(panelID)
		if panel == nil {
			zap.S().Warnw("dashboard references unknown panel", "screenId", screenID, "panelId", panelID)
			continue
		}
		if !PanelVisible(panel.Flags, cc) {
			continue
		}
		p := *panel
		if p.HTML != "" {
			p.HTML = a.ctrl.ExpandTemplate(ctx, p.HTML)
		}
		panels = append(panels, &p)
	}

	sort.SliceStable(panels, func(i, j int) bool {
		if panels[i].Category != panels[j].Category {
			return panels[i].Category < panels[j].Category
		}
		return panels[i].FldOrder < panels[j].FldOrder
	})

	screen := &viewplane.Screen{
		ID:     screenID,
		Title:  dash.Title,
		Panels: panels,
	}

	// Each distinct embedded form materializes once per screen, even when
	// several panels reference it.
	seenForms := NewSet[uuid.UUID]()
	for _, panel := range panels {
		formID, ok := embeddedFormID(panel.ControlClass)
		if !ok {
			continue
		}
		if !seenForms.Add(formID) {
			continue
		}
		form, err := a.mat.Materialize(ctx, formID, cc)
		if err != nil {
			zap.S().Warnw("embedded form resolution failed, skipping panel form",
				"screenId", screenID, "panelId", panel.ID, "formId", formID, "error", err)
			continue
		}
		if form == nil {
			continue
		}
		form.TargetElement = panel.ID
		screen.Forms = append(screen.Forms, form)
	}

	return screen, nil
}

// embeddedFormID parses a panel control-class reference of the shape
// "<Kind>:<FormGUID>". Pseudo-panel kinds and unparsable references
// return false.
func embeddedFormID(controlClass string) (uuid.UUID, bool) {
	kind, ref, found := strings.Cut(controlClass, ":")
	if !found {
		return uuid.UUID{}, false
	}
	if _, pseudo := pseudoPanelKinds[strings.ToLower(kind)]; pseudo {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// GenerateLiveScreen assembles a dynamically user-composed screen from the
// live-tagged things of the requesting node that match the screen's form
// name. A missing target thing or a failed access check returns
// (nil, nil) rather than a placeholder error form; clients re-request once
// the target appears.
func (a *Assembler) GenerateLiveScreen(ctx context.Context, screenID uuid.UUID, cc viewplane.ClientContext) (*viewplane.Screen, error) {
	target := a.things.GetThingByOwner(screenID.String())
	if target == nil {
		return nil, nil
	}
	if target.AccessMask != 0 && !a.access.HasUserAccess(cc.UserID, target.AccessMask) {
		zap.S().Debugw("live screen access denied", "screenId", screenID, "userId", cc.UserID)
		return nil, nil
	}

	var tagged []*viewplane.Thing
	for _, thing := range a.things.LiveThings(cc.NodeID) {
		if thing.FormName != target.FormName {
			continue
		}
		tagged = append(tagged, thing)
	}

	// Keep previously assigned positions; step new things by 10 so users
	// can slot fields between existing ones later. Allocation is
	// serialized so concurrent renders agree on one position per thing.
	a.orderMu.Lock()
	maxOrder := 0
	for _, thing := range tagged {
		if p := thing.Position(); p > maxOrder {
			maxOrder = p
		}
	}
	for _, thing := range tagged {
		if thing.Position() == 0 {
			maxOrder += 10
			thing.EnsurePosition(maxOrder)
		}
	}
	a.orderMu.Unlock()

	form := &viewplane.MaterializedForm{
		ID:    screenID,
		Title: target.FormName,
	}

	for _, thing := range tagged {
		handler := a.ctrl.Resolve(thing.ControlType)
		fld := &viewplane.FieldDefinition{
			ID:            liveFieldID(thing),
			FormID:        screenID,
			OwnerID:       thing.ID,
			FldOrder:      thing.Position(),
			Type:          handler.FieldType,
			DataItem:      "Value",
			TargetElement: thing.ID,
			PropertyBag:   viewplane.PropertyBag{"Title": thing.ID},
		}

		a.subs.RegisterSubscription(cc, fld)
		if handler.IsButton {
			// Buttons push presses back to the engine, so IsDown publishes
			// in both directions.
			a.pub.SetPublication(thing, "IsDown", true)
		}
		form.Fields = append(form.Fields, fld)
	}

	sort.SliceStable(form.Fields, func(i, j int) bool {
		return form.Fields[i].FldOrder < form.Fields[j].FldOrder
	})

	return &viewplane.Screen{
		ID:    screenID,
		Title: target.FormName,
		Forms: []*viewplane.MaterializedForm{form},
	}, nil
}

// liveFieldID returns the stable field GUID of a live thing, assigning
// and persisting one on first use. The read-or-assign happens under the
// thing's lock so concurrent renders resolve to the same GUID.
func liveFieldID(thing *viewplane.Thing) uuid.UUID {
	raw := thing.SetPropertyIfNil(liveFieldIDProp, uuid.NewString())
	if s, ok := raw.(string); ok {
		if id, err := uuid.Parse(s); err == nil {
			return id
		}
	}
	// A foreign value occupied the slot; replace it.
	id := uuid.New()
	thing.SetProperty(liveFieldIDProp, id.String())
	return id
}

// AssembleDynamicScreens groups the node's live-tagged things by logical
// form name and emits one dashboard panel per distinct live form, creating
// a backing placeholder thing for each form name the first time it is
// seen, plus one panel per explicitly-defined live-screen thing not
// already covered by a form group.
func (a *Assembler) AssembleDynamicScreens(ctx context.Context, cc viewplane.ClientContext) []*viewplane.PanelInfo {
	live := a.things.LiveThings(cc.NodeID)

	formNames := NewSet[string]()
	var ordered []string
	var liveScreens []*viewplane.Thing
	for _, thing := range live {
		if strings.EqualFold(thing.ControlType, "livescreen") {
			liveScreens = append(liveScreens, thing)
			continue
		}
		if thing.FormName == "" {
			continue
		}
		if formNames.Add(thing.FormName) {
			ordered = append(ordered, thing.FormName)
		}
	}
	sort.Strings(ordered)

	var panels []*viewplane.PanelInfo
	for i, name := range ordered {
		placeholder := a.things.RegisterPlaceholder(name)
		if placeholder == nil {
			zap.S().Warnw("live form placeholder not created", "formName", name)
			continue
		}
		panels = append(panels, &viewplane.PanelInfo{
			ID:           placeholder.ID,
			Category:     "Live",
			FldOrder:     (i + 1) * 10,
			ControlClass: "liveform:" + placeholder.ID,
		})
	}
	for _, thing := range liveScreens {
		if thing.FormName != "" && formNames.Contains(thing.FormName) {
			continue
		}
		panels = append(panels, &viewplane.PanelInfo{
			ID:           thing.ID,
			Category:     "Live",
			FldOrder:     (len(panels) + 1) * 10,
			ControlClass: "liveform:" + thing.ID,
		})
	}
	return panels
}
