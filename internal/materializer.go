package internal

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lychee-technology/viewplane"
)

// Materializer combines a form definition, persisted layout overrides and
// the visibility filter into a client-ready field list, registering a live
// subscription for every visible data-bound field.
type Materializer struct {
	catalog   viewplane.ModelCatalog
	access    viewplane.AccessChecker
	subs      *Registry
	overrides *OverrideLoader
	controls  *ControlRegistry
}

// NewMaterializer creates a form materializer.
func NewMaterializer(catalog viewplane.ModelCatalog, access viewplane.AccessChecker,
	subs *Registry, overrides *OverrideLoader, controls *ControlRegistry) *Materializer {
	return &Materializer{
		catalog:   catalog,
		access:    access,
		subs:      subs,
		overrides: overrides,
		controls:  controls,
	}
}

// Materialize resolves a form for one client. The canonical definition is
// never mutated; the client works on a per-request clone. Returns
// (nil, nil) when the form is unknown or the caller lacks access to it.
func (m *Materializer) Materialize(ctx context.Context, formID uuid.UUID, cc viewplane.ClientContext) (*viewplane.MaterializedForm, error) {
	form := m.catalog.LookupForm(formID)
	if form == nil {
		return nil, nil
	}
	if form.AccessMask != 0 && !m.access.HasUserAccess(cc.UserID, form.AccessMask) {
		zap.S().Debugw("form access denied", "formId", formID, "userId", cc.UserID)
		return nil, nil
	}

	clone := form.Clone()

	// Override loads hit storage and must complete before any
	// subscription registration takes map locks.
	opts := m.overrides.LoadOverrides(ctx, form.ModelID, cc, clone)

	out := &viewplane.MaterializedForm{
		ID:         clone.ID,
		Title:      clone.Title,
		TileWidth:  clone.TileWidth,
		StartGroup: clone.StartGroup,
		AllowAdd:   form.AllowAdd && CanAdd(form.PlatformBags, cc),
	}
	if opts != nil && opts.TileWidth > 0 {
		out.TileWidth = opts.TileWidth
	}
	if opts != nil && opts.StartGroup != "" {
		out.StartGroup = opts.StartGroup
	}

	out.Fields = m.permittedFields(ctx, form, cc, opts)
	return out, nil
}

// permittedFields walks the form's pre-sorted field slice and emits the
// fields the client may see, in ascending order of their possibly
// overridden FldOrder. A failure resolving one field is logged and the
// field skipped; a malformed field never aborts the whole screen.
func (m *Materializer) permittedFields(ctx context.Context, form *viewplane.FormDefinition,
	cc viewplane.ClientContext, opts *viewplane.ScreenOptions) []*viewplane.FieldDefinition {

	result := make([]*viewplane.FieldDefinition, 0, len(form.Fields))
	for _, fld := range form.Fields {
		if !HasFieldAccess(m.access, fld, cc) {
			continue
		}
		resolved, err := m.resolveField(ctx, fld, cc, opts)
		if err != nil {
			zap.S().Warnw("field resolution failed, skipping field",
				"formId", form.ID, "fieldId", fld.ID, "fldOrder", fld.FldOrder,
				"error", viewplane.NewFieldResolveError(fld.ID.String(), err))
			continue
		}
		if resolved != nil {
			result = append(result, resolved)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].FldOrder < result[j].FldOrder
	})
	return result
}

// resolveField clones one field, merges its platform bags, applies the
// visibility check and any layout override, and registers the live
// subscription. Returns (nil, nil) when the field is hidden or deleted by
// an override.
func (m *Materializer) resolveField(ctx context.Context, fld *viewplane.FieldDefinition,
	cc viewplane.ClientContext, opts *viewplane.ScreenOptions) (*viewplane.FieldDefinition, error) {

	clone := fld.Clone()
	clone.PropertyBag = mergePlatformBags(clone.PlatformBags, cc.Platform)

	if !IsVisible(clone.PlatformBags, cc) {
		return nil, nil
	}

	if over := FindFieldOverride(opts, fld.FldOrder); over != nil {
		if over.NewOrder < 0 {
			// Negative new-order sentinel marks the field deleted.
			return nil, nil
		}
		if over.NewOrder > 0 {
			clone.FldOrder = over.NewOrder
		}
		if over.PropertyBag != nil {
			clone.PropertyBag = over.PropertyBag.Clone()
		}
	}

	// Content resolution runs before the subscription is recorded so a
	// failed field never leaves a live subscription behind.
	if err := m.controls.ResolveFieldContent(ctx, clone); err != nil {
		return nil, err
	}

	m.subs.RegisterSubscription(cc, clone)
	return clone, nil
}

// mergePlatformBags builds the client-facing bag: the any-platform layer
// first, then the client's platform layer, platform-specific keys winning
// on conflict. Only present keys carry over.
func mergePlatformBags(bags map[viewplane.Platform]viewplane.PropertyBag, platform viewplane.Platform) viewplane.PropertyBag {
	merged := make(viewplane.PropertyBag)
	for k, v := range bags[viewplane.PlatformAny] {
		merged[k] = v
	}
	if platform != viewplane.PlatformAny {
		for k, v := range bags[platform] {
			merged[k] = v
		}
	}
	return merged
}
