package internal

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lychee-technology/viewplane"
)

// ControlHandler maps one SmartControlType identifier onto a concrete
// field rendering type. Handlers are registered explicitly at startup;
// there is no runtime scanning of loaded code.
type ControlHandler struct {
	FieldType viewplane.ControlType
	// IsButton marks controls that get the bidirectional IsDown
	// property-change hookup on live screens.
	IsButton bool
}

// cmpMarker is the inline component placeholder substituted during HTML
// template expansion.
var cmpMarker = regexp.MustCompile(`<%=CMP:([0-9a-fA-F-]{36})%>`)

// ControlRegistry resolves runtime control-type identifiers to field
// rendering types and serves eager HTML resolution for face-plate and
// button fields.
type ControlRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ControlHandler
	content  viewplane.OverrideStorage // snippet source for inline HTML by GUID
}

// NewControlRegistry creates a registry pre-populated with the built-in
// control kinds. Plugins register additional kinds before serving starts.
func NewControlRegistry(content viewplane.OverrideStorage) *ControlRegistry {
	r := &ControlRegistry{
		handlers: make(map[string]ControlHandler),
		content:  content,
	}
	r.Register("text", ControlHandler{FieldType: viewplane.ControlSingleEnded})
	r.Register("check", ControlHandler{FieldType: viewplane.ControlSingleCheck})
	r.Register("combo", ControlHandler{FieldType: viewplane.ControlComboBox})
	r.Register("slider", ControlHandler{FieldType: viewplane.ControlSlider})
	r.Register("gauge", ControlHandler{FieldType: viewplane.ControlGauge})
	r.Register("button", ControlHandler{FieldType: viewplane.ControlTileButton, IsButton: true})
	r.Register("faceplate", ControlHandler{FieldType: viewplane.ControlFacePlate})
	return r
}

// Register adds or replaces the handler for a control-type identifier.
func (r *ControlRegistry) Register(name string, h ControlHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strings.ToLower(name)] = h
}

// Resolve returns the handler for an identifier. Unknown identifiers fall
// back to the single-ended text control so a misconfigured thing still
// renders.
func (r *ControlRegistry) Resolve(name string) ControlHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[strings.ToLower(name)]; ok {
		return h
	}
	zap.S().Debugw("unknown control type, falling back to text", "controlType", name)
	return ControlHandler{FieldType: viewplane.ControlSingleEnded}
}

// ExpandTemplate substitutes every component placeholder in an HTML
// template with the snippet persisted under "<guid>.html". A marker whose
// snippet cannot be loaded is left in place.
func (r *ControlRegistry) ExpandTemplate(ctx context.Context, html string) string {
	if r.content == nil || !strings.Contains(html, "<%=CMP:") {
		return html
	}
	return cmpMarker.ReplaceAllStringFunc(html, func(marker string) string {
		guid := cmpMarker.FindStringSubmatch(marker)[1]
		raw, err := r.content.ReadRecord(ctx, guid+".html")
		if err != nil || raw == nil {
			zap.S().Warnw("component snippet not resolved", "guid", guid, "error", err)
			return marker
		}
		return string(raw)
	})
}

// ResolveFieldContent eagerly resolves the inline or URL-based HTML
// snippet of a face-plate or button field into its merged bag. Other
// field types resolve content lazily on the client.
func (r *ControlRegistry) ResolveFieldContent(ctx context.Context, fld *viewplane.FieldDefinition) error {
	if fld.Type != viewplane.ControlFacePlate && fld.Type != viewplane.ControlTileButton {
		return nil
	}
	raw, ok := fld.PropertyBag[viewplane.BagContent]
	if !ok {
		return nil
	}
	ref, ok := raw.(string)
	if !ok || ref == "" {
		return nil
	}

	if strings.HasPrefix(ref, "<") {
		// Inline markup, expand embedded component markers only.
		fld.PropertyBag[viewplane.BagContent] = r.ExpandTemplate(ctx, ref)
		return nil
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		// URL content is fetched by the client; pass through untouched.
		return nil
	}
	if r.content == nil {
		return nil
	}
	snippet, err := r.content.ReadRecord(ctx, ref)
	if err != nil {
		return viewplane.NewFieldResolveError(fld.ID.String(), err)
	}
	if snippet != nil {
		fld.PropertyBag[viewplane.BagContent] = r.ExpandTemplate(ctx, string(snippet))
	}
	return nil
}
