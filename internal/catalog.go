package internal

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lychee-technology/viewplane"
)

// MemoryCatalog is an in-memory ModelCatalog. Forms keep their field slice
// sorted by ascending FldOrder at registration time so materialization
// walks a pre-sorted structure instead of scanning.
type MemoryCatalog struct {
	mu         sync.RWMutex
	forms      map[uuid.UUID]*viewplane.FormDefinition
	fields     map[uuid.UUID]*viewplane.FieldDefinition
	dashboards map[uuid.UUID]*viewplane.DashboardDefinition
	panels     map[string]*viewplane.PanelInfo
}

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		forms:      make(map[uuid.UUID]*viewplane.FormDefinition),
		fields:     make(map[uuid.UUID]*viewplane.FieldDefinition),
		dashboards: make(map[uuid.UUID]*viewplane.DashboardDefinition),
		panels:     make(map[string]*viewplane.PanelInfo),
	}
}

// RegisterForm stores a form definition and indexes its fields. The field
// slice is sorted in place by FldOrder; after registration the definition
// is treated as immutable.
func (c *MemoryCatalog) RegisterForm(form *viewplane.FormDefinition) {
	sort.SliceStable(form.Fields, func(i, j int) bool {
		return form.Fields[i].FldOrder < form.Fields[j].FldOrder
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.forms[form.ID] = form
	for _, fld := range form.Fields {
		if fld.FormID == (uuid.UUID{}) {
			fld.FormID = form.ID
		}
		c.fields[fld.ID] = fld
	}
}

// RegisterDashboard stores a dashboard definition.
func (c *MemoryCatalog) RegisterDashboard(dash *viewplane.DashboardDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dashboards[dash.ID] = dash
}

// RegisterPanel stores a panel descriptor.
func (c *MemoryCatalog) RegisterPanel(panel *viewplane.PanelInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panels[panel.ID] = panel
}

// LookupForm resolves a form by ID, nil when unknown.
func (c *MemoryCatalog) LookupForm(id uuid.UUID) *viewplane.FormDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	form, ok := c.forms[id]
	if !ok {
		zap.S().Debugw("form not found in catalog", "formId", id)
		return nil
	}
	return form
}

// LookupField resolves a field by ID, nil when unknown.
func (c *MemoryCatalog) LookupField(id uuid.UUID) *viewplane.FieldDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fields[id]
}

// LookupDashboard resolves a dashboard by ID, nil when unknown.
func (c *MemoryCatalog) LookupDashboard(id uuid.UUID) *viewplane.DashboardDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dash, ok := c.dashboards[id]
	if !ok {
		zap.S().Debugw("dashboard not found in catalog", "screenId", id)
		return nil
	}
	return dash
}

// LookupPanel resolves a panel by ID, nil when unknown.
func (c *MemoryCatalog) LookupPanel(id string) *viewplane.PanelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.panels[id]
}

// ListForms returns all registered form IDs.
func (c *MemoryCatalog) ListForms() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return MapKeys(c.forms)
}
