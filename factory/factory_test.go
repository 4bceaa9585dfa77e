package factory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/viewplane"
	"github.com/lychee-technology/viewplane/internal"
)

// ---------------------------------------------------------------------------
// Minimal collaborator stubs
// ---------------------------------------------------------------------------

type stubThings struct{}

func (stubThings) GetThingByOwner(string) *viewplane.Thing     { return nil }
func (stubThings) LiveThings(string) []*viewplane.Thing        { return nil }
func (stubThings) RegisterPlaceholder(string) *viewplane.Thing { return nil }

type stubAccess struct{}

func (stubAccess) HasUserAccess(string, int) bool { return true }

type stubSender struct{}

func (stubSender) Send(string, string, any) error { return nil }

func testCollaborators() Collaborators {
	return Collaborators{
		Catalog: internal.NewMemoryCatalog(),
		Things:  stubThings{},
		Access:  stubAccess{},
		Sender:  stubSender{},
	}
}

func TestNewViewEngineWithConfig(t *testing.T) {
	cfg := viewplane.DefaultConfig()
	cfg.Overrides.Directory = t.TempDir()

	engine, err := NewViewEngineWithConfig(cfg, testCollaborators(), nil)
	require.NoError(t, err)
	require.NotNil(t, engine)

	// The engine answers a basic request through the full wiring.
	form, err := engine.MaterializeForm(context.Background(), uuid.New(), viewplane.ClientContext{})
	assert.NoError(t, err)
	assert.Nil(t, form)
}

func TestNewViewEngineWithConfig_Validation(t *testing.T) {
	cfg := viewplane.DefaultConfig()
	cfg.Session.Timeout = 0
	_, err := NewViewEngineWithConfig(cfg, testCollaborators(), nil)
	require.Error(t, err)

	var ce *viewplane.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestNewViewEngineWithConfig_RequiredCollaborators(t *testing.T) {
	cfg := viewplane.DefaultConfig()
	cfg.Overrides.Directory = t.TempDir()

	tests := []struct {
		name   string
		mutate func(*Collaborators)
	}{
		{"missing catalog", func(c *Collaborators) { c.Catalog = nil }},
		{"missing things", func(c *Collaborators) { c.Things = nil }},
		{"missing access", func(c *Collaborators) { c.Access = nil }},
		{"missing sender", func(c *Collaborators) { c.Sender = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCollaborators()
			tt.mutate(&c)
			_, err := NewViewEngineWithConfig(cfg, c, nil)
			assert.Error(t, err)
		})
	}
}

func TestNewViewEngineWithConfig_PostgresNeedsPool(t *testing.T) {
	cfg := viewplane.DefaultConfig()
	cfg.Overrides.Source = "postgres"

	_, err := NewViewEngineWithConfig(cfg, testCollaborators(), nil)
	assert.Error(t, err)
}

// TestEngineEndToEnd exercises a full screen request through the factory
// wiring: catalog, file-backed overrides, visibility and subscriptions.
func TestEngineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfg := viewplane.DefaultConfig()
	cfg.Overrides.Directory = dir

	catalog := internal.NewMemoryCatalog()
	formID := uuid.New()
	screenID := uuid.New()

	catalog.RegisterForm(&viewplane.FormDefinition{
		ID:      formID,
		ModelID: "pump",
		Title:   "Pump Detail",
		Fields: []*viewplane.FieldDefinition{
			{ID: uuid.New(), FldOrder: 10},
			{ID: uuid.New(), FldOrder: 20},
		},
	})
	catalog.RegisterPanel(&viewplane.PanelInfo{ID: "p-1", FldOrder: 10, ControlClass: "form:" + formID.String()})
	catalog.RegisterDashboard(&viewplane.DashboardDefinition{
		ID:       screenID,
		Title:    "Overview",
		PanelIDs: []string{"p-1"},
	})

	// A persisted model-level override relocates the first field.
	raw, err := json.Marshal(viewplane.ScreenOptions{
		Fields: []viewplane.FieldOrderOverride{{FldOrder: 10, NewOrder: 30}},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pump.cdeFOR"), raw, 0o644))

	c := testCollaborators()
	c.Catalog = catalog
	engine, err := NewViewEngineWithConfig(cfg, c, nil)
	require.NoError(t, err)

	cc := viewplane.ClientContext{UserID: "alice", NodeID: "node-1", Platform: viewplane.PlatformDesktop}
	screen, err := engine.GenerateScreen(context.Background(), screenID, cc)
	require.NoError(t, err)
	require.NotNil(t, screen)

	assert.Equal(t, "Overview", screen.Title)
	require.Len(t, screen.Panels, 1)
	require.Len(t, screen.Forms, 1)

	form := screen.Forms[0]
	assert.Equal(t, "p-1", form.TargetElement)
	require.Len(t, form.Fields, 2)
	// The override pushed the first field behind the second.
	assert.Equal(t, 20, form.Fields[0].FldOrder)
	assert.Equal(t, 30, form.Fields[1].FldOrder)
}
