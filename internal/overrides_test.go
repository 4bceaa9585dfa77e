package internal

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
)

func putOptions(t *testing.T, storage *mapStorage, key string, opts viewplane.ScreenOptions) {
	t.Helper()
	raw, err := json.Marshal(opts)
	require.NoError(t, err)
	storage.put(key, raw)
}

func TestLoadOverrides_NoLayers(t *testing.T) {
	loader := NewOverrideLoader(newMapStorage())
	form := &viewplane.FormDefinition{ID: uuid.New(), ModelID: "pump"}

	opts := loader.LoadOverrides(context.Background(), "pump", viewplane.ClientContext{UserID: "alice"}, form)
	assert.Nil(t, opts)
}

func TestLoadOverrides_ModelLayering(t *testing.T) {
	storage := newMapStorage()
	putOptions(t, storage, "pump.cdeFOR", viewplane.ScreenOptions{
		ID:         "pump",
		TileWidth:  4,
		StartGroup: "Overview",
		Fields:     []viewplane.FieldOrderOverride{{FldOrder: 10, NewOrder: 30}},
	})
	putOptions(t, storage, "valve.cdeFOR", viewplane.ScreenOptions{
		ID:     "valve",
		Fields: []viewplane.FieldOrderOverride{{FldOrder: 20, NewOrder: -1}},
	})

	loader := NewOverrideLoader(storage)
	form := &viewplane.FormDefinition{ID: uuid.New(), ModelID: "pump;valve"}

	opts := loader.LoadOverrides(context.Background(), "pump;valve", viewplane.ClientContext{}, form)
	require.NotNil(t, opts)

	// Later layers extend the field list; the zero tile width of the
	// second layer never clobbers the first.
	assert.Len(t, opts.Fields, 2)
	assert.Equal(t, 4, opts.TileWidth)
	assert.Equal(t, "Overview", opts.StartGroup)

	// The start group lands on the form itself as a side effect.
	assert.Equal(t, "Overview", form.StartGroup)
}

func TestLoadOverrides_UserLayerWins(t *testing.T) {
	formID := uuid.New()
	storage := newMapStorage()
	putOptions(t, storage, "pump.cdeFOR", viewplane.ScreenOptions{
		ID:        "pump",
		TileWidth: 4,
		Fields: []viewplane.FieldOrderOverride{
			{FldOrder: 10, NewOrder: 30},
			{FldOrder: 20, NewOrder: 40},
		},
	})
	putOptions(t, storage, "alice/"+formID.String()+".cdeFOR", viewplane.ScreenOptions{
		ID:        "alice-custom",
		TileWidth: 6,
		Fields: []viewplane.FieldOrderOverride{
			{FldOrder: 10, NewOrder: 50},  // replaces the base entry
			{FldOrder: 99, NewOrder: -1},  // extends the list
		},
	})

	loader := NewOverrideLoader(storage)
	form := &viewplane.FormDefinition{ID: formID, ModelID: "pump"}

	opts := loader.LoadOverrides(context.Background(), "pump", viewplane.ClientContext{UserID: "alice"}, form)
	require.NotNil(t, opts)

	assert.Equal(t, "alice-custom", opts.ID, "the user layer may replace the identifying ID")
	assert.Equal(t, 6, opts.TileWidth)
	require.Len(t, opts.Fields, 3)

	replaced := FindFieldOverride(opts, 10)
	require.NotNil(t, replaced)
	assert.Equal(t, 50, replaced.NewOrder)

	kept := FindFieldOverride(opts, 20)
	require.NotNil(t, kept)
	assert.Equal(t, 40, kept.NewOrder)

	added := FindFieldOverride(opts, 99)
	require.NotNil(t, added)
	assert.Equal(t, -1, added.NewOrder)
}

// TestLoadOverrides_ZeroNeverClobbers pins the merge rule that only
// explicitly-set values win: zero tile width and empty strings in the
// user layer leave the base values intact.
func TestLoadOverrides_ZeroNeverClobbers(t *testing.T) {
	formID := uuid.New()
	storage := newMapStorage()
	putOptions(t, storage, "pump.cdeFOR", viewplane.ScreenOptions{
		ID:         "pump",
		TileWidth:  4,
		StartGroup: "Overview",
	})
	putOptions(t, storage, "alice/"+formID.String()+".cdeFOR", viewplane.ScreenOptions{})

	loader := NewOverrideLoader(storage)
	form := &viewplane.FormDefinition{ID: formID, ModelID: "pump"}

	opts := loader.LoadOverrides(context.Background(), "pump", viewplane.ClientContext{UserID: "alice"}, form)
	require.NotNil(t, opts)
	assert.Equal(t, "pump", opts.ID)
	assert.Equal(t, 4, opts.TileWidth)
	assert.Equal(t, "Overview", opts.StartGroup)
}

func TestLoadOverrides_UserLayerOnly(t *testing.T) {
	formID := uuid.New()
	storage := newMapStorage()
	putOptions(t, storage, "alice/"+formID.String()+".cdeFOR", viewplane.ScreenOptions{TileWidth: 8})

	loader := NewOverrideLoader(storage)
	form := &viewplane.FormDefinition{ID: formID, ModelID: "pump"}

	opts := loader.LoadOverrides(context.Background(), "pump", viewplane.ClientContext{UserID: "alice"}, form)
	require.NotNil(t, opts)
	assert.Equal(t, 8, opts.TileWidth)
}

// TestLoadOverrides_CorruptLayerDegrades verifies that an unparsable
// record behaves exactly like a missing one.
func TestLoadOverrides_CorruptLayerDegrades(t *testing.T) {
	storage := newMapStorage()
	storage.put("pump.cdeFOR", []byte("{not json"))
	putOptions(t, storage, "valve.cdeFOR", viewplane.ScreenOptions{TileWidth: 3})

	loader := NewOverrideLoader(storage)
	form := &viewplane.FormDefinition{ID: uuid.New(), ModelID: "pump;valve"}

	opts := loader.LoadOverrides(context.Background(), "pump;valve", viewplane.ClientContext{}, form)
	require.NotNil(t, opts)
	assert.Equal(t, 3, opts.TileWidth)
}

func TestFindFieldOverride(t *testing.T) {
	opts := &viewplane.ScreenOptions{
		Fields: []viewplane.FieldOrderOverride{
			{FldOrder: 10, NewOrder: 20},
			{FldOrder: 30},
		},
	}

	assert.Nil(t, FindFieldOverride(nil, 10))
	assert.Nil(t, FindFieldOverride(opts, 99))

	over := FindFieldOverride(opts, 10)
	require.NotNil(t, over)
	assert.Equal(t, 20, over.NewOrder)
}

func TestFileOverrideStorage(t *testing.T) {
	dir := t.TempDir()
	storage := NewFileOverrideStorage(dir)
	ctx := context.Background()

	// Missing records are nil, nil.
	raw, err := storage.ReadRecord(ctx, "missing.cdeFOR")
	assert.NoError(t, err)
	assert.Nil(t, raw)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pump.cdeFOR"), []byte(`{"id":"pump"}`), 0o644))
	raw, err = storage.ReadRecord(ctx, "pump.cdeFOR")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"pump"}`, string(raw))

	// User records live one directory down.
	require.NoError(t, storage.WriteRecord(ctx, "alice/form.cdeFOR", []byte(`{"tileWidth":6}`)))
	raw, err = storage.ReadRecord(ctx, "alice/form.cdeFOR")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tileWidth":6}`, string(raw))
}

func TestFileOverrideStorage_RejectsEscapingKeys(t *testing.T) {
	storage := NewFileOverrideStorage(t.TempDir())

	_, err := storage.ReadRecord(context.Background(), "../outside.cdeFOR")
	require.Error(t, err)
	assert.True(t, viewplane.IsValidationError(err))
}
