package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/viewplane"
)

func TestMemoryThings(t *testing.T) {
	things := newMemoryThings()

	gauge := &viewplane.Thing{ID: "t-1", NodeID: "node-1", FormName: "Boiler"}
	things.Put(gauge)
	things.Put(&viewplane.Thing{ID: "t-2", NodeID: "node-1"})          // no form name, never live
	things.Put(&viewplane.Thing{ID: "t-3", NodeID: "node-2", FormName: "Boiler"})

	assert.Same(t, gauge, things.GetThingByOwner("t-1"))
	assert.Nil(t, things.GetThingByOwner("nope"))

	live := things.LiveThings("node-1")
	require.Len(t, live, 1)
	assert.Equal(t, "t-1", live[0].ID)

	// Placeholders are created once per form name and resolvable as owners.
	ph := things.RegisterPlaceholder("Boiler")
	require.NotNil(t, ph)
	assert.Same(t, ph, things.RegisterPlaceholder("Boiler"))
	assert.Same(t, ph, things.GetThingByOwner(ph.ID))

	things.SetPublication(gauge, "Speed", true)
	assert.True(t, gauge.GetProperty("Speed").Publish)
	things.SetPublication(gauge, "Speed", false)
	assert.False(t, gauge.GetProperty("Speed").Publish)
}

func TestStaticAccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.json")
	raw, err := json.Marshal(map[string]int{"alice": 0b0011})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	access := newStaticAccess(path)
	assert.True(t, access.HasUserAccess("alice", 0b0001))
	assert.False(t, access.HasUserAccess("alice", 0b0100))
	assert.False(t, access.HasUserAccess("bob", 0b0001))

	// An empty table grants everything.
	open := newStaticAccess("")
	assert.True(t, open.HasUserAccess("anyone", 0b1000))

	// A missing or corrupt file degrades to grant-all.
	missing := newStaticAccess(filepath.Join(dir, "nope.json"))
	assert.True(t, missing.HasUserAccess("anyone", 1))

	corruptPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(corruptPath, []byte("{oops"), 0o644))
	corrupt := newStaticAccess(corruptPath)
	assert.True(t, corrupt.HasUserAccess("anyone", 1))
}
