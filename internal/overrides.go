package internal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lychee-technology/viewplane"
)

// overrideExt is the on-disk extension of persisted layout override
// records. Existing installations already carry these files, so the
// naming is part of the storage contract.
const overrideExt = ".cdeFOR"

// OverrideLoader resolves the effective layout override for one
// (model, user, form) combination. Model-level records form the base
// layer, merged in the order the model ID lists them; the user-level
// record is applied on top. Loads happen before any subscription lock is
// taken.
type OverrideLoader struct {
	storage viewplane.OverrideStorage
}

// NewOverrideLoader creates an override loader on top of a storage backend.
func NewOverrideLoader(storage viewplane.OverrideStorage) *OverrideLoader {
	return &OverrideLoader{storage: storage}
}

// LoadOverrides returns the merged override record for the model and
// client, or nil when no layer exists. The model ID may be a
// semicolon-separated list of sub-model identifiers, each contributing a
// base layer: later entries extend the field list, override the tile
// width when positive, and may set the start group on the form as a side
// effect. Corrupt records degrade to "no override applied" with a warning.
func (l *OverrideLoader) LoadOverrides(ctx context.Context, modelID string, cc viewplane.ClientContext, form *viewplane.FormDefinition) *viewplane.ScreenOptions {
	var result *viewplane.ScreenOptions

	for _, sub := range strings.Split(modelID, ";") {
		sub = strings.TrimSpace(sub)
		if sub == "" {
			continue
		}
		layer := l.readLayer(ctx, sub+overrideExt)
		if layer == nil {
			continue
		}
		if layer.StartGroup != "" && form != nil {
			form.StartGroup = layer.StartGroup
		}
		if result == nil {
			opts := *layer
			result = &opts
			continue
		}
		result.Fields = append(result.Fields, layer.Fields...)
		if layer.TileWidth > 0 {
			result.TileWidth = layer.TileWidth
		}
		if layer.StartGroup != "" {
			result.StartGroup = layer.StartGroup
		}
	}

	if cc.UserID != "" && form != nil && form.ID != (uuid.UUID{}) {
		userLayer := l.readLayer(ctx, cc.UserID+"/"+form.ID.String()+overrideExt)
		if userLayer != nil {
			result = mergeUserLayer(result, userLayer)
		}
	}

	return result
}

// readLayer loads and decodes one override record. Missing records return
// nil silently; unreadable or corrupt records return nil with a warning.
func (l *OverrideLoader) readLayer(ctx context.Context, key string) *viewplane.ScreenOptions {
	raw, err := l.storage.ReadRecord(ctx, key)
	if err != nil {
		zap.S().Warnw("layout override read failed", "key", key, "error", err)
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	var opts viewplane.ScreenOptions
	if err := json.Unmarshal(raw, &opts); err != nil {
		zap.S().Warnw("layout override record corrupt, ignoring",
			"key", key, "error", viewplane.NewOverrideCorruptError(key, err))
		return nil
	}
	return &opts
}

// mergeUserLayer applies the per-user record on top of the model base.
// Only explicitly-set values win: zero tile width and empty strings never
// clobber the base. The user layer is allowed to replace the identifying
// ID. Field entries replace base entries matched by original FldOrder and
// extend the list otherwise.
func mergeUserLayer(base, user *viewplane.ScreenOptions) *viewplane.ScreenOptions {
	if base == nil {
		opts := *user
		return &opts
	}
	if user.ID != "" {
		base.ID = user.ID
	}
	if user.TileWidth > 0 {
		base.TileWidth = user.TileWidth
	}
	if user.StartGroup != "" {
		base.StartGroup = user.StartGroup
	}
	for _, entry := range user.Fields {
		replaced := false
		for i := range base.Fields {
			if base.Fields[i].FldOrder == entry.FldOrder {
				base.Fields[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			base.Fields = append(base.Fields, entry)
		}
	}
	return base
}

// FindFieldOverride returns the override entry matching a field's original
// order, or nil.
func FindFieldOverride(opts *viewplane.ScreenOptions, fldOrder int) *viewplane.FieldOrderOverride {
	if opts == nil {
		return nil
	}
	for i := range opts.Fields {
		if opts.Fields[i].FldOrder == fldOrder {
			return &opts.Fields[i]
		}
	}
	return nil
}

// FileOverrideStorage reads override records from a directory tree,
// model-level records at the root and user-level records one directory
// down.
type FileOverrideStorage struct {
	dir string
}

// NewFileOverrideStorage creates a file-backed override storage rooted at
// dir.
func NewFileOverrideStorage(dir string) *FileOverrideStorage {
	return &FileOverrideStorage{dir: dir}
}

// ReadRecord reads one record. Missing files return (nil, nil); a key
// escaping the storage root is rejected.
func (s *FileOverrideStorage) ReadRecord(_ context.Context, key string) ([]byte, error) {
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, viewplane.NewViewError(viewplane.ErrorTypeValidation, viewplane.ErrCodeStorageFailed,
			"override record key escapes storage root").WithDetail("key", key)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, viewplane.NewStorageError("failed to read override record", err).WithDetail("key", key)
	}
	return raw, nil
}

// WriteRecord persists one record, creating parent directories as needed.
// Used by the authoring path when a client saves its screen options.
func (s *FileOverrideStorage) WriteRecord(_ context.Context, key string, raw []byte) error {
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return viewplane.NewStorageError("failed to create override directory", err).WithDetail("key", key)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return viewplane.NewStorageError("failed to write override record", err).WithDetail("key", key)
	}
	return nil
}
