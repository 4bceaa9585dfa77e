package factory

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lychee-technology/viewplane"
	"github.com/lychee-technology/viewplane/internal"
)

// Collaborators are the external services the engine consumes. Catalog,
// Things, Access and Sender are required; Publisher defaults to a no-op
// when the host does not push property changes.
type Collaborators struct {
	Catalog   viewplane.ModelCatalog
	Things    viewplane.ThingRegistry
	Access    viewplane.AccessChecker
	Publisher viewplane.Publisher
	Sender    viewplane.Sender

	// Overrides replaces the storage backend built from the config when
	// set. Useful for tests and embedded hosts.
	Overrides viewplane.OverrideStorage
}

// NewViewEngineWithConfig creates a ViewEngine from configuration and
// collaborator services. This is the primary way for hosts to embed the
// engine.
//
// Usage:
//
//	cfg := viewplane.DefaultConfig()
//	engine, err := factory.NewViewEngineWithConfig(cfg, factory.Collaborators{
//	    Catalog: catalog,
//	    Things:  things,
//	    Access:  access,
//	    Sender:  sender,
//	}, nil)
//
// pool is only consulted when cfg.Overrides.Source is "postgres".
func NewViewEngineWithConfig(cfg *viewplane.Config, c Collaborators, pool *pgxpool.Pool) (viewplane.ViewEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c.Catalog == nil {
		return nil, fmt.Errorf("collaborators.Catalog is required")
	}
	if c.Things == nil {
		return nil, fmt.Errorf("collaborators.Things is required")
	}
	if c.Access == nil {
		return nil, fmt.Errorf("collaborators.Access is required")
	}
	if c.Sender == nil {
		return nil, fmt.Errorf("collaborators.Sender is required")
	}
	if c.Publisher == nil {
		c.Publisher = nopPublisher{}
	}

	storage := c.Overrides
	if storage == nil {
		switch cfg.Overrides.Source {
		case "postgres":
			if pool == nil {
				return nil, fmt.Errorf("a pgx pool is required when overrides.source is 'postgres'")
			}
			storage = internal.NewPostgresOverrideStorage(pool, cfg.Overrides.TableName)
		default:
			storage = internal.NewFileOverrideStorage(cfg.Overrides.Directory)
		}
	}

	subs := internal.NewRegistry(cfg.Session, c.Things, c.Publisher)
	controls := internal.NewControlRegistry(storage)
	overrides := internal.NewOverrideLoader(storage)
	mat := internal.NewMaterializer(c.Catalog, c.Access, subs, overrides, controls)
	asm := internal.NewAssembler(c.Catalog, c.Access, mat, subs, c.Things, c.Publisher, controls)
	router := internal.NewChangeRouter(subs, c.Sender)

	return internal.NewEngine(subs, mat, asm, router, c.Sender), nil
}

// nopPublisher drops publication toggles for hosts without a push channel.
type nopPublisher struct{}

func (nopPublisher) SetPublication(t *viewplane.Thing, property string, enabled bool) {
	if t != nil {
		t.GetProperty(property).Publish = enabled
	}
}
