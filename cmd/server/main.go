package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lychee-technology/viewplane"
	"github.com/lychee-technology/viewplane/factory"
	"github.com/lychee-technology/viewplane/internal"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := viewplane.DefaultConfig()
	if p := os.Getenv("PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			cfg.Server.Port = v
		}
	}
	if dir := os.Getenv("OVERRIDE_DIR"); dir != "" {
		cfg.Overrides.Directory = dir
	}

	catalog := internal.NewMemoryCatalog()
	if modelFile := os.Getenv("MODEL_FILE"); modelFile != "" {
		if err := loadModels(catalog, modelFile); err != nil {
			zap.S().Fatalw("failed to load model catalog", "file", modelFile, "error", err)
		}
	}

	things := newMemoryThings()
	hub := newSessionHub(cfg.Server)

	engine, err := factory.NewViewEngineWithConfig(cfg, factory.Collaborators{
		Catalog:   catalog,
		Things:    things,
		Access:    newStaticAccess(os.Getenv("ACCESS_FILE")),
		Publisher: things,
		Sender:    hub,
	}, nil)
	if err != nil {
		zap.S().Fatalw("failed to build view engine", "error", err)
	}

	// Background sweeper for stale client nodes.
	go func() {
		ticker := time.NewTicker(cfg.Session.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if removed := engine.SweepStale(now); removed > 0 {
					zap.S().Infow("stale node sweep completed", "removed", removed)
				}
			}
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	api := &apiHandler{engine: engine}
	r.Get("/api/screens/{id}", api.getScreen)
	r.Get("/api/screens/{id}/live", api.getLiveScreen)
	r.Get("/api/forms/{id}", api.getForm)
	r.Get("/api/panels", api.getDynamicPanels)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/ws", hub.serveWS(engine))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	zap.S().Infow("starting server", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zap.S().Fatalw("server error", "error", err)
	}
}

// modelFile is the on-disk shape of the authored model catalog.
type modelFile struct {
	Forms      []*viewplane.FormDefinition      `json:"forms"`
	Dashboards []*viewplane.DashboardDefinition `json:"dashboards"`
	Panels     []*viewplane.PanelInfo           `json:"panels"`
}

func loadModels(catalog *internal.MemoryCatalog, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var mf modelFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return err
	}
	for _, form := range mf.Forms {
		catalog.RegisterForm(form)
	}
	for _, dash := range mf.Dashboards {
		catalog.RegisterDashboard(dash)
	}
	for _, panel := range mf.Panels {
		catalog.RegisterPanel(panel)
	}
	zap.S().Infow("model catalog loaded",
		"forms", len(mf.Forms), "dashboards", len(mf.Dashboards), "panels", len(mf.Panels))
	return nil
}
