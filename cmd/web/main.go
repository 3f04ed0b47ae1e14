// The web process serves the read-only query API. It opens its own
// read-only database handle and can be restarted or scaled independently of
// the collector.
package main

import (
	"log/slog"
	"os"

	"github.com/MatusOllah/slogcolor"
	"github.com/wpamesh/mesh-rx-server/pkg/config"
	"github.com/wpamesh/mesh-rx-server/pkg/routes"
	"github.com/wpamesh/mesh-rx-server/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	opts := slogcolor.DefaultOptions
	if cfg.Debug {
		opts.Level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slogcolor.NewHandler(os.Stderr, opts)))

	db, err := store.OpenReadOnly(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	storage := store.NewStores(db, store.RetentionSettings{
		MaxMessages:       cfg.MaxMessages,
		MaxDirectMessages: cfg.MaxDirectMessages,
		PruneInterval:     cfg.PruneInterval,
		NodePruneDays:     cfg.NodePruneDays,
	})

	router := routes.New(cfg, storage)
	if err := router.ListenAndServe(); err != nil {
		slog.Error("web server exited", "error", err)
		os.Exit(1)
	}
}
