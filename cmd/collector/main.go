// The collector is the single-writer ingestion process: it owns the
// read-write database handle, consumes the radio event stream, and applies
// retention. Run exactly one instance per database.
package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MatusOllah/slogcolor"
	"github.com/wpamesh/mesh-rx-server/pkg/collector"
	"github.com/wpamesh/mesh-rx-server/pkg/config"
	"github.com/wpamesh/mesh-rx-server/pkg/radio"
	"github.com/wpamesh/mesh-rx-server/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Debug)
	slog.Info("starting collector", "config", cfg.String())

	db, err := store.Open(cfg.DBPath)
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

	iface, err := openRadio(cfg)
	if err != nil {
		slog.Error("failed to open radio interface", "error", err)
		os.Exit(1)
	}

	c := collector.New(cfg, storage, iface)
	if err := c.Start(); err != nil {
		if errors.Is(err, collector.ErrDeviceSwapped) {
			restart(db)
		}
		slog.Error("collector failed to start", "error", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	slog.Info("shutting down", "signal", s.String())
	c.Stop()
}

func setupLogging(debug bool) {
	opts := slogcolor.DefaultOptions
	if debug {
		opts.Level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slogcolor.NewHandler(os.Stderr, opts)))
}

func openRadio(cfg config.Configuration) (radio.Interface, error) {
	return radio.NewMQTT(radio.MQTTOptions{
		Broker:    cfg.MqttBroker,
		Username:  cfg.MqttUsername,
		Password:  cfg.MqttPassword,
		RootTopic: cfg.MqttRootTopic,
		GatewayID: cfg.GatewayNodeID,
	})
}

// restart re-execs the current binary so the startup sequence reruns
// against the freshly recorded device identity.
func restart(db interface{ Close() error }) {
	slog.Warn("device swap detected, restarting")
	db.Close()

	exe, err := os.Executable()
	if err != nil {
		slog.Error("cannot resolve own executable, exiting instead", "error", err)
		os.Exit(1)
	}
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		slog.Error("exec failed", "error", err)
		os.Exit(1)
	}
}
