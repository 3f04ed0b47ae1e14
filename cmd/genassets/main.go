// genassets minifies the dashboard's static assets into content-addressed
// build files and records the active filenames in the meta table, so the
// dashboard can cache-bust without a rebuild of the binaries.
package main

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MatusOllah/slogcolor"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
	"github.com/wpamesh/mesh-rx-server/pkg/config"
	"github.com/wpamesh/mesh-rx-server/pkg/models"
	"github.com/wpamesh/mesh-rx-server/pkg/store"
)

const (
	staticDir = "web/static"
	buildDir  = "web/static/build"
)

type asset struct {
	source   string
	mimetype string
	ext      string
	metaKey  string
}

var assets = []asset{
	{source: "rxweb.css", mimetype: "text/css", ext: "css", metaKey: models.MetaCSSFilename},
	{source: "rxweb.js", mimetype: "application/javascript", ext: "js", metaKey: models.MetaJSFilename},
}

func main() {
	slog.SetDefault(slog.New(slogcolor.NewHandler(os.Stderr, slogcolor.DefaultOptions)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	meta := store.NewMeta(db)

	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("application/javascript", js.Minify)

	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		slog.Error("failed to create build directory", "error", err)
		os.Exit(1)
	}

	var built []string
	for _, a := range assets {
		name, err := buildAsset(m, a)
		if err != nil {
			slog.Error("failed to build asset", "source", a.source, "error", err)
			os.Exit(1)
		}
		if name == "" {
			continue
		}
		if err := meta.Set(a.metaKey, name); err != nil {
			slog.Error("failed to record asset name", "key", a.metaKey, "error", err)
			os.Exit(1)
		}
		built = append(built, name)
		slog.Info("asset built", "source", a.source, "output", name)
	}

	removeStale(built)
}

// buildAsset minifies one source file into a content-hashed build file.
// A missing source is skipped, not an error: deployments without a
// dashboard checkout still run genassets harmlessly.
func buildAsset(m *minify.M, a asset) (string, error) {
	src, err := os.ReadFile(filepath.Join(staticDir, a.source))
	if os.IsNotExist(err) {
		slog.Warn("asset source missing, skipping", "source", a.source)
		return "", nil
	}
	if err != nil {
		return "", err
	}

	minified, err := m.Bytes(a.mimetype, src)
	if err != nil {
		return "", fmt.Errorf("minify %s: %w", a.source, err)
	}

	sum := sha256.Sum256(minified)
	name := fmt.Sprintf("rxweb-%x.min.%s", sum[:4], a.ext)
	if err := os.WriteFile(filepath.Join(buildDir, name), minified, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// removeStale deletes previous builds that are no longer referenced.
func removeStale(keep []string) {
	entries, err := os.ReadDir(buildDir)
	if err != nil {
		return
	}
	kept := make(map[string]bool, len(keep))
	for _, name := range keep {
		kept[name] = true
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "rxweb-") || kept[name] {
			continue
		}
		if err := os.Remove(filepath.Join(buildDir, name)); err != nil {
			slog.Warn("failed to remove stale build", "file", name, "error", err)
		} else {
			slog.Info("removed stale build", "file", name)
		}
	}
}
