// Package routes exposes the read-only JSON query API over the storage
// layer. It never raises internal faults to clients: missing entities are
// 404s, everything else is a well-formed, possibly empty, page.
package routes

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jellydator/ttlcache/v3"
	"github.com/wpamesh/mesh-rx-server/pkg/config"
	"github.com/wpamesh/mesh-rx-server/pkg/store"
)

const statsCacheTTL = 5 * time.Second

type WebRouter struct {
	config     config.Configuration
	storage    *store.Stores
	statsCache *ttlcache.Cache[string, StatsResponse]
}

func New(cfg config.Configuration, storage *store.Stores) *WebRouter {
	cache := ttlcache.New[string, StatsResponse](
		ttlcache.WithTTL[string, StatsResponse](statsCacheTTL),
	)
	go cache.Start()
	return &WebRouter{
		config:     cfg,
		storage:    storage,
		statsCache: cache,
	}
}

// Handler builds the router with its middleware chain.
func (wr *WebRouter) Handler() http.Handler {
	myRouter := mux.NewRouter().StrictSlash(true)

	myRouter.HandleFunc("/api/nodes", wr.getNodes).Methods("GET")
	myRouter.HandleFunc("/api/nodes/{id}", wr.getNode).Methods("GET")
	myRouter.HandleFunc("/api/messages", wr.getMessages).Methods("GET")
	myRouter.HandleFunc("/api/messages/{message_id}", wr.getMessage).Methods("GET")
	myRouter.HandleFunc("/api/direct-messages", wr.getDirectMessages).Methods("GET")
	myRouter.HandleFunc("/api/direct-messages/{message_id}", wr.getDirectMessage).Methods("GET")
	myRouter.HandleFunc("/api/channels", wr.getChannels).Methods("GET")
	myRouter.HandleFunc("/api/stats", wr.getStats).Methods("GET")

	myRouter.Use(handlers.ProxyHeaders)
	myRouter.Use(requestLogger)
	myRouter.Use(securityHeaders)

	var h http.Handler = handlers.RecoveryHandler()(myRouter)
	if !wr.config.Debug {
		h = handlers.CompressHandler(h)
	}
	return h
}

// ListenAndServe blocks serving the query API.
func (wr *WebRouter) ListenAndServe() error {
	slog.Info("query api listening", "addr", wr.config.ListenAddr)
	return http.ListenAndServe(wr.config.ListenAddr, wr.Handler())
}

func requestLogger(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		slog.Info("endpoint hit", "method", r.Method, "path", r.URL.Path, "remote_host", r.RemoteAddr)
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

func securityHeaders(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("error encoding response", "error", err)
	}
}

func notFound(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": message})
}

// queryInt returns the integer value of a query parameter, or nil when it
// is absent or malformed.
func queryInt(r *http.Request, name string) *int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

func queryInt64(r *http.Request, name string) *int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func intOrDefault(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
