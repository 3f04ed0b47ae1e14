package routes

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/wpamesh/mesh-rx-server/pkg/models"
)

const (
	defaultNodeLimit = 50
	maxNodeLimit     = 1000
)

type NodeMeta struct {
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Total  int    `json:"total"`
	Search string `json:"search,omitempty"`
}

type NodesResponse struct {
	Nodes []models.Node `json:"nodes"`
	Meta  NodeMeta      `json:"meta"`
}

func (wr *WebRouter) getNodes(w http.ResponseWriter, r *http.Request) {
	limit := clamp(intOrDefault(queryInt(r, "limit"), defaultNodeLimit), 1, maxNodeLimit)
	offset := intOrDefault(queryInt(r, "offset"), 0)
	if offset < 0 {
		offset = 0
	}
	search := r.URL.Query().Get("search")

	nodes, total, err := wr.storage.Nodes.List(limit, offset, search)
	if err != nil {
		slog.Error("error listing nodes", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load nodes"})
		return
	}

	writeJSON(w, http.StatusOK, NodesResponse{
		Nodes: nodes,
		Meta:  NodeMeta{Limit: limit, Offset: offset, Total: total, Search: search},
	})
}

func (wr *WebRouter) getNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	node, err := wr.storage.Nodes.GetNode(nodeID)
	if err != nil {
		slog.Error("error fetching node", "node_id", nodeID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load node"})
		return
	}
	if node == nil {
		notFound(w, "node not found")
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (wr *WebRouter) getChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := wr.storage.Channels.GetAll()
	if err != nil {
		slog.Error("error listing channels", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load channels"})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.Channel{"channels": channels})
}
