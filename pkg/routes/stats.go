package routes

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/wpamesh/mesh-rx-server/pkg/models"
)

const statsCacheKey = "stats"

type StatsCounts struct {
	TotalNodes          int           `json:"total_nodes"`
	TotalMessages       int           `json:"total_messages"`
	TotalChannels       int           `json:"total_channels"`
	TotalDirectMessages *int          `json:"total_direct_messages,omitempty"`
	ChannelCounts       map[int64]int `json:"channel_counts"`
}

// StatsResponse aggregates dashboard counters. LocalNode is the full node
// record when the collector's device is itself in the node table, a minimal
// {node_id} stub when not, and null when no device identity was recorded.
type StatsResponse struct {
	LocalNode any         `json:"local_node"`
	Stats     StatsCounts `json:"stats"`
}

func (wr *WebRouter) getStats(w http.ResponseWriter, r *http.Request) {
	if item := wr.statsCache.Get(statsCacheKey); item != nil {
		writeJSON(w, http.StatusOK, item.Value())
		return
	}

	resp, err := wr.buildStats()
	if err != nil {
		slog.Error("error building stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load stats"})
		return
	}

	wr.statsCache.Set(statsCacheKey, resp, statsCacheTTL)
	writeJSON(w, http.StatusOK, resp)
}

func (wr *WebRouter) buildStats() (StatsResponse, error) {
	var resp StatsResponse

	totalNodes, err := wr.storage.Nodes.Count()
	if err != nil {
		return resp, err
	}
	totalMessages, err := wr.storage.Messages.Count()
	if err != nil {
		return resp, err
	}
	totalChannels, err := wr.storage.Channels.Count()
	if err != nil {
		return resp, err
	}
	channelCounts, err := wr.storage.Messages.CountByChannel()
	if err != nil {
		return resp, err
	}

	resp.Stats = StatsCounts{
		TotalNodes:    totalNodes,
		TotalMessages: totalMessages,
		TotalChannels: totalChannels,
		ChannelCounts: channelCounts,
	}

	if wr.config.LogDirectMessages {
		totalDM, err := wr.storage.DirectMessages.Count()
		if err != nil {
			return resp, err
		}
		resp.Stats.TotalDirectMessages = &totalDM
	}

	resp.LocalNode, err = wr.localNode()
	return resp, err
}

// localNode resolves the collector-recorded device identity (stored as a
// decimal node number) to its node record.
func (wr *WebRouter) localNode() (any, error) {
	raw, err := wr.storage.Meta.Get(models.MetaLocalNodeID)
	if err != nil || raw == "" {
		return nil, err
	}
	num, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		slog.Warn("malformed local node id in meta", "value", raw)
		return nil, nil
	}

	nodeID := models.NodeNumToID(uint32(num))
	node, err := wr.storage.Nodes.GetNode(nodeID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return map[string]string{"node_id": nodeID}, nil
	}
	return node, nil
}
