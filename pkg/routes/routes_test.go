package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/wpamesh/mesh-rx-server/pkg/config"
	"github.com/wpamesh/mesh-rx-server/pkg/models"
	"github.com/wpamesh/mesh-rx-server/pkg/store"
)

func newTestRouter(t *testing.T, cfg config.Configuration) (*WebRouter, *store.Stores) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	storage := store.NewStores(db, store.RetentionSettings{
		MaxMessages:       cfg.MaxMessages,
		MaxDirectMessages: 1000,
		PruneInterval:     1 << 20,
		NodePruneDays:     3650,
	})
	return New(cfg, storage), storage
}

func testConfig() config.Configuration {
	return config.Configuration{
		// Debug skips the gzip wrapper so test bodies decode directly.
		Debug:             true,
		MaxMessages:       100,
		MaxDirectMessages: 100,
		LogDirectMessages: true,
		LogPrimaryChannel: true,
	}
}

func strPtr(s string) *string { return &s }

func doRequest(t *testing.T, wr *WebRouter, path string) (*httptest.ResponseRecorder, []byte) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rr := httptest.NewRecorder()
	wr.Handler().ServeHTTP(rr, req)
	return rr, rr.Body.Bytes()
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("json.Unmarshal(%s) error = %v", body, err)
	}
	return v
}

func seedMessages(t *testing.T, storage *store.Stores, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := storage.Messages.Insert(&models.ChannelMessage{
			MessageID:    int64(i),
			ChannelIndex: 0,
			FromNode:     "!00000001",
			Text:         "hello",
			RxTime:       int64(i * 100),
		})
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
}

func TestGetNodes(t *testing.T) {
	wr, storage := newTestRouter(t, testConfig())
	for _, n := range []models.Node{
		{NodeID: "!00000001", ShortName: strPtr("AB12"), LastSeen: 100},
		{NodeID: "!00000002", ShortName: strPtr("CD34"), LastSeen: 200},
	} {
		n := n
		if err := storage.Nodes.Upsert(&n); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	rr, body := doRequest(t, wr, "/api/nodes?limit=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[NodesResponse](t, body)
	if len(resp.Nodes) != 1 {
		t.Fatalf("got %d nodes, want 1", len(resp.Nodes))
	}
	if resp.Nodes[0].NodeID != "!00000002" {
		t.Errorf("first node = %s, want most recently seen", resp.Nodes[0].NodeID)
	}
	if resp.Meta.Total != 2 || resp.Meta.Limit != 1 {
		t.Errorf("meta = %+v, want total 2 limit 1", resp.Meta)
	}
}

func TestGetNodeNotFound(t *testing.T) {
	wr, _ := newTestRouter(t, testConfig())
	rr, _ := doRequest(t, wr, "/api/nodes/!deadbeef")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestGetNode(t *testing.T) {
	wr, storage := newTestRouter(t, testConfig())
	if err := storage.Nodes.Upsert(&models.Node{NodeID: "!00000001", ShortName: strPtr("AB12"), LastSeen: 100}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	rr, body := doRequest(t, wr, "/api/nodes/!00000001")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	node := decode[models.Node](t, body)
	if node.NodeID != "!00000001" {
		t.Errorf("node_id = %s, want !00000001", node.NodeID)
	}
}

func TestGetMessagesNewestWindow(t *testing.T) {
	wr, storage := newTestRouter(t, testConfig())
	seedMessages(t, storage, 5)

	rr, body := doRequest(t, wr, "/api/messages?limit=2&newest=true")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[MessagesResponse](t, body)
	if len(resp.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(resp.Messages))
	}
	if resp.Messages[0].MessageID != 4 || resp.Messages[1].MessageID != 5 {
		t.Errorf("window = [%d %d], want [4 5]", resp.Messages[0].MessageID, resp.Messages[1].MessageID)
	}
	if !resp.Meta.HasMoreOlder || resp.Meta.HasMoreNewer {
		t.Errorf("meta = %+v, want has_more_older only", resp.Meta)
	}
	if resp.Meta.Total != 5 || resp.Meta.MaxMessages != 100 {
		t.Errorf("meta = %+v, want total 5 max_messages 100", resp.Meta)
	}
}

func TestGetMessagesAfterCursor(t *testing.T) {
	wr, storage := newTestRouter(t, testConfig())
	seedMessages(t, storage, 5)

	_, body := doRequest(t, wr, "/api/messages?limit=2&after_rx_time=200")
	resp := decode[MessagesResponse](t, body)
	if len(resp.Messages) != 2 || resp.Messages[0].MessageID != 3 {
		t.Fatalf("window starts at %v, want message 3", resp.Messages)
	}
	if !resp.Meta.HasMoreOlder || !resp.Meta.HasMoreNewer {
		t.Errorf("meta = %+v, want both flags", resp.Meta)
	}
}

func TestGetMessagesLimitClamped(t *testing.T) {
	wr, storage := newTestRouter(t, testConfig())
	seedMessages(t, storage, 3)

	_, body := doRequest(t, wr, "/api/messages?limit=99999")
	resp := decode[MessagesResponse](t, body)
	if resp.Meta.Limit != 100 {
		t.Errorf("limit = %d, want clamped to 100", resp.Meta.Limit)
	}

	_, body = doRequest(t, wr, "/api/messages?limit=0")
	resp = decode[MessagesResponse](t, body)
	if resp.Meta.Limit != 1 {
		t.Errorf("limit = %d, want clamped to 1", resp.Meta.Limit)
	}
}

func TestGetMessagesChannelFilter(t *testing.T) {
	wr, storage := newTestRouter(t, testConfig())
	seedMessages(t, storage, 2)
	if _, err := storage.Messages.Insert(&models.ChannelMessage{
		MessageID: 10, ChannelIndex: 2, FromNode: "!00000001", Text: "other", RxTime: 1000,
	}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	_, body := doRequest(t, wr, "/api/messages?channel_index=2")
	resp := decode[MessagesResponse](t, body)
	if len(resp.Messages) != 1 || resp.Messages[0].MessageID != 10 {
		t.Fatalf("messages = %+v, want [10]", resp.Messages)
	}
	if resp.Meta.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Meta.Total)
	}
	if resp.Meta.ChannelIndex == nil || *resp.Meta.ChannelIndex != 2 {
		t.Errorf("channel_index = %v, want 2", resp.Meta.ChannelIndex)
	}
}

func TestGetMessageByID(t *testing.T) {
	wr, storage := newTestRouter(t, testConfig())
	seedMessages(t, storage, 1)

	rr, body := doRequest(t, wr, "/api/messages/1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	row := decode[models.MessageRow](t, body)
	if row.MessageID != 1 {
		t.Errorf("message_id = %d, want 1", row.MessageID)
	}

	rr, _ = doRequest(t, wr, "/api/messages/999")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}

	rr, _ = doRequest(t, wr, "/api/messages/notanumber")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for malformed id", rr.Code)
	}
}

func TestGetDirectMessagesDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.LogDirectMessages = false
	wr, storage := newTestRouter(t, cfg)

	// Rows persisted by an earlier run with logging enabled stay hidden.
	if _, err := storage.DirectMessages.Insert(&models.DirectMessage{
		MessageID: 1, FromNode: "!00000001", Text: "old", RxTime: 100,
	}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	rr, body := doRequest(t, wr, "/api/direct-messages")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[DirectMessagesResponse](t, body)
	if len(resp.Messages) != 0 {
		t.Errorf("got %d messages, want 0 when disabled", len(resp.Messages))
	}
	if resp.Meta.Total != 0 || resp.Meta.HasMoreOlder || resp.Meta.HasMoreNewer {
		t.Errorf("meta = %+v, want zeroed", resp.Meta)
	}

	rr, _ = doRequest(t, wr, "/api/direct-messages/1")
	if rr.Code != http.StatusNotFound {
		t.Errorf("single get status = %d, want 404 when disabled", rr.Code)
	}
}

func TestGetDirectMessages(t *testing.T) {
	wr, storage := newTestRouter(t, testConfig())
	if _, err := storage.DirectMessages.Insert(&models.DirectMessage{
		MessageID: 1, FromNode: "!00000001", Text: "psst", RxTime: 100,
	}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	_, body := doRequest(t, wr, "/api/direct-messages")
	resp := decode[DirectMessagesResponse](t, body)
	if len(resp.Messages) != 1 || resp.Messages[0].Text != "psst" {
		t.Fatalf("messages = %+v, want [psst]", resp.Messages)
	}
}

func TestGetChannels(t *testing.T) {
	wr, storage := newTestRouter(t, testConfig())
	if err := storage.Channels.Upsert(0, "LongFast"); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	_, body := doRequest(t, wr, "/api/channels")
	resp := decode[map[string][]models.Channel](t, body)
	if len(resp["channels"]) != 1 || resp["channels"][0].Name != "LongFast" {
		t.Errorf("channels = %+v, want [LongFast]", resp["channels"])
	}
}

func TestGetStats(t *testing.T) {
	wr, storage := newTestRouter(t, testConfig())
	if err := storage.Channels.Upsert(0, "LongFast"); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := storage.Nodes.Upsert(&models.Node{NodeID: "!0000beef", ShortName: strPtr("GW01"), LastSeen: 100}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	seedMessages(t, storage, 2)
	// 0xbeef stored the way the collector records it.
	if err := storage.Meta.Set(models.MetaLocalNodeID, "48879"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	rr, body := doRequest(t, wr, "/api/stats")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp struct {
		LocalNode *models.Node `json:"local_node"`
		Stats     StatsCounts  `json:"stats"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if resp.LocalNode == nil || resp.LocalNode.NodeID != "!0000beef" {
		t.Errorf("local_node = %+v, want !0000beef", resp.LocalNode)
	}
	if resp.Stats.TotalNodes != 1 || resp.Stats.TotalMessages != 2 || resp.Stats.TotalChannels != 1 {
		t.Errorf("stats = %+v", resp.Stats)
	}
	if resp.Stats.TotalDirectMessages == nil || *resp.Stats.TotalDirectMessages != 0 {
		t.Errorf("total_direct_messages = %v, want 0", resp.Stats.TotalDirectMessages)
	}
}

func TestSecurityHeaders(t *testing.T) {
	wr, _ := newTestRouter(t, testConfig())
	rr, _ := doRequest(t, wr, "/api/channels")
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}
