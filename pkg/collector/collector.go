// Package collector is the single-writer ingestion engine: it subscribes
// to the mesh radio interface, normalizes incoming events, reconciles node
// state, and appends channel and direct messages.
package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/wpamesh/mesh-rx-server/pkg/config"
	"github.com/wpamesh/mesh-rx-server/pkg/models"
	"github.com/wpamesh/mesh-rx-server/pkg/radio"
	"github.com/wpamesh/mesh-rx-server/pkg/store"
)

// ErrDeviceSwapped is returned by Start when the connected device's
// identity differs from the one persisted by the previous run. The caller
// is expected to restart the process so the initial sync reruns cleanly.
var ErrDeviceSwapped = errors.New("collector: local device identity changed")

// eventQueueSize bounds the hand-off between the radio callback and the
// ingest loop. Radio traffic is slow; a full queue means ingestion stalled.
const eventQueueSize = 256

type Collector struct {
	cfg     config.Configuration
	storage *store.Stores
	iface   radio.Interface
	rec     *Reconciler

	events chan *radio.Event
	quit   chan struct{}

	localNum  uint32
	haveLocal bool
}

func New(cfg config.Configuration, storage *store.Stores, iface radio.Interface) *Collector {
	return &Collector{
		cfg:     cfg,
		storage: storage,
		iface:   iface,
		rec:     NewReconciler(storage.Nodes),
		events:  make(chan *radio.Event, eventQueueSize),
		quit:    make(chan struct{}),
	}
}

// Start runs the startup sequence (channel sync, initial node sync, device
// swap check, stale node sweep), subscribes to the interface, and launches
// the ingest loop.
func (c *Collector) Start() error {
	c.syncChannels()
	c.initialNodeSync()

	if err := c.checkLocalIdentity(); err != nil {
		return err
	}

	if _, err := c.storage.Nodes.PruneStale(time.Now()); err != nil {
		slog.Error("startup stale node sweep failed", "error", err)
	}

	if err := c.iface.Subscribe(c.enqueue); err != nil {
		return fmt.Errorf("collector: subscribe: %w", err)
	}

	go c.run()
	return nil
}

// Stop shuts the ingest loop down and closes the radio link.
func (c *Collector) Stop() {
	close(c.quit)
	if err := c.iface.Close(); err != nil {
		slog.Warn("error closing radio interface", "error", err)
	}
}

// enqueue is the radio delivery callback. It never blocks the link; if the
// ingest loop has fallen behind the event is dropped.
func (c *Collector) enqueue(ev *radio.Event) {
	select {
	case c.events <- ev:
	default:
		slog.Warn("event queue full, dropping event", "from", ev.FromID)
	}
}

// run processes events one at a time; each event is fully handled before
// the next is accepted.
func (c *Collector) run() {
	for {
		select {
		case ev := <-c.events:
			c.handleEvent(ev)
		case <-c.quit:
			return
		}
	}
}

func (c *Collector) handleEvent(ev *radio.Event) {
	if ev.FromID == "" {
		slog.Debug("packet without sender id, skipping")
		return
	}

	text, update := Normalize(ev)
	switch {
	case text != nil:
		c.handleText(text)
	case update != nil:
		if err := c.rec.Reconcile(update, false); err != nil {
			// Fatal for this event only; the process keeps running.
			slog.Error("reconcile failed", "node_id", update.NodeID, "error", err)
		}
	default:
		slog.Debug("event carried nothing to store", "from", ev.FromID)
	}
}

// handleText routes a text message to the direct or channel store,
// honoring the respective gating, then advances the sender's last_seen
// through the normal reconcile path.
func (c *Collector) handleText(t *TextEvent) {
	isDM := c.haveLocal && t.ToID != "" && t.ToID != radio.Broadcast &&
		t.ToID == models.NodeNumToID(c.localNum)

	if isDM {
		if !c.cfg.LogDirectMessages {
			slog.Debug("direct message logging disabled, skipping", "from", t.FromID)
			return
		}
		inserted, err := c.storage.DirectMessages.Insert(&models.DirectMessage{
			MessageID: t.MessageID,
			FromNode:  t.FromID,
			Text:      t.Text,
			RxTime:    t.RxTime,
			SNR:       t.SNR,
			RSSI:      t.RSSI,
			ReplyTo:   t.ReplyTo,
			ViaMqtt:   t.ViaMqtt,
		})
		if err != nil {
			slog.Error("failed to insert direct message", "from", t.FromID, "error", err)
			return
		}
		if inserted {
			slog.Info("direct message stored", "from", t.FromID, "text", truncate(t.Text, 100))
		} else {
			slog.Debug("duplicate direct message skipped", "message_id", t.MessageID)
		}
	} else {
		if !c.cfg.ShouldLogChannel(t.ChannelIndex) {
			slog.Debug("message on untracked channel, skipping", "channel", t.ChannelIndex)
			return
		}
		var toNode *string
		if t.ToID != "" {
			toNode = &t.ToID
		}
		inserted, err := c.storage.Messages.Insert(&models.ChannelMessage{
			MessageID:    t.MessageID,
			ChannelIndex: int64(t.ChannelIndex),
			FromNode:     t.FromID,
			ToNode:       toNode,
			Text:         t.Text,
			RxTime:       t.RxTime,
			HopCount:     t.HopCount,
			SNR:          t.SNR,
			RSSI:         t.RSSI,
			ReplyTo:      t.ReplyTo,
			ViaMqtt:      t.ViaMqtt,
		})
		if err != nil {
			slog.Error("failed to insert message", "from", t.FromID, "error", err)
			return
		}
		if inserted {
			slog.Info("channel message stored", "channel", t.ChannelIndex, "from", t.FromID, "text", truncate(t.Text, 100))
		} else {
			slog.Debug("duplicate message skipped", "message_id", t.MessageID)
		}
	}

	// A text message also proves the sender is alive; identity gating
	// still applies to unknown senders.
	err := c.rec.Reconcile(&NodeUpdate{
		NodeID: t.FromID,
		SNR:    t.SNR,
		RSSI:   t.RSSI,
		RxTime: t.RxTime,
	}, false)
	if err != nil {
		slog.Error("failed to touch sender node", "node_id", t.FromID, "error", err)
	}
}

// syncChannels upserts the configured tracked channels, taking display
// names from the device channel dump when available.
func (c *Collector) syncChannels() {
	slog.Info("channel config",
		"log_primary_channel", c.cfg.LogPrimaryChannel,
		"primary_channel", c.cfg.PrimaryChannel,
		"log_channel_ids", c.cfg.LogChannelIDs)

	deviceNames := make(map[int]string)
	for _, ch := range c.iface.Channels() {
		if ch.Name != "" {
			deviceNames[ch.Index] = ch.Name
		}
	}

	tracked := c.cfg.TrackedChannels()
	indexes := make([]int, 0, len(tracked))
	for idx := range tracked {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		name := deviceNames[idx]
		if name == "" {
			name = fmt.Sprintf("Channel %d", idx)
		}
		slog.Info("tracking channel", "index", idx, "name", name)
		if err := c.storage.Channels.Upsert(idx, name); err != nil {
			slog.Error("failed to upsert channel", "index", idx, "error", err)
		}
	}
}

// initialNodeSync stores every node the interface already knows about.
// Per-node failures are logged and skipped.
func (c *Collector) initialNodeSync() {
	records := c.iface.Nodes()
	if records == nil {
		slog.Debug("interface provides no node dump, skipping initial sync")
		return
	}
	slog.Info("starting initial node sync", "count", len(records))
	for _, rec := range records {
		if err := c.rec.Reconcile(updateFromNodeRecord(rec), true); err != nil {
			slog.Error("initial sync failed for node", "node_id", rec.ID, "error", err)
		}
	}
	slog.Info("initial node sync complete")
}

// checkLocalIdentity detects a device swap across restarts. The new
// identity is persisted before reporting the swap so that the restarted
// process starts consistent.
func (c *Collector) checkLocalIdentity() error {
	num, ok := c.iface.LocalNodeNum()
	if !ok {
		slog.Debug("local node identity unavailable, swap detection skipped")
		return nil
	}
	c.localNum, c.haveLocal = num, true

	current := strconv.FormatUint(uint64(num), 10)
	stored, err := c.storage.Meta.Get(models.MetaLocalNodeID)
	if err != nil {
		return fmt.Errorf("collector: read local node id: %w", err)
	}
	if err := c.storage.Meta.Set(models.MetaLocalNodeID, current); err != nil {
		return fmt.Errorf("collector: store local node id: %w", err)
	}
	if stored != "" && stored != current {
		slog.Warn("device swap detected", "stored", stored, "current", current)
		return ErrDeviceSwapped
	}
	return nil
}

// truncate shortens log output without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
