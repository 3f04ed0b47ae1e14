package collector

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/wpamesh/mesh-rx-server/pkg/models"
	"github.com/wpamesh/mesh-rx-server/pkg/store"
)

// Reconciler owns node identity gating and field-level merge. It holds no
// state of its own: every merge decision re-reads the stored node
// immediately before writing, which is only safe because there is exactly
// one writer process.
type Reconciler struct {
	nodes store.NodeStore
}

func NewReconciler(nodes store.NodeStore) *Reconciler {
	return &Reconciler{nodes: nodes}
}

// Reconcile merges one partial update into the stored node state.
//
// An unknown node is only created when identity is established: the update
// came from the initial sync, or it is an identity update carrying at least
// one non-null identity field. Known nodes take every non-nil incoming
// field; nil fields never clear stored values. last_seen always advances,
// even when nothing else changed. Storage errors propagate to the caller.
func (r *Reconciler) Reconcile(u *NodeUpdate, fromInitialSync bool) error {
	if u.NodeID == "" {
		slog.Debug("node update without id, skipping")
		return nil
	}

	existing, err := r.nodes.GetNode(u.NodeID)
	if err != nil {
		return fmt.Errorf("reconcile %s: lookup: %w", u.NodeID, err)
	}
	isNew := existing == nil

	if isNew {
		if !fromInitialSync && !u.IsIdentityUpdate {
			slog.Debug("ignoring update for unknown node", "node_id", u.NodeID)
			return nil
		}
		if !u.hasIdentity() {
			slog.Debug("ignoring identity-less update for unknown node", "node_id", u.NodeID)
			return nil
		}
	}

	lastSeen := u.RxTime
	if lastSeen == 0 {
		lastSeen = time.Now().Unix()
	}

	merged := mergeNode(existing, u, lastSeen)
	if err := r.nodes.Upsert(merged); err != nil {
		return fmt.Errorf("reconcile %s: upsert: %w", u.NodeID, err)
	}

	if fromInitialSync {
		slog.Debug("initial sync: node stored", "node_id", u.NodeID)
		return nil
	}
	if isNew {
		slog.Info("new node discovered", "node_id", u.NodeID, "fields", describeFields(merged))
		return nil
	}
	if changed := changedFields(existing, merged); len(changed) > 0 {
		slog.Info("node updated", "node_id", u.NodeID, "changed", strings.Join(changed, ","))
	} else {
		slog.Debug("node unchanged", "node_id", u.NodeID)
	}
	return nil
}

// hasIdentity reports whether the update carries at least one identity
// field.
func (u *NodeUpdate) hasIdentity() bool {
	return u.ShortName != nil || u.LongName != nil || u.Hardware != nil ||
		u.Role != nil || u.PublicKey != nil
}

// mergeNode applies the new-non-nil-wins rule against the stored record.
// The store's COALESCE upsert enforces the same rule at the SQL level, so
// a concurrent restart can never clear a field either.
func mergeNode(existing *models.Node, u *NodeUpdate, lastSeen int64) *models.Node {
	n := &models.Node{NodeID: u.NodeID, FirstSeen: lastSeen, LastSeen: lastSeen}
	if existing != nil {
		*n = *existing
		n.LastSeen = lastSeen
	}
	n.ShortName = pick(u.ShortName, n.ShortName)
	n.LongName = pick(u.LongName, n.LongName)
	n.Hardware = pick(u.Hardware, n.Hardware)
	n.Role = pick(u.Role, n.Role)
	n.BatteryLevel = pick(u.BatteryLevel, n.BatteryLevel)
	n.Voltage = pick(u.Voltage, n.Voltage)
	n.SNR = pick(u.SNR, n.SNR)
	n.RSSI = pick(u.RSSI, n.RSSI)
	n.Latitude = pick(u.Latitude, n.Latitude)
	n.Longitude = pick(u.Longitude, n.Longitude)
	n.Altitude = pick(u.Altitude, n.Altitude)
	return n
}

func pick[T any](incoming, current *T) *T {
	if incoming != nil {
		return incoming
	}
	return current
}

// changedFields compares the pre- and post-merge records, excluding the
// timestamps.
func changedFields(before, after *models.Node) []string {
	var changed []string
	for name, differs := range map[string]bool{
		"short_name":    !ptrEq(before.ShortName, after.ShortName),
		"long_name":     !ptrEq(before.LongName, after.LongName),
		"hardware":      !ptrEq(before.Hardware, after.Hardware),
		"role":          !ptrEq(before.Role, after.Role),
		"battery_level": !ptrEq(before.BatteryLevel, after.BatteryLevel),
		"voltage":       !ptrEq(before.Voltage, after.Voltage),
		"snr":           !ptrEq(before.SNR, after.SNR),
		"rssi":          !ptrEq(before.RSSI, after.RSSI),
		"latitude":      !ptrEq(before.Latitude, after.Latitude),
		"longitude":     !ptrEq(before.Longitude, after.Longitude),
		"altitude":      !ptrEq(before.Altitude, after.Altitude),
	} {
		if differs {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}

func ptrEq[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// describeFields summarizes the non-null fields of a freshly created node
// for the discovery log line.
func describeFields(n *models.Node) string {
	var parts []string
	add := func(name string, v any) {
		parts = append(parts, fmt.Sprintf("%s=%v", name, v))
	}
	if n.ShortName != nil {
		add("short_name", *n.ShortName)
	}
	if n.LongName != nil {
		add("long_name", *n.LongName)
	}
	if n.Hardware != nil {
		add("hardware", *n.Hardware)
	}
	if n.Role != nil {
		add("role", *n.Role)
	}
	if n.BatteryLevel != nil {
		add("battery_level", *n.BatteryLevel)
	}
	if n.Voltage != nil {
		add("voltage", *n.Voltage)
	}
	if n.Latitude != nil {
		add("latitude", *n.Latitude)
	}
	if n.Longitude != nil {
		add("longitude", *n.Longitude)
	}
	return strings.Join(parts, " ")
}
