package convert

import (
	"fmt"
	"time"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/api"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/codec"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/collector"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/store"
)

// SnapshotToRecord converts a snapshot to a store record.
func SnapshotToRecord(snap *collector.Snapshot) (*store.SnapshotRecord, error) {
	jsonBytes, err := codec.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot to JSON: %w", err)
	}

	collectedAt := snap.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = time.Now().UTC()
	}

	var cpuName string
	if snap.CPU != nil {
		cpuName = snap.CPU.Name
	}

	return &store.SnapshotRecord{
		SnapshotID:   snap.ID,
		Hostname:     snap.Hostname,
		SystemUUID:   snap.System.UUID,
		SystemSerial: snap.System.SerialNumber,
		CPUName:      cpuName,
		CollectedAt:  collectedAt,
		SnapshotJSON: string(jsonBytes),
	}, nil
}

// RecordToSnapshot converts a store record back to a snapshot.
func RecordToSnapshot(rec *store.SnapshotRecord) (*collector.Snapshot, error) {
	var snap collector.Snapshot
	if err := codec.Unmarshal([]byte(rec.SnapshotJSON), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot JSON: %w", err)
	}
	return &snap, nil
}

// RecordToSummary converts a store record to a list entry.
func RecordToSummary(rec *store.SnapshotRecord) *api.SnapshotSummary {
	return &api.SnapshotSummary{
		ID:           rec.ID,
		SnapshotID:   rec.SnapshotID,
		Hostname:     rec.Hostname,
		SystemUUID:   rec.SystemUUID,
		SystemSerial: rec.SystemSerial,
		CPUName:      rec.CPUName,
		CollectedAt:  rec.CollectedAt,
		StoredAt:     rec.StoredAt,
	}
}
