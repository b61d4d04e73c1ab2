package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "cpuinfo.db"))
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	t.Cleanup(func() { s.Close() })
	return s
}

func record(snapshotID, hostname string, collectedAt time.Time) *SnapshotRecord {
	return &SnapshotRecord{
		SnapshotID:   snapshotID,
		Hostname:     hostname,
		SystemUUID:   "uuid-" + hostname,
		SystemSerial: "serial-" + hostname,
		CPUName:      "Intel(R) Xeon(R) Gold 6338 CPU @ 2.00GHz",
		CollectedAt:  collectedAt,
		SnapshotJSON: fmt.Sprintf(`{"id":%q}`, snapshotID),
	}
}

func TestInsertGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	collected := now.Add(-time.Minute).Add(123 * time.Millisecond)
	id, storedAt, err := s.Insert(ctx, record("a", "web-01", collected))
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, now, storedAt)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a", got.SnapshotID)
	assert.Equal(t, "web-01", got.Hostname)
	assert.Equal(t, "uuid-web-01", got.SystemUUID)
	assert.True(t, got.CollectedAt.Equal(collected))
	assert.True(t, got.StoredAt.Equal(now))
	assert.Equal(t, `{"id":"a"}`, got.SnapshotJSON)

	bySnap, err := s.GetBySnapshotID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, id, bySnap.ID)

	_, err = s.Get(ctx, id+100)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestInsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, storedAt, err := s.Insert(ctx, record("dup", "web-01", now))
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(time.Hour) }
	again, storedAgain, err := s.Insert(ctx, record("dup", "web-01", now))
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.True(t, storedAt.Equal(storedAgain))

	_, total, err := s.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestGetLatestByHostname(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Insert(ctx, record("old", "web-01", now.Add(-2*time.Hour)))
	require.NoError(t, err)
	_, _, err = s.Insert(ctx, record("new", "web-01", now.Add(-time.Hour)))
	require.NoError(t, err)
	_, _, err = s.Insert(ctx, record("other", "web-02", now))
	require.NoError(t, err)

	got, err := s.GetLatestByHostname(ctx, "web-01")
	require.NoError(t, err)
	assert.Equal(t, "new", got.SnapshotID)

	_, err = s.GetLatestByHostname(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := s.Insert(ctx, record(fmt.Sprintf("s%d", i), "web-01", now.Add(-time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	amd := record("amd", "db-01", now.Add(-30*time.Minute))
	amd.CPUName = "AMD EPYC 7763 64-Core Processor"
	_, _, err := s.Insert(ctx, amd)
	require.NoError(t, err)

	recs, total, err := s.List(ctx, ListFilter{Hostname: "web-01", PageSize: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, recs, 2)
	assert.Equal(t, "s2", recs[0].SnapshotID)
	assert.Equal(t, "s3", recs[1].SnapshotID)
	assert.Empty(t, recs[0].SnapshotJSON)

	recs, total, err = s.List(ctx, ListFilter{CPUName: "EPYC"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, recs, 1)
	assert.Equal(t, "db-01", recs[0].Hostname)

	after := now.Add(-90 * time.Minute)
	_, total, err = s.List(ctx, ListFilter{CollectedAfter: &after})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	_, total, err = s.List(ctx, ListFilter{SystemUUID: "uuid-db-01"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.Insert(ctx, record("a", "web-01", now))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, id))
	assert.ErrorIs(t, s.Delete(ctx, id), sql.ErrNoRows)
}

func TestPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Insert(ctx, record("fresh", "web-01", now.Add(-24*time.Hour)))
	require.NoError(t, err)
	_, _, err = s.Insert(ctx, record("stale", "web-01", now.Add(-40*24*time.Hour)))
	require.NoError(t, err)

	n, err := s.Purge(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetBySnapshotID(ctx, "stale")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMigrationsAreRerunnable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpuinfo.db")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow(`PRAGMA user_version`).Scan(&version))
	assert.Equal(t, len(migrations), version)
}
