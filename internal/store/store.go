package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000Z"

// SnapshotRecord represents a stored snapshot row.
type SnapshotRecord struct {
	ID           int64
	SnapshotID   string
	Hostname     string
	SystemUUID   string
	SystemSerial string
	CPUName      string
	CollectedAt  time.Time
	StoredAt     time.Time
	SnapshotJSON string
}

// ListFilter holds optional query parameters for listing snapshots.
type ListFilter struct {
	Hostname        string
	SystemUUID      string
	CPUName         string
	CollectedAfter  *time.Time
	CollectedBefore *time.Time
	PageSize        int
	Page            int
}

// Store provides CRUD operations for snapshot records.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the SQLite database at path and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores a snapshot record and returns its row ID and stored_at time.
// A snapshot that was already stored is not inserted again; the existing row
// ID and stored_at are returned instead, so agents may resubmit safely.
func (s *Store) Insert(ctx context.Context, rec *SnapshotRecord) (int64, time.Time, error) {
	storedAt := s.now().UTC().Truncate(time.Millisecond)
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (snapshot_id, hostname, system_uuid, system_serial, cpu_name, collected_at, stored_at, snapshot_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(snapshot_id) DO NOTHING`,
		rec.SnapshotID,
		rec.Hostname,
		rec.SystemUUID,
		rec.SystemSerial,
		rec.CPUName,
		formatTime(rec.CollectedAt),
		formatTime(storedAt),
		rec.SnapshotJSON,
	)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("insert snapshot: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		existing, err := s.GetBySnapshotID(ctx, rec.SnapshotID)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("lookup existing snapshot: %w", err)
		}
		return existing.ID, existing.StoredAt, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("get last insert id: %w", err)
	}

	return id, storedAt, nil
}

const selectColumns = `SELECT id, snapshot_id, hostname, system_uuid, system_serial, cpu_name, collected_at, stored_at, snapshot_json FROM snapshots`

// Get retrieves a snapshot record by row ID.
func (s *Store) Get(ctx context.Context, id int64) (*SnapshotRecord, error) {
	return scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
}

// GetBySnapshotID retrieves a snapshot record by the agent-assigned ID.
func (s *Store) GetBySnapshotID(ctx context.Context, snapshotID string) (*SnapshotRecord, error) {
	return scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE snapshot_id = ?`, snapshotID))
}

// GetLatestByHostname retrieves the most recent snapshot for a hostname.
func (s *Store) GetLatestByHostname(ctx context.Context, hostname string) (*SnapshotRecord, error) {
	return scanRecord(s.db.QueryRowContext(ctx,
		selectColumns+` WHERE hostname = ? ORDER BY collected_at DESC, id DESC LIMIT 1`, hostname))
}

// Delete removes a snapshot record by row ID.
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// List returns snapshot summaries matching the given filter and the total
// number of matches. SnapshotJSON is left empty.
func (s *Store) List(ctx context.Context, f ListFilter) ([]SnapshotRecord, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count snapshots: %w", err)
	}

	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	query := `SELECT id, snapshot_id, hostname, system_uuid, system_serial, cpu_name, collected_at, stored_at, ''
		FROM snapshots` + where + ` ORDER BY collected_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var records []SnapshotRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}

	return records, total, rows.Err()
}

// Purge deletes snapshot records collected before now minus olderThan.
func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(s.now().Add(-olderThan))
	result, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE collected_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge snapshots: %w", err)
	}
	return result.RowsAffected()
}

func buildWhere(f ListFilter) (string, []any) {
	var conditions []string
	var args []any

	if f.Hostname != "" {
		conditions = append(conditions, "hostname = ?")
		args = append(args, f.Hostname)
	}
	if f.SystemUUID != "" {
		conditions = append(conditions, "system_uuid = ?")
		args = append(args, f.SystemUUID)
	}
	if f.CPUName != "" {
		conditions = append(conditions, "cpu_name LIKE ?")
		args = append(args, "%"+f.CPUName+"%")
	}
	if f.CollectedAfter != nil {
		conditions = append(conditions, "collected_at >= ?")
		args = append(args, formatTime(*f.CollectedAfter))
	}
	if f.CollectedBefore != nil {
		conditions = append(conditions, "collected_at <= ?")
		args = append(args, formatTime(*f.CollectedBefore))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*SnapshotRecord, error) {
	var rec SnapshotRecord
	var collectedAt, storedAt string
	err := row.Scan(&rec.ID, &rec.SnapshotID, &rec.Hostname, &rec.SystemUUID, &rec.SystemSerial, &rec.CPUName, &collectedAt, &storedAt, &rec.SnapshotJSON)
	if err != nil {
		return nil, err
	}

	rec.CollectedAt, _ = time.Parse(timeLayout, collectedAt)
	rec.StoredAt, _ = time.Parse(timeLayout, storedAt)

	return &rec, nil
}
