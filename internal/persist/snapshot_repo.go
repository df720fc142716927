package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/l1jgo/courier/internal/snapshot"
	"go.uber.org/zap"
)

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")
)

// SnapshotInfo is a stored snapshot without its payload.
type SnapshotInfo struct {
	ID          uuid.UUID
	TakenAt     time.Time
	EntityCount int
}

type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Save stores the snapshot and its per-component tallies in one transaction.
func (r *SnapshotRepo) Save(ctx context.Context, snap *snapshot.Snapshot) error {
	payload, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO snapshots (id, taken_at, entity_count, checksum, payload)
		 VALUES ($1, $2, $3, $4, $5)`,
		snap.ID, snap.TakenAt, len(snap.Entities), snapshot.Checksum(payload), payload,
	); err != nil {
		return fmt.Errorf("snapshot insert: %w", err)
	}

	counts := snap.ComponentCounts()
	rows := make([][]any, 0, len(counts))
	for name, n := range counts {
		rows = append(rows, []any{snap.ID, name, n})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"snapshot_components"},
		[]string{"snapshot_id", "component", "instances"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("snapshot components: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("snapshot commit: %w", err)
	}
	r.db.log.Debug("snapshot saved",
		zap.String("id", snap.ID.String()),
		zap.Int("entities", len(snap.Entities)),
		zap.Int("bytes", len(payload)))
	return nil
}

// Load fetches a snapshot and verifies its checksum.
func (r *SnapshotRepo) Load(ctx context.Context, id uuid.UUID) (*snapshot.Snapshot, error) {
	var payload, sum []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT payload, checksum FROM snapshots WHERE id = $1`, id,
	).Scan(&payload, &sum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot load %s: %w", id, err)
	}
	return decodeVerified(id.String(), payload, sum)
}

// Latest fetches the most recent snapshot.
func (r *SnapshotRepo) Latest(ctx context.Context) (*snapshot.Snapshot, error) {
	var (
		id           string
		payload, sum []byte
	)
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id::text, payload, checksum FROM snapshots ORDER BY taken_at DESC LIMIT 1`,
	).Scan(&id, &payload, &sum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot latest: %w", err)
	}
	return decodeVerified(id, payload, sum)
}

func decodeVerified(id string, payload, sum []byte) (*snapshot.Snapshot, error) {
	if !bytes.Equal(snapshot.Checksum(payload), sum) {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, id)
	}
	return snapshot.Unmarshal(payload)
}

// List returns stored snapshots, newest first.
func (r *SnapshotRepo) List(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id::text, taken_at, entity_count FROM snapshots ORDER BY taken_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot list: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var (
			raw  string
			info SnapshotInfo
		)
		if err := rows.Scan(&raw, &info.TakenAt, &info.EntityCount); err != nil {
			return nil, fmt.Errorf("snapshot list scan: %w", err)
		}
		if info.ID, err = uuid.Parse(raw); err != nil {
			return nil, fmt.Errorf("snapshot list id %q: %w", raw, err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// ComponentCounts returns the per-component tallies recorded at Save.
func (r *SnapshotRepo) ComponentCounts(ctx context.Context, id uuid.UUID) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT component, instances FROM snapshot_components WHERE snapshot_id = $1`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("snapshot counts scan: %w", err)
		}
		out[name] = n
	}
	return out, rows.Err()
}

// Prune deletes all but the keep most recent snapshots.
func (r *SnapshotRepo) Prune(ctx context.Context, keep int) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM snapshots WHERE id NOT IN (
		   SELECT id FROM snapshots ORDER BY taken_at DESC LIMIT $1)`, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("snapshot prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
