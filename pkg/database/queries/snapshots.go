package queries

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/database"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type SnapshotRepository struct {
	db *sql.DB
}

var _ store.SnapshotStore = (*SnapshotRepository)(nil)

func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `
	id, user_id, vm_id, provider, snapshot_id, volume_id, instance_id, name, description,
	region, zone, resource_group, size_gb, status, snapshot_type, retention_days, expires_at,
	is_expired, created_at, completed_at, deleted_at, error_message`

func (r *SnapshotRepository) Insert(ctx context.Context, s *models.Snapshot) error {
	query := `
		INSERT INTO snapshots (` + snapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		        $18, $19, $20, $21, $22)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.VMID, s.Provider, s.SnapshotID, s.VolumeID, s.InstanceID, s.Name, s.Description,
		s.Region, s.Zone, s.ResourceGroup, s.SizeGB, s.Status, s.SnapshotType, s.RetentionDays, s.ExpiresAt,
		s.IsExpired, s.CreatedAt, s.CompletedAt, s.DeletedAt, s.ErrorMessage,
	)
	return store.WrapWrite("insert", "snapshot", s.SnapshotID, err)
}

func (r *SnapshotRepository) Get(ctx context.Context, id string) (*models.Snapshot, error) {
	return r.getOne(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE id = $1`, id)
}

func (r *SnapshotRepository) GetBySnapshotID(ctx context.Context, snapshotID string) (*models.Snapshot, error) {
	return r.getOne(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE snapshot_id = $1`, snapshotID)
}

func (r *SnapshotRepository) getOne(ctx context.Context, query, key string) (*models.Snapshot, error) {
	snap, err := scanSnapshot(r.db.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return snap, err
}

// Update persists the mutable lifecycle fields. ExpiresAt is never rewritten.
func (r *SnapshotRepository) Update(ctx context.Context, s *models.Snapshot) error {
	query := `
		UPDATE snapshots
		SET status = $2, size_gb = $3, is_expired = $4, completed_at = $5, deleted_at = $6, error_message = $7
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		s.ID, s.Status, s.SizeGB, s.IsExpired, s.CompletedAt, s.DeletedAt, s.ErrorMessage)
	if err != nil {
		return store.WrapWrite("update", "snapshot", s.SnapshotID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *SnapshotRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.Snapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM snapshots
		WHERE status = 'completed' AND NOT is_expired AND expires_at <= $1
		ORDER BY expires_at`
	return r.list(ctx, query, now)
}

func (r *SnapshotRepository) ListPending(ctx context.Context) ([]*models.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE status = 'pending' ORDER BY created_at`
	return r.list(ctx, query)
}

func (r *SnapshotRepository) List(ctx context.Context, f store.SnapshotFilter) ([]*models.Snapshot, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.VMID != "" {
		add("vm_id = $%d", f.VMID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}

	query := `SELECT ` + snapshotColumns + ` FROM snapshots`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	return r.list(ctx, query, args...)
}

func (r *SnapshotRepository) Stats(ctx context.Context, userID string) (*models.SnapshotStats, error) {
	query := `
		SELECT provider, status, COUNT(*), COALESCE(SUM(size_gb), 0)
		FROM snapshots
		WHERE user_id = $1
		GROUP BY provider, status`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &models.SnapshotStats{
		ByProvider: make(map[models.Provider]int),
		ByStatus:   make(map[models.SnapshotStatus]int),
	}
	for rows.Next() {
		var (
			provider models.Provider
			status   models.SnapshotStatus
			count    int
			size     int
		)
		if err := rows.Scan(&provider, &status, &count, &size); err != nil {
			return nil, err
		}
		stats.TotalSnapshots += count
		stats.TotalSizeGB += size
		stats.ByProvider[provider] += count
		stats.ByStatus[status] += count
	}

	return stats, rows.Err()
}

func (r *SnapshotRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*models.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

func scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	var (
		s                    models.Snapshot
		size                 sql.NullInt64
		completed, deletedAt sql.NullTime
	)

	err := row.Scan(
		&s.ID, &s.UserID, &s.VMID, &s.Provider, &s.SnapshotID, &s.VolumeID, &s.InstanceID, &s.Name, &s.Description,
		&s.Region, &s.Zone, &s.ResourceGroup, &size, &s.Status, &s.SnapshotType, &s.RetentionDays, &s.ExpiresAt,
		&s.IsExpired, &s.CreatedAt, &completed, &deletedAt, &s.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	if size.Valid {
		v := int(size.Int64)
		s.SizeGB = &v
	}
	s.CompletedAt = database.NullTime(completed)
	s.DeletedAt = database.NullTime(deletedAt)

	return &s, nil
}
