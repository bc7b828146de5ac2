package queries

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/database"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type VMRepository struct {
	db *sql.DB
}

var _ store.VMStore = (*VMRepository)(nil)

func NewVMRepository(db *sql.DB) *VMRepository {
	return &VMRepository{db: db}
}

const vmColumns = `
	id, user_id, provider, instance_id, name, region, zone, resource_group, instance_type,
	state, volume_ids, cpu_utilization, memory_utilization, disk_utilization, network_in,
	network_out, metrics_updated_at, snapshot_enabled, snapshot_schedule, retention_days,
	last_snapshot_time, next_snapshot_time, anomalies, is_active, created_at, updated_at`

func (r *VMRepository) Create(ctx context.Context, vm *models.VM) error {
	anomalies, err := json.Marshal(vm.Anomalies)
	if err != nil {
		return err
	}
	if vm.Anomalies == nil {
		anomalies = []byte("[]")
	}

	query := `
		INSERT INTO vms (` + vmColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	m := vm.Metrics
	sc := vm.SnapshotConfig
	_, err = r.db.ExecContext(ctx, query,
		vm.ID, vm.UserID, vm.Provider, vm.InstanceID, vm.Name, vm.Region, vm.Zone, vm.ResourceGroup, vm.InstanceType,
		vm.State, pq.Array(vm.VolumeIDs), m.CPUUtilization, m.MemoryUtilization, m.DiskUtilization, m.NetworkIn,
		m.NetworkOut, m.LastUpdated, sc.Enabled, sc.Schedule, sc.RetentionDays,
		sc.LastSnapshotTime, sc.NextSnapshotTime, anomalies, vm.IsActive, vm.CreatedAt, vm.UpdatedAt,
	)
	return store.WrapWrite("insert", "vm", vm.ID, err)
}

func (r *VMRepository) Get(ctx context.Context, id string) (*models.VM, error) {
	query := `SELECT ` + vmColumns + ` FROM vms WHERE id = $1`

	vm, err := scanVM(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return vm, err
}

func (r *VMRepository) ListActive(ctx context.Context) ([]*models.VM, error) {
	query := `SELECT ` + vmColumns + ` FROM vms WHERE is_active ORDER BY created_at`
	return r.list(ctx, query)
}

func (r *VMRepository) ListSnapshotCandidates(ctx context.Context, now time.Time) ([]*models.VM, error) {
	query := `
		SELECT ` + vmColumns + `
		FROM vms
		WHERE is_active AND snapshot_enabled
		  AND (next_snapshot_time IS NULL OR next_snapshot_time <= $1)
		ORDER BY next_snapshot_time NULLS FIRST`
	return r.list(ctx, query, now)
}

func (r *VMRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.VM, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vms []*models.VM
	for rows.Next() {
		vm, err := scanVM(rows)
		if err != nil {
			return nil, err
		}
		vms = append(vms, vm)
	}

	return vms, rows.Err()
}

func (r *VMRepository) UpdateMetrics(ctx context.Context, vmID string, s models.MetricSummary) error {
	query := `
		UPDATE vms
		SET cpu_utilization = $2, memory_utilization = $3, disk_utilization = $4,
		    network_in = $5, network_out = $6, metrics_updated_at = $7, updated_at = NOW()
		WHERE id = $1`

	return r.exec(ctx, "update_metrics", vmID, query,
		vmID, s.CPUUtilization, s.MemoryUtilization, s.DiskUtilization, s.NetworkIn, s.NetworkOut, s.LastUpdated)
}

func (r *VMRepository) UpdateState(ctx context.Context, vmID string, state models.VMState) error {
	query := `UPDATE vms SET state = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, "update_state", vmID, query, vmID, state)
}

func (r *VMRepository) UpdateSnapshotSchedule(ctx context.Context, vmID string, last, next time.Time) error {
	query := `
		UPDATE vms
		SET last_snapshot_time = $2, next_snapshot_time = $3, updated_at = NOW()
		WHERE id = $1`
	return r.exec(ctx, "update_snapshot_schedule", vmID, query, vmID, last, next)
}

func (r *VMRepository) AppendAnomaly(ctx context.Context, vmID string, anomaly models.Anomaly) error {
	entry, err := json.Marshal([]models.Anomaly{anomaly})
	if err != nil {
		return err
	}
	query := `UPDATE vms SET anomalies = anomalies || $2::jsonb, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, "append_anomaly", vmID, query, vmID, entry)
}

func (r *VMRepository) exec(ctx context.Context, op, vmID, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return store.WrapWrite(op, "vm", vmID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanVM(row rowScanner) (*models.VM, error) {
	var (
		vm                            models.VM
		cpu, mem, disk, netIn, netOut sql.NullFloat64
		metricsAt, lastSnap, nextSnap sql.NullTime
		anomalies                     []byte
	)

	err := row.Scan(
		&vm.ID, &vm.UserID, &vm.Provider, &vm.InstanceID, &vm.Name, &vm.Region, &vm.Zone, &vm.ResourceGroup, &vm.InstanceType,
		&vm.State, pq.Array(&vm.VolumeIDs), &cpu, &mem, &disk, &netIn,
		&netOut, &metricsAt, &vm.SnapshotConfig.Enabled, &vm.SnapshotConfig.Schedule, &vm.SnapshotConfig.RetentionDays,
		&lastSnap, &nextSnap, &anomalies, &vm.IsActive, &vm.CreatedAt, &vm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	vm.Metrics = models.MetricSummary{
		CPUUtilization:    database.NullFloat(cpu),
		MemoryUtilization: database.NullFloat(mem),
		DiskUtilization:   database.NullFloat(disk),
		NetworkIn:         database.NullFloat(netIn),
		NetworkOut:        database.NullFloat(netOut),
		LastUpdated:       database.NullTime(metricsAt),
	}
	vm.SnapshotConfig.LastSnapshotTime = database.NullTime(lastSnap)
	vm.SnapshotConfig.NextSnapshotTime = database.NullTime(nextSnap)

	if len(anomalies) > 0 {
		if err := json.Unmarshal(anomalies, &vm.Anomalies); err != nil {
			return nil, err
		}
	}

	return &vm, nil
}
