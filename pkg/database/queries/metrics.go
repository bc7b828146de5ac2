package queries

import (
	"context"
	"database/sql"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/database"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type MetricsRepository struct {
	db *sql.DB
}

var _ store.MetricStore = (*MetricsRepository)(nil)

func NewMetricsRepository(db *sql.DB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

func (r *MetricsRepository) Append(ctx context.Context, s *models.MetricSample) error {
	query := `
		INSERT INTO metric_samples (vm_id, instance_id, provider, time, cpu_utilization, memory_utilization,
			disk_utilization, network_in, network_out, disk_read_bytes, disk_write_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		s.VMID, s.InstanceID, s.Provider, s.Timestamp, s.CPUUtilization, s.MemoryUtilization,
		s.DiskUtilization, s.NetworkIn, s.NetworkOut, s.DiskReadBytes, s.DiskWriteBytes,
	)
	return store.WrapWrite("append", "metric_sample", s.VMID, err)
}

func (r *MetricsRepository) Query(ctx context.Context, vmID string, since time.Time) ([]*models.MetricSample, error) {
	query := `
		SELECT vm_id, instance_id, provider, time, cpu_utilization, memory_utilization,
			disk_utilization, network_in, network_out, disk_read_bytes, disk_write_bytes
		FROM metric_samples
		WHERE vm_id = $1 AND time >= $2
		ORDER BY time ASC`

	rows, err := r.db.QueryContext(ctx, query, vmID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*models.MetricSample
	for rows.Next() {
		var (
			s                             models.MetricSample
			cpu, mem, disk, netIn, netOut sql.NullFloat64
			diskRead, diskWrite           sql.NullFloat64
		)
		err := rows.Scan(&s.VMID, &s.InstanceID, &s.Provider, &s.Timestamp, &cpu, &mem,
			&disk, &netIn, &netOut, &diskRead, &diskWrite)
		if err != nil {
			return nil, err
		}
		s.CPUUtilization = database.NullFloat(cpu)
		s.MemoryUtilization = database.NullFloat(mem)
		s.DiskUtilization = database.NullFloat(disk)
		s.NetworkIn = database.NullFloat(netIn)
		s.NetworkOut = database.NullFloat(netOut)
		s.DiskReadBytes = database.NullFloat(diskRead)
		s.DiskWriteBytes = database.NullFloat(diskWrite)
		samples = append(samples, &s)
	}

	return samples, rows.Err()
}

func (r *MetricsRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM metric_samples WHERE time < $1`, cutoff)
	if err != nil {
		return 0, store.WrapWrite("purge", "metric_sample", cutoff.Format(time.RFC3339), err)
	}
	return result.RowsAffected()
}
