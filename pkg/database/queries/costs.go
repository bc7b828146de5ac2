package queries

import (
	"context"
	"database/sql"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type CostRepository struct {
	db *sql.DB
}

var _ store.CostStore = (*CostRepository)(nil)

func NewCostRepository(db *sql.DB) *CostRepository {
	return &CostRepository{db: db}
}

func (r *CostRepository) SumBetween(ctx context.Context, userID string, from, to time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::float8
		FROM cost_records
		WHERE user_id = $1 AND period_start >= $2 AND period_start < $3`

	var total float64
	if err := r.db.QueryRowContext(ctx, query, userID, from, to).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *CostRepository) Insert(ctx context.Context, c *models.CostRecord) error {
	query := `
		INSERT INTO cost_records (id, user_id, vm_id, provider, resource_type, amount, currency, period_start, period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.VMID, c.Provider, c.ResourceType, c.Amount, c.Currency, c.PeriodStart, c.PeriodEnd)
	return store.WrapWrite("insert", "cost_record", c.ID, err)
}
