package queries

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/database"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type AlertRepository struct {
	db *sql.DB
}

var _ store.AlertStore = (*AlertRepository)(nil)

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `
	id, user_id, vm_id, alert_type, severity, title, message, metadata, status, created_at,
	acknowledged_at, acknowledged_by, resolved_at, resolved_by, resolution_notes, notifications`

func (r *AlertRepository) FindActiveRecent(ctx context.Context, key models.DedupKey, since time.Time) (*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE user_id = $1 AND vm_id = $2 AND alert_type = $3
		  AND status = 'active' AND created_at >= $4
		ORDER BY created_at DESC
		LIMIT 1`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, key.UserID, key.VMID, key.AlertType, since))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return alert, err
}

func (r *AlertRepository) Insert(ctx context.Context, a *models.Alert) error {
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	if a.Metadata == nil {
		metadata = []byte("{}")
	}
	notifications, err := json.Marshal(a.Notifications)
	if err != nil {
		return err
	}
	if a.Notifications == nil {
		notifications = []byte("[]")
	}

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = r.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.VMID, a.AlertType, a.Severity, a.Title, a.Message, metadata, a.Status, a.CreatedAt,
		a.AcknowledgedAt, a.AcknowledgedBy, a.ResolvedAt, a.ResolvedBy, a.ResolutionNotes, notifications,
	)
	return store.WrapWrite("insert", "alert", a.Key().String(), err)
}

func (r *AlertRepository) Get(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return alert, err
}

func (r *AlertRepository) List(ctx context.Context, f store.AlertFilter) ([]*models.Alert, error) {
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

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

func (r *AlertRepository) UpdateStatus(ctx context.Context, a *models.Alert) error {
	query := `
		UPDATE alerts
		SET status = $2, acknowledged_at = $3, acknowledged_by = $4,
		    resolved_at = $5, resolved_by = $6, resolution_notes = $7
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		a.ID, a.Status, a.AcknowledgedAt, a.AcknowledgedBy, a.ResolvedAt, a.ResolvedBy, a.ResolutionNotes)
	if err != nil {
		return store.WrapWrite("update_status", "alert", a.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *AlertRepository) AddNotification(ctx context.Context, alertID string, rec models.NotificationRecord) error {
	entry, err := json.Marshal([]models.NotificationRecord{rec})
	if err != nil {
		return err
	}

	query := `UPDATE alerts SET notifications = notifications || $2::jsonb WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, alertID, entry)
	if err != nil {
		return store.WrapWrite("add_notification", "alert", alertID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a                 models.Alert
		metadata, notifs  []byte
		ackedAt, resolved sql.NullTime
	)

	err := row.Scan(
		&a.ID, &a.UserID, &a.VMID, &a.AlertType, &a.Severity, &a.Title, &a.Message, &metadata, &a.Status, &a.CreatedAt,
		&ackedAt, &a.AcknowledgedBy, &resolved, &a.ResolvedBy, &a.ResolutionNotes, &notifs,
	)
	if err != nil {
		return nil, err
	}

	a.AcknowledgedAt = database.NullTime(ackedAt)
	a.ResolvedAt = database.NullTime(resolved)

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, err
		}
	}
	if len(notifs) > 0 {
		if err := json.Unmarshal(notifs, &a.Notifications); err != nil {
			return nil, err
		}
	}

	return &a, nil
}
