package queries

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type UserRepository struct {
	db *sql.DB
}

var (
	_ store.UserStore       = (*UserRepository)(nil)
	_ store.CredentialStore = (*UserRepository)(nil)
)

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, preferences, is_active, created_at`

func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return user, err
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	return user, err
}

func (r *UserRepository) SetPasswordHash(ctx context.Context, userID, hash string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
	if err != nil {
		return store.WrapWrite("update", "user", userID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *UserRepository) ListActive(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE is_active ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	prefs, err := json.Marshal(user.Preferences)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, preferences, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err = r.db.QueryRowContext(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash, prefs, user.IsActive).Scan(&user.CreatedAt)
	return store.WrapWrite("insert", "user", user.ID, err)
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user  models.User
		prefs []byte
	)
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &prefs, &user.IsActive, &user.CreatedAt); err != nil {
		return nil, err
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &user.Preferences); err != nil {
			return nil, err
		}
	}
	return &user, nil
}
