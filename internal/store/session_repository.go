package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vivoor/vivoor-api/internal/errs"
	"github.com/vivoor/vivoor-api/internal/models"
)

// SessionRepository stores login sessions.
type SessionRepository struct {
	db *Database
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *Database) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `INSERT INTO sessions (id, encrypted_user_id, wallet_address, created_at, expires_at, is_active)
			  VALUES (:id, :encrypted_user_id, :wallet_address, :created_at, :expires_at, :is_active)`
	_, err := r.db.GetDB().NamedExecContext(ctx, query, s)
	return err
}

// GetByID returns a session or errs.ErrNotFound.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	s := &models.Session{}
	query := `SELECT id, encrypted_user_id, wallet_address, created_at, expires_at, is_active
			  FROM sessions
			  WHERE id = $1`

	if err := r.db.GetDB().GetContext(ctx, s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// Deactivate ends a session. Deactivating an unknown or inactive session is
// not an error.
func (r *SessionRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE sessions SET is_active = false WHERE id = $1`
	_, err := r.db.GetDB().ExecContext(ctx, query, id)
	return err
}
