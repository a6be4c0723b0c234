package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vivoor/vivoor-api/internal/models"
)

const walletTypeKaspa = "kaspa"

var errWalletTaken = errors.New("wallet already linked")

// UserRepository handles database operations related to users and wallets
type UserRepository struct {
	db *Database
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *Database) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

// GetByWalletAddress retrieves the user owning address, or nil.
func (r *UserRepository) GetByWalletAddress(ctx context.Context, address string) (*models.User, error) {
	user := &models.User{}
	query := `SELECT u.id, u.encrypted_id, u.created_at
			  FROM users u
			  JOIN wallets w ON w.user_id = u.id
			  WHERE w.address = $1`

	err := r.db.GetDB().GetContext(ctx, user, query, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetByID retrieves a user by id, or nil.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, encrypted_id, created_at FROM users WHERE id = $1`

	err := r.db.GetDB().GetContext(ctx, user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetWalletByAddress retrieves the wallet row for address, or nil.
func (r *UserRepository) GetWalletByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	wallet := &models.Wallet{}
	query := `SELECT id, user_id, address, type, created_at
			  FROM wallets
			  WHERE address = $1`

	err := r.db.GetDB().GetContext(ctx, wallet, query, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return wallet, nil
}

// ResolveWallet returns the user behind address, creating candidate and
// linking it when the address is new. When two first logins race, the
// unique index on wallets.address picks one user and the loser re-reads it.
func (r *UserRepository) ResolveWallet(ctx context.Context, address string, candidate *models.User) (*models.User, error) {
	existing, err := r.GetByWalletAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	err = r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `INSERT INTO users (id, encrypted_id, created_at) VALUES ($1, $2, $3)`
		if _, err := tx.ExecContext(ctx, query, candidate.ID, candidate.EncryptedUserID, candidate.CreatedAt); err != nil {
			return err
		}

		query = `INSERT INTO wallets (id, user_id, address, type, created_at)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (address) DO NOTHING`
		res, err := tx.ExecContext(ctx, query, uuid.New().String(), candidate.ID, address, walletTypeKaspa, candidate.CreatedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errWalletTaken
		}
		return nil
	})
	switch {
	case err == nil:
		return candidate, nil
	case !errors.Is(err, errWalletTaken):
		return nil, err
	}

	// the winning wallet row names the user every racer must share
	wallet, err := r.GetWalletByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, fmt.Errorf("wallet %s linked but not readable", address)
	}
	winner, err := r.GetByID(ctx, wallet.UserID)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return nil, fmt.Errorf("wallet %s owner %s missing", address, wallet.UserID)
	}
	return winner, nil
}
