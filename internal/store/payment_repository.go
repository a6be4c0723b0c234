package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vivoor/vivoor-api/internal/errs"
	"github.com/vivoor/vivoor-api/internal/models"
)

// PaymentRepository stores payment verifications and answers txid lookups
// across every verified-transaction table.
type PaymentRepository struct {
	db *Database
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *Database) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts v. A txid that is already recorded yields errs.ErrAlreadyExists.
func (r *PaymentRepository) Create(ctx context.Context, v *models.PaymentVerification) error {
	query := `INSERT INTO payment_verifications
			  (id, user_id, payment_type, amount_sompi, txid, block_time, expires_at, created_at)
			  VALUES (:id, :user_id, :payment_type, :amount_sompi, :txid, :block_time, :expires_at, :created_at)`
	if _, err := r.db.GetDB().NamedExecContext(ctx, query, v); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetActive returns the user's verification of type t that expires last,
// provided it is still unexpired at now.
func (r *PaymentRepository) GetActive(ctx context.Context, userID string, t models.PaymentType, now time.Time) (*models.PaymentVerification, error) {
	v := &models.PaymentVerification{}
	query := `SELECT id, user_id, payment_type, amount_sompi, txid, block_time, expires_at, created_at
			  FROM payment_verifications
			  WHERE user_id = $1 AND payment_type = $2 AND expires_at > $3
			  ORDER BY expires_at DESC
			  LIMIT 1`

	if err := r.db.GetDB().GetContext(ctx, v, query, userID, t, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// TxIDExists reports whether txid was already recorded as a payment or a tip.
func (r *PaymentRepository) TxIDExists(ctx context.Context, txid string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (
				SELECT 1 FROM payment_verifications WHERE txid = $1
				UNION ALL
				SELECT 1 FROM tips WHERE txid = $1
			  )`
	if err := r.db.GetDB().GetContext(ctx, &exists, query, txid); err != nil {
		return false, err
	}
	return exists, nil
}
