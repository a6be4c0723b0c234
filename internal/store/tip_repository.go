package store

import (
	"context"

	"github.com/vivoor/vivoor-api/internal/errs"
	"github.com/vivoor/vivoor-api/internal/models"
)

// TipRepository stores verified tips.
type TipRepository struct {
	db *Database
}

// NewTipRepository creates a new TipRepository
func NewTipRepository(db *Database) *TipRepository {
	return &TipRepository{db: db}
}

// Create inserts t. A txid that is already recorded yields errs.ErrAlreadyExists.
func (r *TipRepository) Create(ctx context.Context, t *models.Tip) error {
	query := `INSERT INTO tips
			  (id, stream_id, sender_address, recipient_address, amount_sompi, txid,
			   encrypted_payload, decoded_message, sender_display_name, sender_avatar_url, processed_at)
			  VALUES (:id, :stream_id, :sender_address, :recipient_address, :amount_sompi, :txid,
			   :encrypted_payload, :decoded_message, :sender_display_name, :sender_avatar_url, :processed_at)`
	if _, err := r.db.GetDB().NamedExecContext(ctx, query, t); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// ListByStream returns the newest tips for a stream.
func (r *TipRepository) ListByStream(ctx context.Context, streamID string, limit int) ([]models.Tip, error) {
	tips := []models.Tip{}
	query := `SELECT id, stream_id, sender_address, recipient_address, amount_sompi, txid,
			  encrypted_payload, decoded_message, sender_display_name, sender_avatar_url, processed_at
			  FROM tips
			  WHERE stream_id = $1
			  ORDER BY processed_at DESC
			  LIMIT $2`

	if err := r.db.GetDB().SelectContext(ctx, &tips, query, streamID, limit); err != nil {
		return nil, err
	}
	return tips, nil
}
