package chain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vivoor/vivoor-api/internal/models"
)

// Submitted is a transaction as it arrives at the boundary: either the object a
// wallet extension returned after broadcasting, or the indexer's own record.
// Normalize turns either one into a models.ChainTransaction.
type Submitted interface {
	txID() string
	source() models.TxSource
}

// IndexerFetched is the indexer's transaction record. It is authoritative for
// acceptance, block score and output addresses.
type IndexerFetched struct {
	TransactionID           string          `json:"transaction_id"`
	Payload                 *string         `json:"payload"`
	BlockTime               int64           `json:"block_time"`
	IsAccepted              bool            `json:"is_accepted"`
	AcceptingBlockHash      string          `json:"accepting_block_hash"`
	AcceptingBlockBlueScore uint64          `json:"accepting_block_blue_score"`
	Inputs                  []IndexerInput  `json:"inputs"`
	Outputs                 []IndexerOutput `json:"outputs"`
}

// IndexerInput carries the resolved previous outpoint.
type IndexerInput struct {
	PreviousOutpointAddress string `json:"previous_outpoint_address"`
	PreviousOutpointAmount  uint64 `json:"previous_outpoint_amount"`
}

// IndexerOutput is an indexer output.
type IndexerOutput struct {
	Amount                 uint64 `json:"amount"`
	ScriptPublicKeyAddress string `json:"script_public_key_address"`
}

func (t *IndexerFetched) txID() string            { return t.TransactionID }
func (t *IndexerFetched) source() models.TxSource { return models.SourceIndexer }

// WalletSubmitted is what a browser wallet hands back after broadcasting.
// Extensions disagree on field names, so both spellings are accepted here and
// nowhere else.
type WalletSubmitted struct {
	ID      string         `json:"id"`
	TxID    string         `json:"txid"`
	Inputs  []WalletInput  `json:"inputs"`
	Outputs []WalletOutput `json:"outputs"`
	Payload string         `json:"payload"`
}

// WalletInput is a wallet-reported input.
type WalletInput struct {
	Address string `json:"address"`
}

// WalletOutput is a wallet-reported output.
type WalletOutput struct {
	Value                  uint64 `json:"value"`
	Amount                 uint64 `json:"amount"`
	Address                string `json:"address"`
	ScriptPublicKeyAddress string `json:"script_public_key_address"`
}

func (t *WalletSubmitted) txID() string {
	if t.ID != "" {
		return t.ID
	}
	return t.TxID
}

func (t *WalletSubmitted) source() models.TxSource { return models.SourceWallet }

// ReportedTxID returns the lowercased transaction id the wallet reported.
func (t *WalletSubmitted) ReportedTxID() string { return strings.ToLower(t.txID()) }

// ParseWalletSubmitted decodes a wallet broadcast result.
func ParseWalletSubmitted(raw json.RawMessage) (*WalletSubmitted, error) {
	var w WalletSubmitted
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode wallet transaction: %w", err)
	}
	if !ValidTxID(strings.ToLower(w.txID())) {
		return nil, ErrInvalidTxID
	}
	return &w, nil
}

// Normalize converts either shape into the internal record. Wallet objects
// never count as accepted; only the indexer can say that.
func Normalize(s Submitted) *models.ChainTransaction {
	switch t := s.(type) {
	case *IndexerFetched:
		tx := &models.ChainTransaction{
			ID:                  strings.ToLower(t.TransactionID),
			IsAccepted:          t.IsAccepted,
			AcceptingBlockScore: t.AcceptingBlockBlueScore,
			BlockTimeMs:         t.BlockTime,
			Source:              models.SourceIndexer,
		}
		if t.Payload != nil {
			tx.Payload = *t.Payload
		}
		for _, in := range t.Inputs {
			tx.Inputs = append(tx.Inputs, models.TxInput{
				SenderAddress: in.PreviousOutpointAddress,
				Amount:        in.PreviousOutpointAmount,
			})
		}
		for _, out := range t.Outputs {
			tx.Outputs = append(tx.Outputs, models.TxOutput{
				Amount:             out.Amount,
				DestinationAddress: out.ScriptPublicKeyAddress,
			})
		}
		return tx

	case *WalletSubmitted:
		tx := &models.ChainTransaction{
			ID:      t.ReportedTxID(),
			Payload: t.Payload,
			Source:  models.SourceWallet,
		}
		for _, in := range t.Inputs {
			tx.Inputs = append(tx.Inputs, models.TxInput{SenderAddress: in.Address})
		}
		for _, out := range t.Outputs {
			amount := out.Value
			if amount == 0 {
				amount = out.Amount
			}
			addr := out.Address
			if addr == "" {
				addr = out.ScriptPublicKeyAddress
			}
			tx.Outputs = append(tx.Outputs, models.TxOutput{Amount: amount, DestinationAddress: addr})
		}
		return tx
	}
	return nil
}
