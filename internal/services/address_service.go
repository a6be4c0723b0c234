package services

import (
	"context"

	"github.com/vivoor/vivoor-api/internal/models"
	"github.com/vivoor/vivoor-api/internal/payload"
)

const maxAddressPage = 50

// AddressService lists recent chain activity for an address.
type AddressService struct {
	chain  ChainReader
	wallet *WalletService
}

// NewAddressService creates a new AddressService.
func NewAddressService(reader ChainReader, wallet *WalletService) *AddressService {
	return &AddressService{chain: reader, wallet: wallet}
}

// RecentTransactions returns up to limit transactions touching address, most
// recent first, with tip and chat payloads decoded.
func (s *AddressService) RecentTransactions(ctx context.Context, address string, limit int) ([]models.AddressTransaction, error) {
	if !s.wallet.IsAddressValid(address) {
		return nil, verificationErr(StateInvalidRequest, "invalid wallet address", nil)
	}
	if limit <= 0 || limit > maxAddressPage {
		limit = maxAddressPage
	}

	txs, err := s.chain.FetchAddressTransactions(ctx, address, limit)
	if err != nil {
		return nil, verificationErr(StateLookupFailed, "", err)
	}

	out := make([]models.AddressTransaction, 0, len(txs))
	for _, tx := range txs {
		item := models.AddressTransaction{ChainTransaction: tx}
		if msg := payload.Decode(tx.Payload); msg != nil {
			item.Decoded = &models.DecodedPayload{Kind: string(msg.Kind), Fields: msg.Fields}
		}
		out = append(out, item)
	}
	return out, nil
}
