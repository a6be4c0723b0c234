package services

import (
	"encoding/base64"
	"encoding/hex"
	"regexp"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	compressedPubKeyHexLen = 66
	compactSignatureLen    = 64
)

// Kaspa bech32 addresses: network prefix, then 61 (schnorr/p2sh) or 63 (ecdsa)
// characters of the bech32 alphabet.
var kaspaAddressPattern = regexp.MustCompile(`^kaspa(test|dev|sim)?:[qpzry9x8gf2tvdw0s3jn54khce6mua7l]{61,63}$`)

// WalletService handles wallet operations
type WalletService struct{}

// NewWalletService creates a new WalletService
func NewWalletService() *WalletService {
	return &WalletService{}
}

// IsAddressValid checks a Kaspa address against the chain's address grammar.
func (s *WalletService) IsAddressValid(address string) bool {
	return kaspaAddressPattern.MatchString(address)
}

// VerifySignature checks a 64-byte compact r||s ECDSA signature over
// SHA-256(message) against a compressed secp256k1 public key. The signature
// may be hex or base64. Any malformed input yields false.
func (s *WalletService) VerifySignature(message, signature, publicKeyHex string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	if message == "" || signature == "" || publicKeyHex == "" {
		return false
	}
	if len(publicKeyHex) != compressedPubKeyHexLen {
		return false
	}
	pubKeyBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false
	}
	// rejects points that are not on the curve
	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}

	sigBytes := decodeSignature(signature)
	if len(sigBytes) != compactSignatureLen {
		return false
	}

	var r, sc secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sigBytes[:32]); overflow || r.IsZero() {
		return false
	}
	if overflow := sc.SetByteSlice(sigBytes[32:]); overflow || sc.IsZero() {
		return false
	}

	digest := chainhash.HashB([]byte(message))
	return ecdsa.NewSignature(&r, &sc).Verify(digest, pubKey)
}

// decodeSignature accepts 128 hex characters or base64 (padded or not).
func decodeSignature(signature string) []byte {
	if len(signature) == compactSignatureLen*2 {
		if b, err := hex.DecodeString(signature); err == nil {
			return b
		}
	}
	if b, err := base64.StdEncoding.DecodeString(signature); err == nil {
		return b
	}
	if b, err := base64.RawStdEncoding.DecodeString(signature); err == nil {
		return b
	}
	return nil
}
