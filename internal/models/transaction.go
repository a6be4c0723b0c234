package models

// TxSource records where a normalized transaction came from.
type TxSource string

const (
	// SourceIndexer is the authoritative indexer record.
	SourceIndexer TxSource = "indexer"
	// SourceWallet is the object a wallet extension returns after broadcasting.
	// Its accepted-status and addresses are synthesized client side.
	SourceWallet TxSource = "wallet"
)

// TxInput is a spent outpoint with its resolved owner.
type TxInput struct {
	SenderAddress string `json:"sender_address"`
	Amount        uint64 `json:"amount,omitempty"`
}

// TxOutput is a value transfer in sompi.
type TxOutput struct {
	Amount             uint64 `json:"amount"`
	DestinationAddress string `json:"destination_address"`
}

// ChainTransaction is the single internal shape every transaction is
// normalized into before it is judged.
type ChainTransaction struct {
	ID                  string     `json:"id"`
	IsAccepted          bool       `json:"is_accepted"`
	AcceptingBlockScore uint64     `json:"accepting_block_score"`
	BlockTimeMs         int64      `json:"block_time"`
	Inputs              []TxInput  `json:"inputs"`
	Outputs             []TxOutput `json:"outputs"`
	Payload             string     `json:"payload,omitempty"`
	Source              TxSource   `json:"source"`
}

// SenderAddress returns the first resolved input address, if any.
func (t *ChainTransaction) SenderAddress() string {
	for _, in := range t.Inputs {
		if in.SenderAddress != "" {
			return in.SenderAddress
		}
	}
	return ""
}

// DecodedPayload is the client-facing form of a recognized payload.
type DecodedPayload struct {
	Kind   string            `json:"kind"`
	Fields map[string]string `json:"fields"`
}

// AddressTransaction is a chain transaction touching an address, with its
// payload decoded when recognized.
type AddressTransaction struct {
	ChainTransaction
	Decoded *DecodedPayload `json:"decoded,omitempty"`
}
