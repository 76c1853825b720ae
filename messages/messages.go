package messages

import (
	"encoding/json"

	"github.com/jeroenvanwissen/blockchain-go/models"
)

// Type tags a wire message. One JSON object per WebSocket text frame.
type Type string

const (
	TypeChain          Type = "CHAIN"
	TypeBlock          Type = "BLOCK"
	TypeTransaction    Type = "TRANSACTION"
	TypeStake          Type = "STAKE"
	TypeUnstake        Type = "UNSTAKE"
	TypeGetLatestBlock Type = "GET_LATEST_BLOCK"
	TypeLatestBlock    Type = "LATEST_BLOCK"
)

// Message is the tagged union exchanged between peers.
type Message struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StakeData is the payload of STAKE and UNSTAKE messages.
type StakeData struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// NewChain wraps a chain snapshot.
func NewChain(chain []*models.Block) (*Message, error) {
	return wrap(TypeChain, chain)
}

// NewBlock wraps a freshly produced block.
func NewBlock(block *models.Block) (*Message, error) {
	return wrap(TypeBlock, block)
}

// NewLatestBlock wraps the local head for probing replies.
func NewLatestBlock(block *models.Block) (*Message, error) {
	return wrap(TypeLatestBlock, block)
}

// NewTransaction wraps a pending transaction.
func NewTransaction(tx *models.Transaction) (*Message, error) {
	return wrap(TypeTransaction, tx)
}

// NewStake wraps a stake registration.
func NewStake(address string, amount uint64) (*Message, error) {
	return wrap(TypeStake, StakeData{Address: address, Amount: amount})
}

// NewUnstake wraps a stake withdrawal.
func NewUnstake(address string, amount uint64) (*Message, error) {
	return wrap(TypeUnstake, StakeData{Address: address, Amount: amount})
}

// NewGetLatestBlock builds a head probe request.
func NewGetLatestBlock() *Message {
	return &Message{Type: TypeGetLatestBlock}
}

func wrap(t Type, data any) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{Type: t, Data: raw}, nil
}

// Encode serializes the message for one WebSocket text frame.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
