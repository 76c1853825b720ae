package messages

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeroenvanwissen/blockchain-go/models"
)

var (
	// ErrMalformedMessage reports a frame that is not a valid message
	// object or whose payload does not match its tag.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownMessageType reports a tag outside the protocol.
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Parse decodes one frame and validates its tag. Payloads are decoded
// lazily by the Decode* helpers so a handler only pays for what it uses.
func Parse(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch msg.Type {
	case TypeChain, TypeBlock, TypeTransaction, TypeStake, TypeUnstake, TypeGetLatestBlock, TypeLatestBlock:
		return &msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}
}

// DecodeChain extracts the CHAIN payload.
func (m *Message) DecodeChain() ([]*models.Block, error) {
	var chain []*models.Block
	if err := json.Unmarshal(m.Data, &chain); err != nil {
		return nil, fmt.Errorf("%w: chain payload: %v", ErrMalformedMessage, err)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrMalformedMessage)
	}
	return chain, nil
}

// DecodeBlock extracts a BLOCK or LATEST_BLOCK payload.
func (m *Message) DecodeBlock() (*models.Block, error) {
	var block models.Block
	if err := json.Unmarshal(m.Data, &block); err != nil {
		return nil, fmt.Errorf("%w: block payload: %v", ErrMalformedMessage, err)
	}
	if block.Hash == "" {
		return nil, fmt.Errorf("%w: block without hash", ErrMalformedMessage)
	}
	return &block, nil
}

// DecodeTransaction extracts the TRANSACTION payload.
func (m *Message) DecodeTransaction() (*models.Transaction, error) {
	var tx models.Transaction
	if err := json.Unmarshal(m.Data, &tx); err != nil {
		return nil, fmt.Errorf("%w: transaction payload: %v", ErrMalformedMessage, err)
	}
	return &tx, nil
}

// DecodeStake extracts a STAKE or UNSTAKE payload.
func (m *Message) DecodeStake() (*StakeData, error) {
	var data StakeData
	if err := json.Unmarshal(m.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: stake payload: %v", ErrMalformedMessage, err)
	}
	if data.Address == "" {
		return nil, fmt.Errorf("%w: stake without address", ErrMalformedMessage)
	}
	return &data, nil
}
