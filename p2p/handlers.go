package p2p

import (
	"errors"

	"github.com/jeroenvanwissen/blockchain-go/ledger"
	"github.com/jeroenvanwissen/blockchain-go/messages"
)

// handleMessage dispatches one frame. Per-message errors are logged and
// the connection lives on: one bad peer must not take down the server.
func (s *Server) handleMessage(pc *peerConn, raw []byte) {
	msg, err := messages.Parse(raw)
	if err != nil {
		s.logger.Warn("dropping message", "peer", pc.remote(), "error", err)
		return
	}

	switch msg.Type {
	case messages.TypeChain:
		s.handleChain(pc, msg)
	case messages.TypeBlock:
		s.handleBlock(pc, raw, msg)
	case messages.TypeTransaction:
		s.handleTransaction(pc, raw, msg)
	case messages.TypeStake:
		s.handleStake(pc, msg, s.ledger.Stake)
	case messages.TypeUnstake:
		s.handleStake(pc, msg, s.ledger.Unstake)
	case messages.TypeGetLatestBlock:
		s.handleGetLatestBlock(pc)
	case messages.TypeLatestBlock:
		s.handleLatestBlock(pc, msg)
	}
}

// handleChain runs chain replacement. Shorter or equal-length chains are
// routine gossip, not errors worth a peer's log line.
func (s *Server) handleChain(pc *peerConn, msg *messages.Message) {
	chain, err := msg.DecodeChain()
	if err != nil {
		s.logger.Warn("bad chain payload", "peer", pc.remote(), "error", err)
		return
	}

	err = s.ledger.ReplaceChain(chain)
	switch {
	case err == nil:
		s.logger.Info("chain replaced from peer", "peer", pc.remote(), "length", len(chain))
	case errors.Is(err, ledger.ErrChainTooShort):
		s.logger.Debug("ignoring chain", "peer", pc.remote(), "error", err)
	default:
		s.logger.Warn("rejecting chain", "peer", pc.remote(), "error", err)
	}
}

// handleBlock appends a gossiped block when it is next in line,
// re-broadcasting on success. A block from the future triggers a full
// sync via GET_LATEST_BLOCK instead.
func (s *Server) handleBlock(pc *peerConn, raw []byte, msg *messages.Message) {
	if !s.seen.markSeen(raw) {
		return
	}

	block, err := msg.DecodeBlock()
	if err != nil {
		s.logger.Warn("bad block payload", "peer", pc.remote(), "error", err)
		return
	}

	if int(block.Index) > s.ledger.ChainLength() {
		s.logger.Info("peer is ahead, requesting chain", "peer", pc.remote(), "peer_index", block.Index)
		s.Broadcast(messages.NewGetLatestBlock())
		return
	}

	if err := s.ledger.TryAppendPeerBlock(block); err != nil {
		s.logger.Warn("rejecting peer block", "peer", pc.remote(), "index", block.Index, "error", err)
		return
	}
	s.broadcastRaw(raw)
}

func (s *Server) handleTransaction(pc *peerConn, raw []byte, msg *messages.Message) {
	if !s.seen.markSeen(raw) {
		return
	}

	tx, err := msg.DecodeTransaction()
	if err != nil {
		s.logger.Warn("bad transaction payload", "peer", pc.remote(), "error", err)
		return
	}
	if err := s.ledger.AddTransaction(tx); err != nil {
		s.logger.Warn("rejecting peer transaction", "peer", pc.remote(), "error", err)
		return
	}
	s.broadcastRaw(raw)
}

func (s *Server) handleStake(pc *peerConn, msg *messages.Message, apply func(string, uint64) error) {
	data, err := msg.DecodeStake()
	if err != nil {
		s.logger.Warn("bad stake payload", "peer", pc.remote(), "error", err)
		return
	}
	if err := apply(data.Address, data.Amount); err != nil {
		s.logger.Warn("stake operation failed", "peer", pc.remote(), "address", data.Address, "error", err)
	}
}

// handleGetLatestBlock answers with the head and, because probes are how
// lagging peers catch up, the full chain snapshot.
func (s *Server) handleGetLatestBlock(pc *peerConn) {
	head, err := messages.NewLatestBlock(s.ledger.LatestBlock())
	if err != nil {
		s.logger.Error("failed to encode latest block", "error", err)
		return
	}
	s.sendMessage(pc, head)
	s.sendChain(pc)
}

// handleLatestBlock consumes a head probe reply: append when it extends
// our chain, ask for more when the peer is further ahead.
func (s *Server) handleLatestBlock(pc *peerConn, msg *messages.Message) {
	block, err := msg.DecodeBlock()
	if err != nil {
		s.logger.Warn("bad latest block payload", "peer", pc.remote(), "error", err)
		return
	}

	length := s.ledger.ChainLength()
	switch {
	case int(block.Index) == length:
		if err := s.ledger.TryAppendPeerBlock(block); err != nil {
			s.logger.Warn("rejecting peer head", "peer", pc.remote(), "error", err)
		}
	case int(block.Index) > length:
		s.sendMessage(pc, messages.NewGetLatestBlock())
	}
}
