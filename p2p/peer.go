package p2p

import (
	"sync"

	"github.com/gorilla/websocket"
)

// peerConn wraps one WebSocket with a write mutex: gorilla allows a single
// concurrent writer, and broadcasts race replies without it.
type peerConn struct {
	conn *websocket.Conn

	// url is the normalized dial target for outbound connections; empty
	// for accepted ones. Reconnects only apply to outbound peers.
	url string

	mu sync.Mutex
}

// send writes one text frame.
func (p *peerConn) send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// remote returns the peer's host:port as observed on the socket.
func (p *peerConn) remote() string {
	return p.conn.RemoteAddr().String()
}

func (p *peerConn) close() error {
	return p.conn.Close()
}
