package p2p

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/jeroenvanwissen/blockchain-go/ledger"
	"github.com/jeroenvanwissen/blockchain-go/messages"
	"github.com/jeroenvanwissen/blockchain-go/models"
)

const (
	defaultSeenCacheSize    = 4096
	defaultMaxReconnects    = 10
	reconnectBaseDelay      = time.Second
	reconnectMaxDelay       = 30 * time.Second
)

// Config holds P2P server configuration.
type Config struct {
	Port        int
	PeerLogPath string // persisted host:port list; empty disables it

	MaxReconnectAttempts int
	SeenCacheSize        int

	Logger *slog.Logger
	Clock  clockwork.Clock
}

// Server speaks the framed JSON gossip protocol over WebSocket: it accepts
// inbound peers, dials outbound ones with reconnect backoff, dispatches
// messages into the ledger, and broadcasts local blocks.
type Server struct {
	cfg    *Config
	ledger *ledger.Ledger
	logger *slog.Logger
	clock  clockwork.Clock

	upgrader websocket.Upgrader
	httpSrv  *http.Server
	listener net.Listener
	eg       errgroup.Group

	mu             sync.Mutex
	sockets        map[*peerConn]struct{}
	connectedPeers map[string]struct{}
	peerLog        map[string]struct{}
	closed         bool

	seen *seenSet
}

// New creates a server bound to the ledger. The persisted peer log is
// loaded immediately; listening starts with Start.
func New(l *ledger.Ledger, cfg *Config) (*Server, error) {
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnects
	}
	if cfg.SeenCacheSize == 0 {
		cfg.SeenCacheSize = defaultSeenCacheSize
	}

	seen, err := newSeenSet(cfg.SeenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedupe cache: %w", err)
	}

	s := &Server{
		cfg:            cfg,
		ledger:         l,
		logger:         cfg.Logger,
		clock:          cfg.Clock,
		upgrader:       websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		sockets:        make(map[*peerConn]struct{}),
		connectedPeers: make(map[string]struct{}),
		peerLog:        make(map[string]struct{}),
		seen:           seen,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}

	if err := s.loadPeerLog(); err != nil {
		return nil, err
	}
	return s, nil
}

// Start opens the listener and serves upgrades until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	s.httpSrv = &http.Server{Handler: mux}

	s.eg.Go(func() error {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	s.logger.Info("p2p server listening", "port", s.cfg.Port)
	return nil
}

// Stop closes the listener and every peer socket.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*peerConn, 0, len(s.sockets))
	for pc := range s.sockets {
		conns = append(conns, pc)
	}
	s.mu.Unlock()

	for _, pc := range conns {
		pc.close()
	}
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	return s.eg.Wait()
}

// Addr returns the bound listen address, useful when Port was 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// PeerCount returns the number of live sockets.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sockets)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.accept(&peerConn{conn: conn})
}

// Connect dials a peer. URLs without a scheme get ws://; trailing slashes
// are stripped. A URL already being dialed or held is skipped.
func (s *Server) Connect(rawURL string) {
	url := normalizeURL(rawURL)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, dup := s.connectedPeers[url]; dup {
		s.mu.Unlock()
		return
	}
	s.connectedPeers[url] = struct{}{}
	s.mu.Unlock()

	go s.dial(url, 0)
}

// dial connects to a peer; attempt counts reconnects, 0 for the first try.
func (s *Server) dial(url string, attempt int) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		s.logger.Warn("dial failed", "url", url, "attempt", attempt, "error", err)
		s.scheduleReconnect(url, attempt+1)
		return
	}
	s.logger.Info("connected to peer", "url", url)
	s.accept(&peerConn{conn: conn, url: url})
}

// scheduleReconnect backs off exponentially: 1s, 2s, 4s, ... capped at 30s,
// giving up after the configured number of attempts.
func (s *Server) scheduleReconnect(url string, attempt int) {
	if attempt > s.cfg.MaxReconnectAttempts {
		s.logger.Warn("giving up on peer", "url", url, "attempts", s.cfg.MaxReconnectAttempts)
		s.mu.Lock()
		delete(s.connectedPeers, url)
		s.mu.Unlock()
		return
	}

	delay := backoffDelay(attempt)

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	s.clock.AfterFunc(delay, func() {
		s.dial(url, attempt)
	})
}

// backoffDelay is min(1s * 2^(attempt-1), 30s).
func backoffDelay(attempt int) time.Duration {
	delay := reconnectBaseDelay << (attempt - 1)
	if delay > reconnectMaxDelay {
		delay = reconnectMaxDelay
	}
	return delay
}

// accept runs the inbound and outbound flows alike: register, log the
// peer, send our chain, then pump messages until the socket dies.
func (s *Server) accept(pc *peerConn) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		pc.close()
		return
	}
	s.sockets[pc] = struct{}{}
	s.mu.Unlock()

	s.logPeer(pc.remote())
	s.sendChain(pc)

	s.eg.Go(func() error {
		s.readLoop(pc)
		return nil
	})
}

func (s *Server) readLoop(pc *peerConn) {
	for {
		_, data, err := pc.conn.ReadMessage()
		if err != nil {
			break
		}
		s.handleMessage(pc, data)
	}

	s.mu.Lock()
	delete(s.sockets, pc)
	closed := s.closed
	s.mu.Unlock()
	pc.close()

	if closed || pc.url == "" {
		return
	}
	s.logger.Info("peer closed, scheduling reconnect", "url", pc.url)
	s.scheduleReconnect(pc.url, 1)
}

// sendChain pushes our full chain snapshot to a newly connected peer.
func (s *Server) sendChain(pc *peerConn) {
	msg, err := messages.NewChain(s.ledger.ChainSnapshot())
	if err != nil {
		s.logger.Error("failed to encode chain", "error", err)
		return
	}
	s.sendMessage(pc, msg)
}

func (s *Server) sendMessage(pc *peerConn, msg *messages.Message) {
	data, err := msg.Encode()
	if err != nil {
		s.logger.Error("failed to encode message", "type", msg.Type, "error", err)
		return
	}
	if err := pc.send(data); err != nil {
		s.logger.Warn("failed to send message", "peer", pc.remote(), "type", msg.Type, "error", err)
	}
}

// Broadcast sends a message to every open socket.
func (s *Server) Broadcast(msg *messages.Message) {
	data, err := msg.Encode()
	if err != nil {
		s.logger.Error("failed to encode broadcast", "type", msg.Type, "error", err)
		return
	}
	s.seen.markSeen(data)
	s.broadcastRaw(data)
}

func (s *Server) broadcastRaw(data []byte) {
	s.mu.Lock()
	conns := make([]*peerConn, 0, len(s.sockets))
	for pc := range s.sockets {
		conns = append(conns, pc)
	}
	s.mu.Unlock()

	for _, pc := range conns {
		if err := pc.send(data); err != nil {
			s.logger.Warn("failed to broadcast to peer", "peer", pc.remote(), "error", err)
		}
	}
}

// BroadcastBlock announces a locally accepted block. Wired as the miner
// and staking OnBlock hook, so it only ever fires after a successful
// append.
func (s *Server) BroadcastBlock(b *models.Block) {
	msg, err := messages.NewBlock(b)
	if err != nil {
		s.logger.Error("failed to encode block broadcast", "error", err)
		return
	}
	s.Broadcast(msg)
}

// normalizeURL prepends ws:// when no scheme is present and strips any
// trailing slash.
func normalizeURL(raw string) string {
	url := strings.TrimSpace(raw)
	if !strings.Contains(url, "://") {
		url = "ws://" + url
	}
	return strings.TrimSuffix(url, "/")
}

// logPeer records an observed host:port in the persisted peer log.
func (s *Server) logPeer(hostPort string) {
	s.mu.Lock()
	if _, dup := s.peerLog[hostPort]; dup {
		s.mu.Unlock()
		return
	}
	s.peerLog[hostPort] = struct{}{}
	peers := make([]string, 0, len(s.peerLog))
	for p := range s.peerLog {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	if s.cfg.PeerLogPath == "" {
		return
	}
	sort.Strings(peers)
	data, err := json.MarshalIndent(peers, "", "  ")
	if err != nil {
		s.logger.Error("failed to encode peer log", "error", err)
		return
	}
	if err := atomic.WriteFile(s.cfg.PeerLogPath, bytes.NewReader(data)); err != nil {
		s.logger.Warn("failed to write peer log", "path", s.cfg.PeerLogPath, "error", err)
	}
}

func (s *Server) loadPeerLog() error {
	if s.cfg.PeerLogPath == "" {
		return nil
	}

	data, err := os.ReadFile(s.cfg.PeerLogPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read peer log: %w", err)
	}

	var peers []string
	if err := json.Unmarshal(data, &peers); err != nil {
		return fmt.Errorf("failed to decode peer log: %w", err)
	}
	for _, p := range peers {
		s.peerLog[p] = struct{}{}
	}
	return nil
}

// KnownPeers returns the persisted peer log entries.
func (s *Server) KnownPeers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := make([]string, 0, len(s.peerLog))
	for p := range s.peerLog {
		peers = append(peers, p)
	}
	sort.Strings(peers)
	return peers
}
