package staking

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jeroenvanwissen/blockchain-go/config"
	"github.com/jeroenvanwissen/blockchain-go/ledger"
	"github.com/jeroenvanwissen/blockchain-go/models"
)

// Config holds staking service configuration.
type Config struct {
	// CheckFrequency spaces proposal attempts. Defaults to the consensus
	// stake check interval.
	CheckFrequency time.Duration

	// RetryDelay backs off a failed attempt before trying once more.
	RetryDelay time.Duration

	Logger *slog.Logger
	Clock  clockwork.Clock

	// OnBlock runs after a proposed block is accepted locally, typically
	// to broadcast it. May be nil.
	OnBlock func(*models.Block)
}

// Service periodically attempts proof-of-stake proposals for one address.
type Service struct {
	ledger   *ledger.Ledger
	address  string
	logger   *slog.Logger
	clock    clockwork.Clock
	interval time.Duration
	retry    time.Duration
	onBlock  func(*models.Block)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// New creates a staking service for the address.
func New(l *ledger.Ledger, address string, cfg *Config) *Service {
	s := &Service{
		ledger:   l,
		address:  address,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		interval: cfg.CheckFrequency,
		retry:    cfg.RetryDelay,
		onBlock:  cfg.OnBlock,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.interval == 0 {
		s.interval = config.StakeCheckInterval
	}
	if s.retry == 0 {
		s.retry = 5 * time.Second
	}
	return s
}

// Start launches the proposal ticker.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	go s.run(s.stopCh)
	s.logger.Info("staking service started", "address", s.address, "interval", s.interval)
}

// Stop cancels the ticker.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	s.stopCh = nil
}

func (s *Service) run(stop <-chan struct{}) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if err := s.attempt(); err != nil {
				s.logger.Warn("stake proposal failed", "error", err)
				select {
				case <-stop:
					return
				case <-s.clock.After(s.retry):
					if err := s.attempt(); err != nil {
						s.logger.Warn("stake proposal retry failed", "error", err)
					}
				}
			}
		}
	}
}

// attempt runs one proposal. A nil block means the lottery was not won
// this round; that is not an error.
func (s *Service) attempt() error {
	block, err := s.ledger.GenerateStakeBlock(s.address)
	if err != nil {
		return err
	}
	if block == nil {
		return nil
	}
	if err := s.ledger.AppendMinedBlock(block); err != nil {
		return err
	}
	s.logger.Info("staked block", "index", block.Index, "hash", block.Hash)
	if s.onBlock != nil {
		s.onBlock(block)
	}
	return nil
}
