package store

import (
	"sync"
	"time"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/fjod/go_loyalty/pkg/clock"
)

// CleanupInterval is how often expired sessions are dropped.
const CleanupInterval = 30 * time.Second

// MemoryStore keeps instruments, coin balances, orders and sessions in
// process memory. A single RWMutex serializes writers, so every method is
// atomic. It backs STORAGE=memory and the service tests.
type MemoryStore struct {
	mu sync.RWMutex

	instruments map[string]domain.Instrument // instrumentID -> instrument
	byNumber    map[string]string            // cardNumber -> instrumentID

	balances     map[string]int64                    // userID -> coins
	transactions map[string][]domain.CoinTransaction // userID -> history, oldest first

	orders map[string]*domain.Order // orderID -> order

	sessions   map[string]*sessionEntry // sessionID -> session
	sessionTTL time.Duration
	clock      clock.Clock

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

type sessionEntry struct {
	session   *domain.Session
	expiresAt time.Time
}

// NewMemoryStore starts the background session cleanup; call Close to stop it.
func NewMemoryStore(sessionTTL time.Duration, clk clock.Clock) *MemoryStore {
	s := &MemoryStore{
		instruments:  make(map[string]domain.Instrument),
		byNumber:     make(map[string]string),
		balances:     make(map[string]int64),
		transactions: make(map[string][]domain.CoinTransaction),
		orders:       make(map[string]*domain.Order),
		sessions:     make(map[string]*sessionEntry),
		sessionTTL:   sessionTTL,
		clock:        clk,
		stopCleanup:  make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

func (s *MemoryStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.expireSessions()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) expireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for id, e := range s.sessions {
		if !now.Before(e.expiresAt) {
			delete(s.sessions, id)
		}
	}
}

// Close stops the background cleanup and waits for it to finish
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	s.wg.Wait()
	return nil
}
