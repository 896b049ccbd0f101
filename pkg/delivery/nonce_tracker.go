package delivery

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// nonceState tracks one reserved-but-not-yet-confirmed nonce.
type nonceState struct {
	status     string // "reserved", "submitted", "confirmed", "failed"
	reservedAt time.Time
}

// NonceTracker hands out increasing nonces for one (chain, address) pair
// without waiting for a chain round trip on every submission. It refreshes
// its view of the chain's nonce periodically and whenever its local cache
// looks stale.
type NonceTracker struct {
	mu sync.Mutex

	chainID uint64
	client  *ethclient.Client
	logger  *log.Logger

	lastKnownNonce uint64
	knownFor       common.Address
	pending        map[uint64]*nonceState
	lastQuery      time.Time
	queryInterval  time.Duration
	maxPending     int
}

func NewNonceTracker(chainID uint64, client *ethclient.Client, logger *log.Logger) *NonceTracker {
	return &NonceTracker{
		chainID:       chainID,
		client:        client,
		logger:        logger,
		pending:       make(map[uint64]*nonceState),
		queryInterval: 30 * time.Second,
		maxPending:    100,
	}
}

// Next reserves the next nonce for address, refreshing from the chain if
// the cache is stale or belongs to a different address.
func (t *NonceTracker) Next(ctx context.Context, address common.Address) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if address != t.knownFor || time.Since(t.lastQuery) > t.queryInterval {
		if err := t.refresh(ctx, address); err != nil {
			if address != t.knownFor {
				return 0, fmt.Errorf("nonce tracker: initial refresh chain %d: %w", t.chainID, err)
			}
			t.logger.Printf("nonce tracker chain %d: refresh failed, using cached value: %v", t.chainID, err)
		}
	}

	if len(t.pending) >= t.maxPending {
		return 0, fmt.Errorf("nonce tracker chain %d: too many pending nonces (%d)", t.chainID, len(t.pending))
	}

	next := t.lastKnownNonce
	for {
		if st, exists := t.pending[next]; exists && (st.status == "reserved" || st.status == "submitted") {
			next++
			continue
		}
		break
	}

	t.pending[next] = &nonceState{status: "reserved", reservedAt: time.Now()}
	return next, nil
}

func (t *NonceTracker) MarkSubmitted(nonce uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.pending[nonce]; ok {
		st.status = "submitted"
	}
}

func (t *NonceTracker) MarkFailed(nonce uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.pending[nonce]; ok {
		st.status = "failed"
	}
}

func (t *NonceTracker) refresh(ctx context.Context, address common.Address) error {
	nonce, err := t.client.PendingNonceAt(ctx, address)
	if err != nil {
		return err
	}
	t.lastKnownNonce = nonce
	t.knownFor = address
	t.lastQuery = time.Now()
	t.pending = make(map[uint64]*nonceState)
	return nil
}
