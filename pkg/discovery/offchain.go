package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// OffChain polls a quote/RFQ feed over HTTP for intents that never open
// an on-chain order before the solver fills them (source=off_chain).
type OffChain struct {
	endpoint     string
	standard     string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewOffChain(endpoint, standard string, pollInterval time.Duration, logger *log.Logger) *OffChain {
	if logger == nil {
		logger = log.New(log.Writer(), "[Discovery:OffChain] ", log.LstdFlags)
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &OffChain{
		endpoint:     endpoint,
		standard:     standard,
		pollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
}

type feedEntry struct {
	QuoteID string          `json:"quote_id"`
	Payload json.RawMessage `json:"payload"`
}

func (o *OffChain) StartAll(ctx context.Context, sink chan<- types.Intent) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("discovery: off-chain feed already running")
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	o.wg.Add(1)
	go o.pollLoop(sink)
	o.logger.Printf("polling %s every %v", o.endpoint, o.pollInterval)
	return nil
}

func (o *OffChain) StopAll(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	close(o.stopCh)
	o.mu.Unlock()

	o.wg.Wait()
	return nil
}

func (o *OffChain) pollLoop(sink chan<- types.Intent) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			entries, err := o.fetch()
			if err != nil {
				o.logger.Printf("feed fetch error: %v", err)
				continue
			}
			for _, entry := range entries {
				intent := types.Intent{
					ID:           entry.QuoteID,
					Standard:     o.standard,
					Source:       types.IntentSourceOffChain,
					QuoteID:      entry.QuoteID,
					DiscoveredAt: uint64(time.Now().Unix()),
					Payload:      entry.Payload,
				}
				select {
				case sink <- intent:
				case <-o.stopCh:
					return
				}
			}
		}
	}
}

func (o *OffChain) fetch() ([]feedEntry, error) {
	req, err := http.NewRequest(http.MethodGet, o.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var entries []feedEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return entries, nil
}
