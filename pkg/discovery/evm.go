package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// EVMConfig configures one chain's block-polling watcher.
type EVMConfig struct {
	ChainID        uint64
	RPCURL         string
	SettlerAddress common.Address
	OpenTopic      common.Hash
	PollInterval   time.Duration
	Standard       string
}

// EVM watches one or more EVM chains for order-open events emitted by
// their settler contracts, turning each log into an Intent on the shared
// sink channel. One worker goroutine per configured chain.
type EVM struct {
	mu      sync.Mutex
	configs []EVMConfig
	logger  *log.Logger

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewEVM(logger *log.Logger) *EVM {
	if logger == nil {
		logger = log.New(log.Writer(), "[Discovery:EVM] ", log.LstdFlags)
	}
	return &EVM{logger: logger}
}

// AddChain registers a chain to watch. Must be called before StartAll.
func (e *EVM) AddChain(cfg EVMConfig) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
}

func (e *EVM) StartAll(ctx context.Context, sink chan<- types.Intent) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("discovery: already running")
	}
	e.running = true
	e.stopCh = make(chan struct{})
	configs := append([]EVMConfig(nil), e.configs...)
	e.mu.Unlock()

	for _, cfg := range configs {
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("discovery: dial chain %d: %w", cfg.ChainID, err)
		}

		e.wg.Add(1)
		go e.watchChain(cfg, client, sink)
	}

	e.logger.Printf("discovery started on %d chain(s)", len(configs))
	return nil
}

func (e *EVM) StopAll(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Printf("discovery stopped")
	return nil
}

func (e *EVM) watchChain(cfg EVMConfig, client *ethclient.Client, sink chan<- types.Intent) {
	defer e.wg.Done()

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	var fromBlock uint64
	if head, err := client.BlockNumber(context.Background()); err == nil {
		fromBlock = head
	}

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			next, err := e.pollOnce(cfg, client, fromBlock, sink)
			if err != nil {
				e.logger.Printf("chain %d: poll error: %v", cfg.ChainID, err)
				continue
			}
			fromBlock = next
		}
	}
}

func (e *EVM) pollOnce(cfg EVMConfig, client *ethclient.Client, fromBlock uint64, sink chan<- types.Intent) (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return fromBlock, fmt.Errorf("block number: %w", err)
	}
	if head <= fromBlock {
		return fromBlock, nil
	}

	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock + 1),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{cfg.SettlerAddress},
		Topics:    [][]common.Hash{{cfg.OpenTopic}},
	})
	if err != nil {
		return fromBlock, fmt.Errorf("filter logs: %w", err)
	}

	for _, l := range logs {
		intent, err := e.logToIntent(cfg, l)
		if err != nil {
			e.logger.Printf("chain %d: skip unparseable log at block %d: %v", cfg.ChainID, l.BlockNumber, err)
			continue
		}
		select {
		case sink <- intent:
		case <-e.stopCh:
			return head, nil
		}
	}

	return head, nil
}

func (e *EVM) logToIntent(cfg EVMConfig, l gethtypes.Log) (types.Intent, error) {
	payload := map[string]interface{}{
		"order_id":          l.TxHash.Hex(),
		"origin_chain_id":   cfg.ChainID,
		"origin_settler":    cfg.SettlerAddress.Hex(),
		"fill_instructions": []interface{}{},
		"raw_log_data":      common.Bytes2Hex(l.Data),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return types.Intent{}, err
	}

	return types.Intent{
		ID:           l.TxHash.Hex(),
		Standard:     cfg.Standard,
		Source:       types.IntentSourceOnChain,
		DiscoveredAt: uint64(time.Now().Unix()),
		Payload:      raw,
	}, nil
}
