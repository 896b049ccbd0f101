package delivery

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	solvertypes "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// erc20ABIJSON is the minimal ERC-20 surface the EVM adapter needs:
// balanceOf and allowance reads, plus the approve selector used to build
// raw calldata for Submit.
const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("delivery: parse erc20 abi: %v", err))
	}
	erc20ABI = parsed
}

// Signer abstracts the Account collaborator's signing operation so EVM
// does not depend on a concrete key-management implementation. It speaks
// go-ethereum's *types.Transaction directly rather than the abstract
// solvertypes.Transaction, since signing is an EVM-specific operation.
type Signer interface {
	Address(ctx context.Context) (string, error)
	SignTransaction(ctx context.Context, chainID uint64, tx *types.Transaction) (*types.Transaction, error)
}

// EVM is a Delivery implementation multiplexing several EVM-compatible
// JSON-RPC endpoints, one per chain id.
type EVM struct {
	mu      sync.RWMutex
	clients map[uint64]*ethclient.Client
	nonces  map[uint64]*NonceTracker
	signer  Signer
	logger  *log.Logger
}

// NewEVM constructs an adapter with no chains registered; call AddChain
// for each chain id the solver is configured to operate on.
func NewEVM(signer Signer, logger *log.Logger) *EVM {
	if logger == nil {
		logger = log.New(log.Writer(), "[Delivery:EVM] ", log.LstdFlags)
	}
	return &EVM{
		clients: make(map[uint64]*ethclient.Client),
		nonces:  make(map[uint64]*NonceTracker),
		signer:  signer,
		logger:  logger,
	}
}

// AddChain dials rpcURL and registers it for chainID. Must be called once
// per chain before Submit/GetStatus/etc. are invoked for that chain.
func (e *EVM) AddChain(ctx context.Context, chainID uint64, rpcURL string) error {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("delivery: dial chain %d: %w", chainID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.clients[chainID] = client
	e.nonces[chainID] = NewNonceTracker(chainID, client, e.logger)
	return nil
}

func (e *EVM) client(chainID uint64) (*ethclient.Client, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("delivery: no client registered for chain %d", chainID)
	}
	return c, nil
}

func (e *EVM) Submit(ctx context.Context, tx solvertypes.Transaction) (solvertypes.TransactionHash, error) {
	client, err := e.client(tx.ChainID)
	if err != nil {
		return solvertypes.TransactionHash{}, err
	}

	from, err := e.signer.Address(ctx)
	if err != nil {
		return solvertypes.TransactionHash{}, fmt.Errorf("delivery: resolve signer address: %w", err)
	}

	nonce, err := e.nonceTracker(tx.ChainID).Next(ctx, common.HexToAddress(from))
	if err != nil {
		return solvertypes.TransactionHash{}, fmt.Errorf("delivery: reserve nonce chain %d: %w", tx.ChainID, err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		e.nonceTracker(tx.ChainID).MarkFailed(nonce)
		return solvertypes.TransactionHash{}, fmt.Errorf("delivery: suggest gas price chain %d: %w", tx.ChainID, err)
	}

	gasLimit := tx.GasLimit
	if gasLimit == 0 {
		gasLimit = 300_000
	}

	value := big.NewInt(0)
	if tx.Value != "" {
		if _, ok := value.SetString(tx.Value, 10); !ok {
			e.nonceTracker(tx.ChainID).MarkFailed(nonce)
			return solvertypes.TransactionHash{}, fmt.Errorf("delivery: invalid tx value %q", tx.Value)
		}
	}

	to := common.HexToAddress(tx.To)
	unsigned := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     tx.Data,
	})

	signed, err := e.signTx(ctx, tx.ChainID, unsigned)
	if err != nil {
		e.nonceTracker(tx.ChainID).MarkFailed(nonce)
		return solvertypes.TransactionHash{}, fmt.Errorf("delivery: sign tx chain %d: %w", tx.ChainID, err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		e.nonceTracker(tx.ChainID).MarkFailed(nonce)
		return solvertypes.TransactionHash{}, fmt.Errorf("delivery: broadcast tx chain %d: %w", tx.ChainID, err)
	}
	e.nonceTracker(tx.ChainID).MarkSubmitted(nonce)

	e.logger.Printf("submitted tx %s on chain %d (nonce=%d)", signed.Hash().Hex(), tx.ChainID, nonce)
	return solvertypes.TransactionHash{ChainID: tx.ChainID, Hash: signed.Hash().Hex()}, nil
}

// signTx delegates to the Account collaborator via the Signer interface:
// the Account collaborator, not Delivery, owns key material, so this
// adapter only assembles the unsigned envelope and hands it off.
func (e *EVM) signTx(ctx context.Context, chainID uint64, tx *types.Transaction) (*types.Transaction, error) {
	return e.signer.SignTransaction(ctx, chainID, tx)
}

func (e *EVM) nonceTracker(chainID uint64) *NonceTracker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nonces[chainID]
}

func (e *EVM) WaitForConfirmation(ctx context.Context, hash solvertypes.TransactionHash, confirmations uint64) (solvertypes.Receipt, error) {
	receipt, err := e.GetReceipt(ctx, hash)
	if err != nil {
		return solvertypes.Receipt{}, err
	}
	if confirmations <= 1 {
		return receipt, nil
	}

	head, err := e.GetBlockNumber(ctx, hash.ChainID)
	if err != nil {
		return solvertypes.Receipt{}, fmt.Errorf("delivery: block number chain %d: %w", hash.ChainID, err)
	}
	if head < receipt.BlockNumber+confirmations-1 {
		return solvertypes.Receipt{}, fmt.Errorf("delivery: tx %s has %d confirmations, need %d", hash.Hash, head-receipt.BlockNumber+1, confirmations)
	}
	return receipt, nil
}

func (e *EVM) GetReceipt(ctx context.Context, hash solvertypes.TransactionHash) (solvertypes.Receipt, error) {
	client, err := e.client(hash.ChainID)
	if err != nil {
		return solvertypes.Receipt{}, err
	}

	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(hash.Hash))
	if err != nil {
		if err == ethereum.NotFound {
			return solvertypes.Receipt{}, solvertypes.ErrNotFound
		}
		return solvertypes.Receipt{}, fmt.Errorf("delivery: receipt %s chain %d: %w", hash.Hash, hash.ChainID, err)
	}

	status := solvertypes.TxStatusFailed
	if receipt.Status == types.ReceiptStatusSuccessful {
		status = solvertypes.TxStatusConfirmed
	}

	block, err := client.BlockByNumber(ctx, receipt.BlockNumber)
	var timestamp uint64
	if err == nil {
		timestamp = block.Time()
	}

	return solvertypes.Receipt{
		TxHash:      hash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		Status:      status,
		Timestamp:   timestamp,
	}, nil
}

func (e *EVM) GetStatus(ctx context.Context, hash solvertypes.TransactionHash) (bool, error) {
	receipt, err := e.GetReceipt(ctx, hash)
	if err != nil {
		return false, err
	}
	switch receipt.Status {
	case solvertypes.TxStatusConfirmed:
		return true, nil
	case solvertypes.TxStatusFailed:
		return false, nil
	default:
		return false, fmt.Errorf("delivery: tx %s not yet mined", hash.Hash)
	}
}

func (e *EVM) GetBalance(ctx context.Context, chainID uint64, address string, token string) (string, error) {
	client, err := e.client(chainID)
	if err != nil {
		return "", err
	}

	addr := common.HexToAddress(address)
	if token == "" {
		balance, err := client.BalanceAt(ctx, addr, nil)
		if err != nil {
			return "", fmt.Errorf("delivery: native balance chain %d: %w", chainID, err)
		}
		return balance.String(), nil
	}

	data, err := erc20ABI.Pack("balanceOf", addr)
	if err != nil {
		return "", fmt.Errorf("delivery: pack balanceOf: %w", err)
	}
	tokenAddr := common.HexToAddress(token)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("delivery: call balanceOf chain %d token %s: %w", chainID, token, err)
	}
	balance := new(big.Int).SetBytes(out)
	return balance.String(), nil
}

func (e *EVM) GetGasPrice(ctx context.Context, chainID uint64) (string, error) {
	client, err := e.client(chainID)
	if err != nil {
		return "", err
	}
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("delivery: gas price chain %d: %w", chainID, err)
	}
	return price.String(), nil
}

func (e *EVM) GetBlockNumber(ctx context.Context, chainID uint64) (uint64, error) {
	client, err := e.client(chainID)
	if err != nil {
		return 0, err
	}
	n, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("delivery: block number chain %d: %w", chainID, err)
	}
	return n, nil
}

func (e *EVM) GetAllowance(ctx context.Context, chainID uint64, owner, spender, token string) (string, error) {
	client, err := e.client(chainID)
	if err != nil {
		return "", err
	}

	data, err := erc20ABI.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return "", fmt.Errorf("delivery: pack allowance: %w", err)
	}
	tokenAddr := common.HexToAddress(token)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("delivery: call allowance chain %d token %s: %w", chainID, token, err)
	}
	return new(big.Int).SetBytes(out).String(), nil
}

func (e *EVM) GetNonce(ctx context.Context, chainID uint64, address string) (uint64, error) {
	client, err := e.client(chainID)
	if err != nil {
		return 0, err
	}
	nonce, err := client.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("delivery: nonce chain %d: %w", chainID, err)
	}
	return nonce, nil
}

func (e *EVM) EstimateGas(ctx context.Context, tx solvertypes.Transaction) (uint64, error) {
	client, err := e.client(tx.ChainID)
	if err != nil {
		return 0, err
	}
	to := common.HexToAddress(tx.To)
	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{To: &to, Data: tx.Data})
	if err != nil {
		return 0, fmt.Errorf("delivery: estimate gas chain %d: %w", tx.ChainID, err)
	}
	return gas, nil
}

// BuildApproveCalldata packs an ERC-20 approve(spender, amount) call, used
// by TokenApprovals to construct the value-moving transaction it submits
// through this same adapter's Submit.
func BuildApproveCalldata(spender string, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return nil, fmt.Errorf("delivery: pack approve: %w", err)
	}
	return data, nil
}
