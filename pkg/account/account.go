// Package account implements the Account collaborator: the solver's
// signing identity.
package account

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Account is the Account collaborator: it knows its own address and can
// sign a transaction for a given chain. Delivery calls SignTransaction;
// nothing else in the core touches key material directly.
type Account interface {
	Address(ctx context.Context) (string, error)
	SignTransaction(ctx context.Context, chainID uint64, tx *types.Transaction) (*types.Transaction, error)
}

// ECDSASigner holds a single private key in memory and signs with
// go-ethereum's EIP-155 signer for the chain id passed on each call.
type ECDSASigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewECDSASigner parses a hex-encoded private key (with or without the
// "0x" prefix) and derives the corresponding address.
func NewECDSASigner(privateKeyHex string) (*ECDSASigner, error) {
	key, err := gethcrypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("account: parse private key: %w", err)
	}

	publicKey, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("account: failed to cast public key to ECDSA")
	}

	return &ECDSASigner{
		privateKey: key,
		address:    gethcrypto.PubkeyToAddress(*publicKey),
	}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func (s *ECDSASigner) Address(ctx context.Context) (string, error) {
	return s.address.Hex(), nil
}

func (s *ECDSASigner) SignTransaction(ctx context.Context, chainID uint64, tx *types.Transaction) (*types.Transaction, error) {
	signer := types.NewEIP155Signer(new(big.Int).SetUint64(chainID))
	signed, err := types.SignTx(tx, signer, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("account: sign tx chain %d: %w", chainID, err)
	}
	return signed, nil
}
