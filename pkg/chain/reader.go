// Package chain wraps the read-only blockchain queries behind the ownership
// decision: a direct balance lookup, transaction/receipt lookup with
// transfer-log decoding, and a single-owner fallback.
package chain

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the slice of the Ethereum client the reader needs.
// Satisfied by *ethclient.Client; fakes implement it in tests.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// balanceOf(address,uint256) covers ERC-1155; ownerOf(uint256) is the
// ERC-721 fallback for contracts without a per-id balance accessor.
const viewABIJSON = `[
	{
		"inputs": [
			{"name": "account", "type": "address"},
			{"name": "id", "type": "uint256"}
		],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"name": "ownerOf",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

type cacheEntry struct {
	owned     bool
	expiresAt time.Time
}

// Reader performs the read-only ownership queries against the token contract.
type Reader struct {
	backend  Backend
	contract common.Address
	viewABI  abi.ABI
	timeout  time.Duration
	cacheTTL time.Duration
	owns     *ethclient.Client // set when we dialed the connection ourselves

	mu    sync.RWMutex
	cache map[string]cacheEntry // wallet:tokenId → cached balance result
}

// NewReader creates a reader over an injected backend.
func NewReader(backend Backend, contract common.Address, callTimeout, cacheTTL time.Duration) (*Reader, error) {
	parsed, err := abi.JSON(strings.NewReader(viewABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing view ABI: %w", err)
	}

	r := &Reader{
		backend:  backend,
		contract: contract,
		viewABI:  parsed,
		timeout:  callTimeout,
		cacheTTL: cacheTTL,
		cache:    make(map[string]cacheEntry),
	}

	if cacheTTL > 0 {
		go r.cleanup()
	}
	return r, nil
}

// Dial connects to an Ethereum RPC endpoint and creates a reader over it.
func Dial(rpcURL, contract string, callTimeout, cacheTTL time.Duration) (*Reader, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to Ethereum RPC: %w", err)
	}

	r, err := NewReader(client, common.HexToAddress(contract), callTimeout, cacheTTL)
	if err != nil {
		client.Close()
		return nil, err
	}
	r.owns = client
	return r, nil
}

// Contract returns the configured token contract address.
func (r *Reader) Contract() common.Address {
	return r.contract
}

// HasBalance reports whether wallet holds a nonzero balance of tokenID.
// Any call failure (including a contract without a per-id balance accessor)
// is treated as not owned. Successful results are cached for cacheTTL.
func (r *Reader) HasBalance(ctx context.Context, wallet common.Address, tokenID *big.Int) bool {
	key := cacheKey(wallet, tokenID)

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && time.Now().Before(entry.expiresAt) {
		r.mu.RUnlock()
		return entry.owned
	}
	r.mu.RUnlock()

	owned, err := r.balanceOf(ctx, wallet, tokenID)
	if err != nil {
		log.Printf("[chain] balance check failed for %s token %s: %v", wallet.Hex(), tokenID, err)
		return false
	}

	if r.cacheTTL > 0 {
		r.mu.Lock()
		r.cache[key] = cacheEntry{owned: owned, expiresAt: time.Now().Add(r.cacheTTL)}
		r.mu.Unlock()
	}
	return owned
}

func (r *Reader) balanceOf(ctx context.Context, wallet common.Address, tokenID *big.Int) (bool, error) {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	callData, err := r.viewABI.Pack("balanceOf", wallet, tokenID)
	if err != nil {
		return false, fmt.Errorf("packing balanceOf: %w", err)
	}

	output, err := r.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &r.contract,
		Data: callData,
	}, nil)
	if err != nil {
		return false, fmt.Errorf("calling balanceOf: %w", err)
	}

	results, err := r.viewABI.Unpack("balanceOf", output)
	if err != nil {
		return false, fmt.Errorf("unpacking balanceOf: %w", err)
	}

	bal, ok := results[0].(*big.Int)
	if !ok {
		return false, fmt.Errorf("unexpected type for balance: %T", results[0])
	}
	return bal.Sign() > 0, nil
}

// OwnerOf returns the single owner of record for tokenID. Nonexistent
// tokens and contracts without ownerOf yield ok = false, not an error.
func (r *Reader) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, bool) {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()

	callData, err := r.viewABI.Pack("ownerOf", tokenID)
	if err != nil {
		log.Printf("[chain] packing ownerOf: %v", err)
		return common.Address{}, false
	}

	output, err := r.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &r.contract,
		Data: callData,
	}, nil)
	if err != nil {
		log.Printf("[chain] ownerOf lookup failed for token %s: %v", tokenID, err)
		return common.Address{}, false
	}

	results, err := r.viewABI.Unpack("ownerOf", output)
	if err != nil {
		log.Printf("[chain] unpacking ownerOf: %v", err)
		return common.Address{}, false
	}

	owner, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, false
	}
	return owner, true
}

// VerifyTransfer reports whether the transaction's receipt shows tokenID
// arriving at wallet. It scans the receipt's logs in order, first match
// wins; if no log matches, the current owner of record is accepted as a
// fallback. The transaction sender is deliberately not required to be the
// wallet: marketplace and gift transfers are legitimate evidence.
func (r *Reader) VerifyTransfer(ctx context.Context, txHash common.Hash, wallet common.Address, tokenID *big.Int) bool {
	tx, pending, err := r.transactionByHash(ctx, txHash)
	if err != nil {
		log.Printf("[chain] transaction lookup failed for %s: %v", txHash.Hex(), err)
		return false
	}
	if pending {
		return false
	}
	if to := tx.To(); to == nil || *to != r.contract {
		// Routed transfers (marketplaces) hit the contract indirectly;
		// the receipt logs remain authoritative.
		log.Printf("[chain] tx %s target is not the token contract, checking logs anyway", txHash.Hex())
	}

	receipt, err := r.transactionReceipt(ctx, txHash)
	if err != nil {
		log.Printf("[chain] receipt lookup failed for %s: %v", txHash.Hex(), err)
		return false
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return false
	}

	for _, l := range receipt.Logs {
		if l.Address != r.contract {
			continue
		}
		ev, ok := DecodeTransferLog(*l)
		if !ok {
			continue
		}
		if ev.Delivers(wallet, tokenID) {
			log.Printf("[chain] %s log in tx %s moved token %s to %s",
				ev.Kind, txHash.Hex(), tokenID, wallet.Hex())
			return true
		}
	}

	// No matching log; accept present-tense ownership of record.
	owner, ok := r.OwnerOf(ctx, tokenID)
	return ok && owner == wallet
}

// Invalidate drops cached balance results for a wallet.
func (r *Reader) Invalidate(wallet common.Address) {
	prefix := strings.ToLower(wallet.Hex()) + ":"
	r.mu.Lock()
	for key := range r.cache {
		if strings.HasPrefix(key, prefix) {
			delete(r.cache, key)
		}
	}
	r.mu.Unlock()
}

// CacheSize returns the number of cached balance entries.
func (r *Reader) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Close shuts down the Ethereum client if the reader dialed it.
func (r *Reader) Close() {
	if r.owns != nil {
		r.owns.Close()
	}
}

func (r *Reader) transactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()
	return r.backend.TransactionByHash(ctx, txHash)
}

func (r *Reader) transactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := r.callCtx(ctx)
	defer cancel()
	return r.backend.TransactionReceipt(ctx, txHash)
}

func (r *Reader) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func cacheKey(wallet common.Address, tokenID *big.Int) string {
	return strings.ToLower(wallet.Hex()) + ":" + tokenID.String()
}

// cleanup periodically removes expired cache entries.
func (r *Reader) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		r.mu.Lock()
		now := time.Now()
		for key, entry := range r.cache {
			if now.After(entry.expiresAt) {
				delete(r.cache, key)
			}
		}
		r.mu.Unlock()
	}
}
