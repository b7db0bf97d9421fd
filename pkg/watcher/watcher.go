// Package watcher subscribes to transfer events on the token contract and
// invalidates cached balance results for both ends of each transfer, so
// ownership checks see moved tokens promptly instead of waiting out the
// cache TTL.
package watcher

import (
	"context"
	"log"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/chainproof/nftgate/pkg/chain"
)

// Transfer event signatures (keccak256)
var (
	// Transfer(address indexed from, address indexed to, uint256 indexed tokenId)
	transferSig = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	// TransferSingle(address indexed operator, address indexed from, address indexed to, uint256 id, uint256 value)
	transferSingleSig = common.HexToHash("0xc3d58168c5ae7397731d063d5bbf3d657854427343f4c083240f7aacaa2d0f62")
	// TransferBatch(address indexed operator, address indexed from, address indexed to, uint256[] ids, uint256[] values)
	transferBatchSig = common.HexToHash("0x4a39dc06d4c0dbc64b70af90fd698a233a518aa5d07e595d983b8c0526c8f7fb")
)

// CacheInvalidator drops cached ownership results for a wallet.
// Implemented by *chain.Reader.
type CacheInvalidator interface {
	Invalidate(wallet common.Address)
}

// Watcher monitors transfer events on the token contract.
type Watcher struct {
	client   *ethclient.Client
	contract common.Address
	cache    CacheInvalidator
	cancel   context.CancelFunc
}

// NewWatcher creates a transfer event watcher.
// The wsURL should be a WebSocket Ethereum RPC endpoint (wss://).
func NewWatcher(wsURL string, contract common.Address, cache CacheInvalidator) (*Watcher, error) {
	client, err := ethclient.Dial(wsURL)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		client:   client,
		contract: contract,
		cache:    cache,
	}, nil
}

// Start begins watching for transfer events. Blocks until context is
// cancelled. Automatically reconnects on errors.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			err := w.subscribe(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[watcher] Subscription error, reconnecting in 10s: %v", err)
				time.Sleep(10 * time.Second)
			}
		}
	}
}

// Stop cancels the watcher.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.client.Close()
}

func (w *Watcher) subscribe(ctx context.Context) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{w.contract},
		Topics: [][]common.Hash{
			{transferSig, transferSingleSig, transferBatchSig},
		},
	}

	logs := make(chan types.Log)
	sub, err := w.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	log.Printf("[watcher] Watching %s for token transfers", w.contract.Hex())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case vLog := <-logs:
			w.handleLog(vLog)
		}
	}
}

func (w *Watcher) handleLog(vLog types.Log) {
	ev, ok := chain.DecodeTransferLog(vLog)
	if !ok {
		return
	}

	zeroAddr := common.Address{}

	// Sender lost the token; receiver gained it. Both cached results are
	// stale now. Mints (from == 0) and burns (to == 0) touch one side.
	if ev.From != zeroAddr {
		w.cache.Invalidate(ev.From)
	}
	if ev.To != zeroAddr {
		w.cache.Invalidate(ev.To)
	}

	log.Printf("[watcher] %s: from=%s to=%s", ev.Kind, truncAddr(ev.From), truncAddr(ev.To))
}

func truncAddr(addr common.Address) string {
	hex := addr.Hex()
	if len(hex) > 10 {
		return hex[:6] + "..." + hex[len(hex)-4:]
	}
	return hex
}
