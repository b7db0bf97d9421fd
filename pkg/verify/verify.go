// Package verify combines the three pieces of ownership evidence — a
// facilitator-attested payment, a live token balance, and an on-chain
// transfer receipt — into a single verified/unverified decision, with
// replay protection on the transaction hash.
package verify

import (
	"context"
	"errors"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainproof/nftgate/pkg/replay"
)

// ErrAlreadyUsed is returned when the transaction hash was consumed by a
// prior successful verification. Distinct from a failed verification: the
// caller gets a hard rejection, not a diagnostic outcome.
var ErrAlreadyUsed = errors.New("transaction already used")

// PaymentChecker asks the payment facilitator whether a transaction
// settled a payment. Degrades to false, never errors.
type PaymentChecker interface {
	CheckPayment(ctx context.Context, txHash, wallet, tokenID string) bool
}

// TokenReader performs the on-chain ownership reads.
type TokenReader interface {
	HasBalance(ctx context.Context, wallet common.Address, tokenID *big.Int) bool
	VerifyTransfer(ctx context.Context, txHash common.Hash, wallet common.Address, tokenID *big.Int) bool
}

// Request is one verification attempt. TokenID is a canonical decimal
// string; Wallet and TxHash keep the caller's original hex rendering for
// the facilitator call, with parsed forms for the chain reads.
type Request struct {
	Wallet  string
	TokenID string
	TxHash  string
}

// Outcome is the per-check result of one verification. Ephemeral; nothing
// here is stored.
type Outcome struct {
	PaymentOK        bool
	OwnsToken        bool
	TransferVerified bool
	Verified         bool
}

// Verifier orchestrates the verification decision.
type Verifier struct {
	replay  replay.Store
	payment PaymentChecker
	chain   TokenReader
}

// New creates a verifier over the three collaborators.
func New(store replay.Store, payment PaymentChecker, chain TokenReader) *Verifier {
	return &Verifier{replay: store, payment: payment, chain: chain}
}

// Verify runs the decision procedure:
//
//	replay check → payment check → balance check → transfer-receipt check,
//
// accepting any single positive result. The replay check runs first and
// rejects before any external call. The hash is consumed only on success,
// so a failed verification can be retried with corrected evidence.
func (v *Verifier) Verify(ctx context.Context, req Request) (Outcome, error) {
	seen, err := v.replay.Seen(ctx, req.TxHash)
	if err != nil {
		// Store trouble is a collaborator failure: degrade to unseen and
		// let the atomic insert below keep duplicates out.
		log.Printf("[verify] replay lookup failed for %s: %v", req.TxHash, err)
	} else if seen {
		return Outcome{}, ErrAlreadyUsed
	}

	wallet := common.HexToAddress(req.Wallet)
	tokenID, ok := new(big.Int).SetString(req.TokenID, 10)
	if !ok {
		tokenID = big.NewInt(0)
	}
	txHash := common.HexToHash(req.TxHash)

	out := Outcome{
		PaymentOK: v.payment.CheckPayment(ctx, req.TxHash, req.Wallet, req.TokenID),
	}
	out.OwnsToken = v.chain.HasBalance(ctx, wallet, tokenID)
	out.TransferVerified = v.chain.VerifyTransfer(ctx, txHash, wallet, tokenID)
	out.Verified = out.PaymentOK || out.OwnsToken || out.TransferVerified

	if out.Verified {
		inserted, err := v.replay.Insert(ctx, req.TxHash)
		if err != nil {
			log.Printf("[verify] replay insert failed for %s: %v", req.TxHash, err)
		} else if !inserted {
			// A concurrent request consumed the hash between our check
			// and this insert.
			return Outcome{}, ErrAlreadyUsed
		}
	}

	return out, nil
}
