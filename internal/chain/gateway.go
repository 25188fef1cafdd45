// Package chain talks to the EVM network that pays out rewards: ERC-20
// transfers from the distributor wallet, receipt lookups, and EIP-712
// signatures for client-executed claims.
package chain

import (
	"context"
	"errors"
	"math/big"
)

var (
	// ErrNotConfigured means no distributor wallet or RPC endpoint is set.
	ErrNotConfigured = errors.New("reward gateway not configured")
	// ErrPending means the transfer was broadcast but not mined in time.
	// The accompanying TransferResult carries the tx hash.
	ErrPending = errors.New("transfer broadcast, awaiting confirmation")
	// ErrNotBroadcast means the transfer failed before it was handed to the
	// network (nonce, fee, gas estimate or signing). Nothing can be mined, so
	// the transfer may be attempted again.
	ErrNotBroadcast = errors.New("transfer not broadcast")
	// ErrUnavailable wraps transport failures of receipt lookups.
	ErrUnavailable = errors.New("reward gateway unavailable")
	// ErrReverted means the transaction was mined with a failed status.
	ErrReverted = errors.New("transfer reverted")
)

type TransferRequest struct {
	ClaimID string
	To      string
	Amount  *big.Int
	// BeforeBroadcast, when set, receives the signed tx hash before the
	// transaction is sent. An error aborts the transfer with ErrNotBroadcast.
	BeforeBroadcast func(ctx context.Context, txHash string) error
}

type TransferResult struct {
	TxHash      string
	BlockNumber uint64
}

// Gateway executes reward transfers.
type Gateway interface {
	Enabled() bool
	TokenAddress() string
	// Transfer pays req.Amount to req.To. Once the transaction may have
	// reached the network, errors other than ErrReverted wrap ErrPending and
	// the result carries the tx hash.
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	// Lookup reports the outcome of a broadcast transfer. It returns
	// ErrPending while the receipt is not yet available and ErrReverted with
	// the result for failed transactions.
	Lookup(ctx context.Context, txHash string) (*TransferResult, error)
}

// DisabledGateway is used when no chain configuration is present.
type DisabledGateway struct{}

func (DisabledGateway) Enabled() bool        { return false }
func (DisabledGateway) TokenAddress() string { return "" }

func (DisabledGateway) Transfer(context.Context, TransferRequest) (*TransferResult, error) {
	return nil, ErrNotConfigured
}

func (DisabledGateway) Lookup(context.Context, string) (*TransferResult, error) {
	return nil, ErrNotConfigured
}
