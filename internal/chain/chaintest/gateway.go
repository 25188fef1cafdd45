// Package chaintest provides a scriptable reward gateway for tests.
package chaintest

import (
	"context"
	"fmt"
	"sync"

	"barn-economy-backend/internal/chain"
)

// Gateway records transfers and answers with preset results.
type Gateway struct {
	mu sync.Mutex

	Disabled bool
	Token    string
	// RejectErr fails a transfer before anything is broadcast.
	RejectErr error
	// TransferErr is returned after the transfer was broadcast, e.g.
	// ErrPending for a timeout or a transport error the node ignored.
	TransferErr error
	// TransferResult is returned alongside TransferErr when set. Its TxHash
	// replaces the generated one.
	TransferResult *chain.TransferResult
	// CrashAfterBroadcast panics right after a broadcast, standing in for a
	// process that stops before the caller sees the result.
	CrashAfterBroadcast bool
	Lookups             map[string]LookupResult

	Transfers []chain.TransferRequest
	block     uint64
}

type LookupResult struct {
	Result *chain.TransferResult
	Err    error
}

func New() *Gateway {
	return &Gateway{Token: "0x00000000000000000000000000000000000000aa", Lookups: map[string]LookupResult{}}
}

func (g *Gateway) Enabled() bool { return !g.Disabled }

func (g *Gateway) TokenAddress() string {
	if g.Disabled {
		return ""
	}
	return g.Token
}

func (g *Gateway) Transfer(ctx context.Context, req chain.TransferRequest) (*chain.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Disabled {
		return nil, chain.ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrNotBroadcast, err)
	}
	if g.RejectErr != nil {
		return nil, g.RejectErr
	}

	hash := fmt.Sprintf("0x%064x", len(g.Transfers)+1)
	if g.TransferResult != nil && g.TransferResult.TxHash != "" {
		hash = g.TransferResult.TxHash
	}
	if req.BeforeBroadcast != nil {
		if err := req.BeforeBroadcast(ctx, hash); err != nil {
			return nil, fmt.Errorf("%w: %v", chain.ErrNotBroadcast, err)
		}
	}
	g.Transfers = append(g.Transfers, req)
	if g.CrashAfterBroadcast {
		panic("chaintest: stopped after broadcast of " + hash)
	}

	if g.TransferErr != nil {
		return g.TransferResult, g.TransferErr
	}
	if g.TransferResult != nil {
		return g.TransferResult, nil
	}
	g.block++
	return &chain.TransferResult{TxHash: hash, BlockNumber: 100 + g.block}, nil
}

// BroadcastsFor counts transfers sent for one claim.
func (g *Gateway) BroadcastsFor(claimID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, t := range g.Transfers {
		if t.ClaimID == claimID {
			n++
		}
	}
	return n
}

func (g *Gateway) Lookup(_ context.Context, txHash string) (*chain.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Disabled {
		return nil, chain.ErrNotConfigured
	}
	res, ok := g.Lookups[txHash]
	if !ok {
		return nil, chain.ErrPending
	}
	return res.Result, res.Err
}

func (g *Gateway) TransferCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Transfers)
}

var _ chain.Gateway = (*Gateway)(nil)
