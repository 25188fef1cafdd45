package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"barn-economy-backend/internal/common/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

// Backend is the subset of ethclient.Client used by the gateway.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type EVMConfig struct {
	RPCURL         string
	ChainID        int64
	DistributorKey string
	TokenAddress   string
}

// EVMGateway pays rewards as ERC-20 transfers from a hot distributor wallet.
type EVMGateway struct {
	backend      Backend
	key          *ecdsa.PrivateKey
	from         common.Address
	token        common.Address
	chainID      *big.Int
	erc20        abi.ABI
	pollInterval time.Duration

	// sign and send are serialized so concurrent claims get distinct nonces
	sendMu sync.Mutex
}

// DialEVMGateway connects to the RPC endpoint. It returns DisabledGateway
// when the configuration is incomplete.
func DialEVMGateway(ctx context.Context, cfg EVMConfig) (Gateway, error) {
	if cfg.RPCURL == "" || cfg.DistributorKey == "" || cfg.TokenAddress == "" {
		logger.Warn().Msg("Chain gateway not configured, rewards stay pending")
		return DisabledGateway{}, nil
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	return NewEVMGateway(client, cfg)
}

func NewEVMGateway(backend Backend, cfg EVMConfig) (*EVMGateway, error) {
	key, err := ParsePrivateKey(cfg.DistributorKey)
	if err != nil {
		return nil, fmt.Errorf("invalid distributor key: %w", err)
	}
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, fmt.Errorf("invalid token address %q", cfg.TokenAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}

	g := &EVMGateway{
		backend:      backend,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		token:        common.HexToAddress(cfg.TokenAddress),
		chainID:      big.NewInt(cfg.ChainID),
		erc20:        parsed,
		pollInterval: 2 * time.Second,
	}

	logger.Info().
		Str("distributor", g.from.Hex()).
		Str("token", g.token.Hex()).
		Int64("chain_id", cfg.ChainID).
		Msg("Chain gateway initialized")
	return g, nil
}

func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
}

func (g *EVMGateway) Enabled() bool { return true }

func (g *EVMGateway) TokenAddress() string { return strings.ToLower(g.token.Hex()) }

// Transfer broadcasts an ERC-20 transfer and waits for it to be mined until
// ctx expires. Expiry or a send error after signing yields ErrPending with
// the hash.
func (g *EVMGateway) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if !common.IsHexAddress(req.To) {
		return nil, fmt.Errorf("invalid recipient address %q", req.To)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid transfer amount")
	}

	data, err := g.erc20.Pack("transfer", common.HexToAddress(req.To), req.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer: %w", err)
	}

	signed, err := g.send(ctx, req, data)
	if signed == nil {
		return nil, err
	}
	result := &TransferResult{TxHash: signed.Hash().Hex()}
	if err != nil {
		logger.Warn().
			Err(err).
			Str("claim_id", req.ClaimID).
			Str("tx_hash", result.TxHash).
			Msg("Reward transfer send failed, the node may still have it")
		return result, err
	}

	logger.Info().
		Str("claim_id", req.ClaimID).
		Str("tx_hash", result.TxHash).
		Str("to", req.To).
		Str("amount", req.Amount.String()).
		Msg("Reward transfer broadcast")

	receipt, err := g.waitMined(ctx, signed.Hash())
	if err != nil {
		return result, ErrPending
	}
	result.BlockNumber = receipt.BlockNumber.Uint64()
	if receipt.Status != types.ReceiptStatusSuccessful {
		return result, ErrReverted
	}
	return result, nil
}

// send signs the transfer and hands it to the node. A nil transaction means
// nothing was broadcast. A send error comes back with the signed transaction
// wrapped in ErrPending, since the node may have accepted it anyway.
func (g *EVMGateway) send(ctx context.Context, req TransferRequest, data []byte) (*types.Transaction, error) {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	nonce, err := g.backend.PendingNonceAt(ctx, g.from)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrNotBroadcast, err)
	}
	tip, err := g.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas tip: %v", ErrNotBroadcast, err)
	}
	head, err := g.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: head: %v", ErrNotBroadcast, err)
	}
	feeCap := new(big.Int).Mul(tip, big.NewInt(2))
	if head.BaseFee != nil {
		feeCap = new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gas, err := g.backend.EstimateGas(ctx, ethereum.CallMsg{From: g.from, To: &g.token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%w: gas estimation: %v", ErrNotBroadcast, err)
	}
	gas = gas * 120 / 100

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   g.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &g.token,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), g.key)
	if err != nil {
		return nil, fmt.Errorf("%w: sign: %v", ErrNotBroadcast, err)
	}
	if req.BeforeBroadcast != nil {
		if err := req.BeforeBroadcast(ctx, signed.Hash().Hex()); err != nil {
			return nil, fmt.Errorf("%w: record hash: %v", ErrNotBroadcast, err)
		}
	}
	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		return signed, fmt.Errorf("%w: send: %v", ErrPending, err)
	}
	return signed, nil
}

func (g *EVMGateway) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			logger.Debug().Err(err).Str("tx_hash", hash.Hex()).Msg("Receipt lookup failed, retrying")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *EVMGateway) Lookup(ctx context.Context, txHash string) (*TransferResult, error) {
	receipt, err := g.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return &TransferResult{TxHash: txHash}, ErrPending
		}
		return nil, fmt.Errorf("%w: receipt: %v", ErrUnavailable, err)
	}
	result := &TransferResult{TxHash: txHash, BlockNumber: receipt.BlockNumber.Uint64()}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return result, ErrReverted
	}
	return result, nil
}
