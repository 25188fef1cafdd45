package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
)

// ClaimType is the uint8 discriminator signed into a claim.
type ClaimType uint8

const (
	ClaimTypeDailyBonus ClaimType = 0
	ClaimTypeGameReward ClaimType = 1
)

type SignerConfig struct {
	Key           string
	ChainID       int64
	Contract      string
	DomainName    string
	DomainVersion string
}

// ClaimAuthorization is what the claim contract verifies.
type ClaimAuthorization struct {
	Recipient string
	Amount    *big.Int
	Nonce     *big.Int
	Deadline  time.Time
	ClaimType ClaimType
}

// SignedClaim is returned to the client for a gasless claim.
// @Description EIP-712 claim authorization
type SignedClaim struct {
	Signature       string `json:"signature"`
	Digest          string `json:"digest"`
	Signer          string `json:"signer"`
	Amount          string `json:"amount"`
	Nonce           string `json:"nonce"`
	Deadline        int64  `json:"deadline"`
	ContractAddress string `json:"contractAddress"`
	ChainID         int64  `json:"chainId"`
}

// ClaimSigner produces EIP-712 signatures over
// Claim(address recipient,uint256 amount,uint256 nonce,uint256 deadline,uint8 claimType).
type ClaimSigner struct {
	key      *ecdsa.PrivateKey
	chainID  int64
	contract common.Address
	name     string
	version  string
}

// NewClaimSigner returns nil when no signer key or contract is configured.
func NewClaimSigner(cfg SignerConfig) (*ClaimSigner, error) {
	if cfg.Key == "" || cfg.Contract == "" {
		return nil, nil
	}
	key, err := ParsePrivateKey(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("invalid claim contract %q", cfg.Contract)
	}
	return &ClaimSigner{
		key:      key,
		chainID:  cfg.ChainID,
		contract: common.HexToAddress(cfg.Contract),
		name:     cfg.DomainName,
		version:  cfg.DomainVersion,
	}, nil
}

func (s *ClaimSigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// NonceFromClaimID maps a claim UUID onto a uint256 nonce, so every claim
// row can be redeemed on-chain at most once.
func NonceFromClaimID(id string) (*big.Int, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid claim id: %w", err)
	}
	return new(big.Int).SetBytes(u[:]), nil
}

func (s *ClaimSigner) typedData(auth ClaimAuthorization) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Claim": {
				{Name: "recipient", Type: "address"},
				{Name: "amount", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
				{Name: "claimType", Type: "uint8"},
			},
		},
		PrimaryType: "Claim",
		Domain: apitypes.TypedDataDomain{
			Name:              s.name,
			Version:           s.version,
			ChainId:           math.NewHexOrDecimal256(s.chainID),
			VerifyingContract: s.contract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"recipient": common.HexToAddress(auth.Recipient).Hex(),
			"amount":    auth.Amount.String(),
			"nonce":     auth.Nonce.String(),
			"deadline":  fmt.Sprintf("%d", auth.Deadline.Unix()),
			"claimType": fmt.Sprintf("%d", auth.ClaimType),
		},
	}
}

// Digest returns the EIP-712 hash that gets signed.
func (s *ClaimSigner) Digest(auth ClaimAuthorization) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(s.typedData(auth))
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return hash, nil
}

func (s *ClaimSigner) Sign(auth ClaimAuthorization) (*SignedClaim, error) {
	if !common.IsHexAddress(auth.Recipient) {
		return nil, fmt.Errorf("invalid recipient %q", auth.Recipient)
	}
	if auth.Amount == nil || auth.Amount.Sign() <= 0 || auth.Nonce == nil {
		return nil, fmt.Errorf("amount and nonce are required")
	}

	digest, err := s.Digest(auth)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign claim: %w", err)
	}
	// contracts expect v in {27, 28}
	sig[crypto.RecoveryIDOffset] += 27

	return &SignedClaim{
		Signature:       hexutil.Encode(sig),
		Digest:          hexutil.Encode(digest),
		Signer:          strings.ToLower(s.Address().Hex()),
		Amount:          auth.Amount.String(),
		Nonce:           auth.Nonce.String(),
		Deadline:        auth.Deadline.Unix(),
		ContractAddress: strings.ToLower(s.contract.Hex()),
		ChainID:         s.chainID,
	}, nil
}
