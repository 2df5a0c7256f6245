package payout

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// nativeDecimals is the precision of every EVM native asset (wei).
const nativeDecimals = 18

// EthClient pays intents on an EVM chain with a native value transfer of
// amount_atomic wei to the destination address. Only intents naming the
// configured chain and its native asset at 18 decimals are accepted.
type EthClient struct {
	client         *ethclient.Client
	key            *ecdsa.PrivateKey
	from           common.Address
	chainID        *big.Int
	chainName      string
	nativeAsset    string
	receiptTimeout time.Duration

	// serializes nonce allocation
	mu sync.Mutex
}

type EthClientConfig struct {
	RPCURL         string
	PrivateKeyHex  string
	ChainID        int64
	// ChainName is the dest_chain this client serves. Empty accepts any.
	ChainName string
	// NativeAsset defaults to ETH.
	NativeAsset    string
	ReceiptTimeout time.Duration
}

func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("private key is required for sending payouts")
	}

	pk, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = cli.ChainID(ctx)
		if err != nil {
			cli.Close()
			return nil, fmt.Errorf("fetch chain id: %w", err)
		}
	}

	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	asset := strings.TrimSpace(cfg.NativeAsset)
	if asset == "" {
		asset = "ETH"
	}

	return &EthClient{
		client:         cli,
		key:            pk,
		from:           crypto.PubkeyToAddress(pk.PublicKey),
		chainID:        chainID,
		chainName:      strings.TrimSpace(cfg.ChainName),
		nativeAsset:    asset,
		receiptTimeout: timeout,
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (c *EthClient) Close() {
	c.client.Close()
}

func (c *EthClient) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := c.client.BlockNumber(ctx)
	return err
}

// Pay signs and broadcasts the transfer, then waits for it to be mined.
func (c *EthClient) Pay(ctx context.Context, ins Instruction) (Receipt, error) {
	if err := c.checkInstruction(ins); err != nil {
		return Receipt{}, err
	}

	tx, err := c.send(ctx, common.HexToAddress(ins.DestAddress), ins.Amount.Big())
	if err != nil {
		return Receipt{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()
	receipt, err := WaitForReceipt(waitCtx, c.client, tx)
	if err != nil {
		return Receipt{}, fmt.Errorf("wait for payout %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Receipt{}, fmt.Errorf("payout %s reverted", tx.Hash().Hex())
	}
	return Receipt{TxHash: tx.Hash().Hex()}, nil
}

// checkInstruction rejects anything a native transfer on this chain would
// misrepresent. It never touches the network.
func (c *EthClient) checkInstruction(ins Instruction) error {
	if c.chainName != "" && ins.DestChain != c.chainName {
		return fmt.Errorf("%w: intent %s targets chain %q, client serves %q",
			ErrPermanent, ins.IntentID, ins.DestChain, c.chainName)
	}
	asset := c.nativeAsset
	if asset == "" {
		asset = "ETH"
	}
	if !strings.EqualFold(strings.TrimSpace(ins.DestAsset), asset) {
		return fmt.Errorf("%w: intent %s asks for asset %q, only native %s is supported",
			ErrPermanent, ins.IntentID, ins.DestAsset, asset)
	}
	if ins.Decimals != nativeDecimals {
		return fmt.Errorf("%w: intent %s uses %d decimals, native %s has %d",
			ErrPermanent, ins.IntentID, ins.Decimals, asset, nativeDecimals)
	}
	if !common.IsHexAddress(ins.DestAddress) {
		return fmt.Errorf("%w: invalid destination address %q", ErrPermanent, ins.DestAddress)
	}
	if ins.Amount.IsZero() {
		return fmt.Errorf("%w: zero amount for intent %s", ErrPermanent, ins.IntentID)
	}
	return nil
}

func (c *EthClient) send(ctx context.Context, to common.Address, value *big.Int) (*types.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	tip, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest tip: %w", err)
	}
	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(baseFee, big.NewInt(2)))

	gas, err := c.client.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Value: value})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign payout: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send payout: %w", err)
	}
	return signed, nil
}

// WaitForReceipt polls until the transaction is mined or context cancelled.
func WaitForReceipt(ctx context.Context, client *ethclient.Client, tx *types.Transaction) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, tx.Hash())
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
