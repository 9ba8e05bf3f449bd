package eth1

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
)

// depositABI is the deposit function of the canonical beacon chain deposit
// contract.
const depositABI = `[{"inputs":[{"internalType":"bytes","name":"pubkey","type":"bytes"},{"internalType":"bytes","name":"withdrawal_credentials","type":"bytes"},{"internalType":"bytes","name":"signature","type":"bytes"},{"internalType":"bytes32","name":"deposit_data_root","type":"bytes32"}],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"}]`

const transferGasLimit = 21000

// Client drives the deposit contract and plain value transfers over a
// single execution layer JSON-RPC endpoint.
type Client struct {
	logger   *slog.Logger
	client   *ethclient.Client
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
}

var _ Sink = (*Client)(nil)
var _ Transferor = (*Client)(nil)

func NewClient(ctx context.Context, logger *slog.Logger, eth1URL string, depositContract common.Address, key *ecdsa.PrivateKey) (*Client, error) {
	logger = logger.With("component", "eth1-client")

	client, err := ethclient.DialContext(ctx, eth1URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial execution client: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(depositABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to parse deposit contract ABI: %w", err)
	}

	return &Client{
		logger:   logger,
		client:   client,
		contract: bind.NewBoundContract(depositContract, parsed, client, client, client),
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
	}, nil
}

func (c *Client) Close() {
	c.client.Close()
}

func gweiToWei(amount phase0.Gwei) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(uint64(amount)), big.NewInt(params.GWei))
}

// SubmitDeposit calls deposit() on the deposit contract with the exact
// stake attached and waits for the transaction to be mined. A mined
// transaction with a failed receipt status is reported as an error, not
// swallowed.
func (c *Client) SubmitDeposit(
	ctx context.Context,
	pubkey phase0.BLSPubKey,
	withdrawalCredentials [32]byte,
	signature phase0.BLSSignature,
	depositDataRoot phase0.Root,
	amount phase0.Gwei,
) error {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return fmt.Errorf("failed to build transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = gweiToWei(amount)

	start := time.Now()
	tx, err := c.contract.Transact(opts, "deposit",
		pubkey[:], withdrawalCredentials[:], signature[:], [32]byte(depositDataRoot))
	if err != nil {
		return fmt.Errorf("failed to send deposit transaction: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return fmt.Errorf("failed to wait for deposit transaction %s: %w", tx.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("deposit transaction %s reverted", tx.Hash())
	}

	c.logger.Info("submitted deposit",
		"pubkey", pubkey.String(),
		"amount_gwei", uint64(amount),
		"tx", tx.Hash(),
		"duration", time.Since(start))
	return nil
}

// Transfer sends amount to an address and waits for inclusion, checking
// the receipt status rather than trusting the absence of an error.
func (c *Client) Transfer(ctx context.Context, to common.Address, amount phase0.Gwei) error {
	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    gweiToWei(amount),
		Gas:      transferGasLimit,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return fmt.Errorf("failed to sign transfer: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("failed to send transfer: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.client, signed)
	if err != nil {
		return fmt.Errorf("failed to wait for transfer %s: %w", signed.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transfer %s reverted", signed.Hash())
	}

	c.logger.Info("sent transfer", "to", to, "amount_gwei", uint64(amount), "tx", signed.Hash())
	return nil
}
