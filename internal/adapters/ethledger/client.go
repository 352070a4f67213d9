// Package ethledger connects the ledger verifier and the registration
// service to the identity contract over Ethereum JSON-RPC.
package ethledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"rzr-relay/go-backend/internal/identity"
	"rzr-relay/go-backend/internal/ledger"
	"rzr-relay/go-backend/internal/registration"
)

const (
	componentName = "ethledger"

	// DefaultPollInterval paces log polling on endpoints without
	// subscriptions.
	DefaultPollInterval = 4 * time.Second
)

var ErrUnexpectedOutput = errors.New("ethledger: unexpected contract output")

// Signer signs transaction digests with the node key; v is 0 or 1.
type Signer interface {
	Address() identity.Address
	SignHash(hash []byte) ([]byte, error)
}

type Client struct {
	eth      *ethclient.Client
	contract common.Address
	abi      abi.ABI
	eventID  common.Hash
	signer   Signer
	logger   *slog.Logger

	pollInterval time.Duration
}

// Dial connects to rpcURL. Websocket and IPC endpoints stream live logs;
// plain HTTP endpoints are polled.
func Dial(ctx context.Context, rpcURL, contract string, signer Signer, logger *slog.Logger) (*Client, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("ethledger: invalid contract address %q", contract)
	}
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ethledger: dial: %w", err)
	}
	return New(eth, common.HexToAddress(contract), signer, logger)
}

func New(eth *ethclient.Client, contract common.Address, signer Signer, logger *slog.Logger) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		eth:      eth,
		contract: contract,
		abi:      parsed,
		eventID:  parsed.Events["Event"].ID,
		signer:   signer,
		logger:   logger,

		pollInterval: DefaultPollInterval,
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) LatestHash(ctx context.Context) ([32]byte, error) {
	input, err := c.abi.Pack("latestHash")
	if err != nil {
		return [32]byte{}, err
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: input}, nil)
	if err != nil {
		return [32]byte{}, fmt.Errorf("ethledger: latestHash: %w", err)
	}
	vals, err := c.abi.Unpack("latestHash", out)
	if err != nil {
		return [32]byte{}, fmt.Errorf("ethledger: latestHash: %w", err)
	}
	if len(vals) != 1 {
		return [32]byte{}, ErrUnexpectedOutput
	}
	h, ok := vals[0].([32]byte)
	if !ok {
		return [32]byte{}, ErrUnexpectedOutput
	}
	return h, nil
}

func (c *Client) filter() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{c.eventID}},
	}
}

func (c *Client) History(ctx context.Context) ([]ledger.Log, error) {
	q := c.filter()
	q.FromBlock = big.NewInt(0)
	logs, err := c.eth.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ethledger: filter logs: %w", err)
	}
	out := make([]ledger.Log, 0, len(logs))
	for _, l := range logs {
		out = append(out, convertLog(l))
	}
	return out, nil
}

// Subscribe streams contract logs into sink in delivery order. When the
// endpoint has no notification support it polls for new blocks instead.
func (c *Client) Subscribe(ctx context.Context, sink chan<- ledger.Log) (<-chan error, error) {
	raw := make(chan types.Log, 64)
	sub, err := c.eth.SubscribeFilterLogs(ctx, c.filter(), raw)
	if errors.Is(err, rpc.ErrNotificationsUnsupported) {
		return c.poll(ctx, sink)
	}
	if err != nil {
		return nil, err
	}
	errc := make(chan error, 1)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				errc <- nil
				return
			case err := <-sub.Err():
				errc <- err
				return
			case l := <-raw:
				select {
				case sink <- convertLog(l):
				case <-ctx.Done():
					errc <- nil
					return
				}
			}
		}
	}()
	return errc, nil
}

// poll fetches logs of each new block range after the current head. A
// failed round is logged and retried on the next tick from the same block.
func (c *Client) poll(ctx context.Context, sink chan<- ledger.Log) (<-chan error, error) {
	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("ethledger: block number: %w", err)
	}
	c.logger.Info("log notifications unsupported; polling",
		"component", componentName,
		"operation", "subscribe",
		"from_block", head+1,
		"interval", c.pollInterval.String())

	errc := make(chan error, 1)
	go func() {
		next := head + 1
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				errc <- nil
				return
			case <-ticker.C:
			}
			head, err := c.eth.BlockNumber(ctx)
			if err != nil {
				c.logPollFailure(ctx, next, err)
				continue
			}
			if head < next {
				continue
			}
			q := c.filter()
			q.FromBlock = new(big.Int).SetUint64(next)
			q.ToBlock = new(big.Int).SetUint64(head)
			logs, err := c.eth.FilterLogs(ctx, q)
			if err != nil {
				c.logPollFailure(ctx, next, err)
				continue
			}
			for _, l := range logs {
				select {
				case sink <- convertLog(l):
				case <-ctx.Done():
					errc <- nil
					return
				}
			}
			next = head + 1
		}
	}()
	return errc, nil
}

func (c *Client) logPollFailure(ctx context.Context, from uint64, err error) {
	if ctx.Err() != nil {
		return
	}
	c.logger.Warn("log poll failed",
		"component", componentName,
		"operation", "poll",
		"from_block", from,
		"error", err.Error())
}

func convertLog(l types.Log) ledger.Log {
	topics := make([][32]byte, len(l.Topics))
	for i, t := range l.Topics {
		topics[i] = t
	}
	return ledger.Log{
		BlockNumber: l.BlockNumber,
		Topics:      topics,
		Data:        l.Data,
		Removed:     l.Removed,
	}
}

// SubmitRegistration sends registerIdentity as a legacy transaction signed
// by the node key.
func (c *Client) SubmitRegistration(ctx context.Context, req registration.Request) ([32]byte, error) {
	input, err := c.abi.Pack("registerIdentity",
		common.BytesToAddress(req.Account[:]),
		common.BytesToAddress(req.Identity[:]),
		req.V, req.R, req.S)
	if err != nil {
		return [32]byte{}, err
	}
	from := common.BytesToAddress(c.signer.Address().Bytes())

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return [32]byte{}, fmt.Errorf("ethledger: nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return [32]byte{}, fmt.Errorf("ethledger: gas price: %w", err)
	}
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &c.contract, Data: input})
	if err != nil {
		return [32]byte{}, fmt.Errorf("ethledger: estimate gas: %w", err)
	}
	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return [32]byte{}, fmt.Errorf("ethledger: chain id: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Value:    new(big.Int),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     input,
	})
	txSigner := types.LatestSignerForChainID(chainID)
	digest := txSigner.Hash(tx)
	sig, err := c.signer.SignHash(digest[:])
	if err != nil {
		return [32]byte{}, fmt.Errorf("ethledger: sign: %w", err)
	}
	signed, err := tx.WithSignature(txSigner, sig)
	if err != nil {
		return [32]byte{}, fmt.Errorf("ethledger: sign: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return [32]byte{}, fmt.Errorf("ethledger: send: %w", err)
	}
	c.logger.Info("registration transaction sent",
		"component", componentName,
		"operation", "submit",
		"tx", signed.Hash().Hex(),
		"nonce", nonce)
	return signed.Hash(), nil
}

// ReceiptMined reports whether txHash has a receipt in a block.
func (c *Client) ReceiptMined(ctx context.Context, txHash [32]byte) (bool, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, common.Hash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0, nil
}
