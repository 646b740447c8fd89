// Package aa builds, signs and submits ERC-4337 v0.7 user operations for
// ERC-7579 smart accounts.
package aa

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/brewit-money/wallet/internal/chain"
	"github.com/brewit-money/wallet/internal/contracts"
	"github.com/brewit-money/wallet/types"
)

const (
	DefaultReceiptTimeout   = 60 * time.Second
	DefaultExecutionTimeout = 5 * time.Minute
	defaultPollInterval     = 2 * time.Second
)

// BundlerRPC is the JSON-RPC surface used to talk to the bundler.
// *rpc.Client satisfies it.
type BundlerRPC interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

type GasEstimate struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit,omitempty"`
}

type Receipt struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	Sender        common.Address `json:"sender"`
	Nonce         *hexutil.Big   `json:"nonce"`
	Success       bool           `json:"success"`
	Reason        string         `json:"reason,omitempty"`
	ActualGasUsed *hexutil.Big   `json:"actualGasUsed"`
	Receipt       struct {
		TransactionHash common.Hash  `json:"transactionHash"`
		BlockNumber     *hexutil.Big `json:"blockNumber"`
	} `json:"receipt"`
}

type Client struct {
	backend    chain.Backend
	bundler    BundlerRPC
	entryPoint common.Address
	chainID    *big.Int
	logger     *logrus.Logger

	receiptTimeout   time.Duration
	executionTimeout time.Duration
	pollInterval     time.Duration
}

type Option func(*Client)

func WithReceiptTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.receiptTimeout = d
	}
}

func WithExecutionTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.executionTimeout = d
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

func NewClient(
	backend chain.Backend,
	bundler BundlerRPC,
	entryPoint common.Address,
	chainID *big.Int,
	logger *logrus.Logger,
	opts ...Option,
) *Client {
	c := &Client{
		backend:          backend,
		bundler:          bundler,
		entryPoint:       entryPoint,
		chainID:          chainID,
		logger:           logger.WithField("pkg", "aa.Client").Logger,
		receiptTimeout:   DefaultReceiptTimeout,
		executionTimeout: DefaultExecutionTimeout,
		pollInterval:     defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to the chain's bundler.
func Dial(ctx context.Context, ch *chain.Chain, logger *logrus.Logger, opts ...Option) (*Client, error) {
	bundler, err := rpc.DialContext(ctx, ch.Deployment.BundlerURL)
	if err != nil {
		return nil, fmt.Errorf("rpc.DialContext(bundler): %w", err)
	}
	return NewClient(
		ch.Backend,
		bundler,
		ch.Deployment.EntryPoint,
		new(big.Int).SetUint64(ch.Deployment.ChainID),
		logger,
		opts...,
	), nil
}

func (c *Client) EntryPoint() common.Address {
	return c.entryPoint
}

func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// Hash is the EntryPoint hash of op on this client's chain.
func (c *Client) Hash(op *UserOperation) (common.Hash, error) {
	return op.Hash(c.entryPoint, c.chainID)
}

func (c *Client) Nonce(ctx context.Context, account, validator common.Address) (*big.Int, error) {
	res, err := chain.Call(ctx, c.backend, c.entryPoint, contracts.EntryPoint, "getNonce", account, NonceKey(validator))
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}
	nonce, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonce type %T", res[0])
	}
	return nonce, nil
}

func (c *Client) fees(ctx context.Context) (maxFee, tip *big.Int, err error) {
	tip, err = c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("backend.SuggestGasTipCap: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("backend.HeaderByNumber: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	maxFee = new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)
	return maxFee, tip, nil
}

// Build returns an operation executing calls from account through validator,
// gas-estimated with signer's dummy signature. The operation still needs to be
// signed.
func (c *Client) Build(
	ctx context.Context,
	account, validator common.Address,
	calls []types.Call,
	signer Signer,
) (*UserOperation, error) {
	callData, err := EncodeExecute(calls)
	if err != nil {
		return nil, err
	}
	nonce, err := c.Nonce(ctx, account, validator)
	if err != nil {
		return nil, err
	}
	maxFee, tip, err := c.fees(ctx)
	if err != nil {
		return nil, err
	}

	op := &UserOperation{
		Sender:               account,
		Nonce:                nonce,
		CallData:             callData,
		CallGasLimit:         big.NewInt(0),
		VerificationGasLimit: big.NewInt(0),
		PreVerificationGas:   big.NewInt(0),
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: tip,
		Signature:            signer.DummySignature(),
	}

	var est GasEstimate
	err = c.bundler.CallContext(ctx, &est, "eth_estimateUserOperationGas", op.RPC(), c.entryPoint)
	if err != nil {
		return nil, fmt.Errorf("eth_estimateUserOperationGas: %w", err)
	}
	if est.CallGasLimit == nil || est.VerificationGasLimit == nil || est.PreVerificationGas == nil {
		return nil, fmt.Errorf("eth_estimateUserOperationGas: incomplete estimate")
	}
	op.CallGasLimit = est.CallGasLimit.ToInt()
	op.VerificationGasLimit = est.VerificationGasLimit.ToInt()
	op.PreVerificationGas = est.PreVerificationGas.ToInt()

	c.logger.WithFields(logrus.Fields{
		"account":   account.Hex(),
		"validator": validator.Hex(),
		"nonce":     nonce.String(),
		"calls":     len(calls),
	}).Debug("user operation built")
	return op, nil
}

// Sign fills op's signature.
func (c *Client) Sign(ctx context.Context, op *UserOperation, signer Signer) error {
	hash, err := c.Hash(op)
	if err != nil {
		return err
	}
	sig, err := signer.SignUserOperationHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to sign user operation: %w", err)
	}
	op.Signature = sig
	return nil
}

func (c *Client) Send(ctx context.Context, op *UserOperation) (common.Hash, error) {
	var hash common.Hash
	err := c.bundler.CallContext(ctx, &hash, "eth_sendUserOperation", op.RPC(), c.entryPoint)
	if err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendUserOperation: %w", err)
	}
	return hash, nil
}

// Receipt returns nil without error while the operation is not included.
func (c *Client) Receipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var rec *Receipt
	err := c.bundler.CallContext(ctx, &rec, "eth_getUserOperationReceipt", hash)
	if err != nil {
		return nil, fmt.Errorf("eth_getUserOperationReceipt: %w", err)
	}
	return rec, nil
}

// WaitForReceipt polls for the receipt until the receipt timeout elapses, in
// which case *WaitTimeoutError is returned.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	return c.wait(ctx, hash, c.receiptTimeout)
}

// WaitForExecution is the long poll used after a receipt timeout: the
// operation was accepted by the bundler and may still be included.
func (c *Client) WaitForExecution(ctx context.Context, hash common.Hash) (*Receipt, error) {
	return c.wait(ctx, hash, c.executionTimeout)
}

func (c *Client) wait(ctx context.Context, hash common.Hash, timeout time.Duration) (*Receipt, error) {
	deadline := time.Now().Add(timeout)
	for {
		rec, err := c.Receipt(ctx, hash)
		if err != nil {
			c.logger.WithField("hash", hash.Hex()).Warnf("failed to get receipt, retrying: %v", err)
		}
		if rec != nil {
			if !rec.Success {
				return rec, fmt.Errorf("%w: %s %s", ErrReverted, hash.Hex(), rec.Reason)
			}
			return rec, nil
		}
		if !time.Now().Before(deadline) {
			return nil, &WaitTimeoutError{Hash: hash}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// SendTransactions builds, signs, submits and waits for calls. On receipt
// timeout the returned error carries the operation hash.
func (c *Client) SendTransactions(
	ctx context.Context,
	account, validator common.Address,
	calls []types.Call,
	signer Signer,
) (*Receipt, error) {
	op, err := c.Build(ctx, account, validator, calls, signer)
	if err != nil {
		return nil, err
	}
	if err := c.Sign(ctx, op, signer); err != nil {
		return nil, err
	}
	hash, err := c.Send(ctx, op)
	if err != nil {
		return nil, err
	}
	return c.WaitForReceipt(ctx, hash)
}

// SubmitAndWait sends op and waits for inclusion, recovering from a receipt
// timeout with the long poll.
func (c *Client) SubmitAndWait(ctx context.Context, op *UserOperation) (*Receipt, error) {
	hash, err := c.Send(ctx, op)
	if err != nil {
		return nil, err
	}
	rec, err := c.WaitForReceipt(ctx, hash)
	if err == nil {
		return rec, nil
	}
	recovered, ok := RecoverHash(err)
	if !ok || errors.Is(err, ErrReverted) {
		return rec, err
	}
	c.logger.WithField("hash", recovered.Hex()).Info("receipt timed out, waiting for execution")
	return c.WaitForExecution(ctx, recovered)
}
