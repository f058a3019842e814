package testutil

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// FakeChain is an in-memory chain collaborator. Set Err to make every call fail.
type FakeChain struct {
	mu       sync.Mutex
	ID       *big.Int
	Network  *big.Int
	Nonce    uint64
	Gas      uint64
	Err      error
	Sent     []*types.Transaction
	Receipts map[common.Hash]*types.Receipt
}

// NewFakeChain returns a chain reporting chainID as both chain and network id.
func NewFakeChain(chainID int64) *FakeChain {
	return &FakeChain{
		ID:       big.NewInt(chainID),
		Network:  big.NewInt(chainID),
		Gas:      21000,
		Receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *FakeChain) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Err
}

func (f *FakeChain) NonceAt(ctx context.Context, address common.Address) (uint64, error) {
	if err := f.fail(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Nonce, nil
}

func (f *FakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(f.ID), nil
}

func (f *FakeChain) NetworkID(ctx context.Context) (*big.Int, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(f.Network), nil
}

func (f *FakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := f.fail(); err != nil {
		return 0, err
	}
	return f.Gas, nil
}

// Broadcast decodes the envelope, records it and mines a successful receipt.
func (f *FakeChain) Broadcast(ctx context.Context, signedTxHex string) (common.Hash, error) {
	if err := f.fail(); err != nil {
		return common.Hash{}, err
	}
	raw, err := hexutil.Decode(signedTxHex)
	if err != nil {
		return common.Hash{}, err
	}
	var signed types.Transaction
	if err := signed.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, &signed)
	f.Nonce++
	f.Receipts[signed.Hash()] = &types.Receipt{
		Type:        signed.Type(),
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      signed.Hash(),
		GasUsed:     signed.Gas(),
		BlockNumber: big.NewInt(int64(len(f.Sent))),
		Logs:        []*types.Log{},
	}
	return signed.Hash(), nil
}

func (f *FakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.Receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// LastSent returns the most recently broadcast transaction.
func (f *FakeChain) LastSent() (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sent) == 0 {
		return nil, errors.New("nothing broadcast")
	}
	return f.Sent[len(f.Sent)-1], nil
}
