package tx

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// DefaultPriorityFeeWei is used when the caller gives no priority fee (2 Gwei).
var DefaultPriorityFeeWei = big.NewInt(2_000_000_000)

var (
	ErrMissingFee     = errors.New("max fee per gas or gas price is required")
	ErrMissingGas     = errors.New("gas limit is required")
	ErrMissingChainID = errors.New("chain id is required")
	ErrBadSignature   = errors.New("malformed signature")
)

// Request captures the Ethereum transaction a caller wants signed.
type Request struct {
	From                 common.Address
	To                   *common.Address // nil deploys a contract
	ValueWei             *big.Int        // optional, defaults to zero
	Data                 []byte
	Gas                  uint64   // gas limit
	GasPrice             *big.Int // legacy price; takes precedence as max fee when set
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int // optional, defaults to DefaultPriorityFeeWei
}

// Unsigned is an EIP-1559 transaction with every numeric field in its canonical
// hex quantity form. It is built fresh for every signing request.
type Unsigned struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to"`
	Data                 hexutil.Bytes   `json:"data"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	GasLimit             hexutil.Uint64  `json:"gasLimit"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	ChainID              *hexutil.Big    `json:"chainId"`
}

// Build maps a request onto the fee-market model. defaultPriority may be nil.
func Build(req Request, nonce uint64, chainID *big.Int, defaultPriority *big.Int) (*Unsigned, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, ErrMissingChainID
	}
	if req.Gas == 0 {
		return nil, ErrMissingGas
	}

	maxFee := req.GasPrice
	if maxFee == nil {
		maxFee = req.MaxFeePerGas
	}
	if maxFee == nil {
		return nil, ErrMissingFee
	}

	priority := req.MaxPriorityFeePerGas
	if priority == nil {
		priority = defaultPriority
	}
	if priority == nil {
		priority = DefaultPriorityFeeWei
	}

	value := req.ValueWei
	if value == nil {
		value = new(big.Int)
	}

	var to *common.Address
	if req.To != nil {
		addr := *req.To
		to = &addr
	}

	return &Unsigned{
		From:                 req.From,
		To:                   to,
		Data:                 common.CopyBytes(req.Data),
		Value:                (*hexutil.Big)(new(big.Int).Set(value)),
		Nonce:                hexutil.Uint64(nonce),
		GasLimit:             hexutil.Uint64(req.Gas),
		MaxFeePerGas:         (*hexutil.Big)(new(big.Int).Set(maxFee)),
		MaxPriorityFeePerGas: (*hexutil.Big)(new(big.Int).Set(priority)),
		ChainID:              (*hexutil.Big)(new(big.Int).Set(chainID)),
	}, nil
}

// Transaction returns the unsigned go-ethereum transaction.
func (u *Unsigned) Transaction() *types.Transaction {
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   u.ChainID.ToInt(),
		Nonce:     uint64(u.Nonce),
		GasTipCap: u.MaxPriorityFeePerGas.ToInt(),
		GasFeeCap: u.MaxFeePerGas.ToInt(),
		Gas:       uint64(u.GasLimit),
		To:        u.To,
		Value:     u.Value.ToInt(),
		Data:      u.Data,
	})
}

// Signer returns the chain-bound London signer for u.
func (u *Unsigned) Signer() types.Signer {
	return types.NewLondonSigner(u.ChainID.ToInt())
}

// SigningPayload is the byte string a device displays and hashes:
// 0x02 ‖ rlp([chainId, nonce, tip, feeCap, gas, to, value, data, accessList]).
func (u *Unsigned) SigningPayload() ([]byte, error) {
	enc, err := rlp.EncodeToBytes([]interface{}{
		u.ChainID.ToInt(),
		uint64(u.Nonce),
		u.MaxPriorityFeePerGas.ToInt(),
		u.MaxFeePerGas.ToInt(),
		uint64(u.GasLimit),
		u.To,
		u.Value.ToInt(),
		[]byte(u.Data),
		types.AccessList{},
	})
	if err != nil {
		return nil, fmt.Errorf("encode signing payload: %w", err)
	}
	return append([]byte{types.DynamicFeeTxType}, enc...), nil
}

// Digest is the EIP-1559 signing hash.
func (u *Unsigned) Digest() common.Hash {
	return u.Signer().Hash(u.Transaction())
}

// RecoveryID normalizes a device v (parity, 27/28 or EIP-155 form) to 0 or 1.
func RecoveryID(v *big.Int, chainID *big.Int) (byte, error) {
	if v == nil {
		return 0, ErrBadSignature
	}
	id := new(big.Int).Set(v)
	switch {
	case chainID != nil && id.Cmp(big.NewInt(35)) >= 0:
		id.Sub(id, new(big.Int).Add(new(big.Int).Mul(chainID, big.NewInt(2)), big.NewInt(35)))
	case id.Cmp(big.NewInt(27)) >= 0:
		id.Sub(id, big.NewInt(27))
	}
	if id.Sign() < 0 || id.Cmp(big.NewInt(1)) > 0 {
		return 0, fmt.Errorf("%w: v=%s", ErrBadSignature, v)
	}
	return byte(id.Uint64()), nil
}

// WithSignature assembles the signed transaction from a device signature.
func (u *Unsigned) WithSignature(v *big.Int, r, s common.Hash) (*types.Transaction, error) {
	recID, err := RecoveryID(v, u.ChainID.ToInt())
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 65)
	copy(sig[:32], r[:])
	copy(sig[32:64], s[:])
	sig[64] = recID

	signed, err := u.Transaction().WithSignature(u.Signer(), sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return signed, nil
}

// Encode returns the 0x-prefixed EIP-2718 wire encoding of a signed transaction.
func Encode(signed *types.Transaction) (string, error) {
	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", err
	}
	return hexutil.Encode(raw), nil
}
