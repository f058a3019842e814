package tx

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	devKey, _ = crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	devAddr   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	toAddr    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func baseRequest() Request {
	to := toAddr
	return Request{
		From:         devAddr,
		To:           &to,
		ValueWei:     big.NewInt(1_000),
		Data:         []byte{0x01, 0x02},
		Gas:          21_000,
		MaxFeePerGas: big.NewInt(0x3b9aca00),
	}
}

func TestBuild(t *testing.T) {
	t.Run("defaults the priority fee to 2 gwei", func(t *testing.T) {
		u, err := Build(baseRequest(), 0, big.NewInt(1), nil)
		require.NoError(t, err)

		assert.Equal(t, "0x3b9aca00", u.MaxFeePerGas.String())
		assert.Equal(t, "0x77359400", u.MaxPriorityFeePerGas.String())
		assert.Equal(t, "0x0", u.Nonce.String())
		assert.Equal(t, "0x1", u.ChainID.String())
		assert.Equal(t, "0x5208", u.GasLimit.String())
	})

	t.Run("configured default priority fee", func(t *testing.T) {
		u, err := Build(baseRequest(), 3, big.NewInt(1), big.NewInt(7))
		require.NoError(t, err)
		assert.Equal(t, int64(7), u.MaxPriorityFeePerGas.ToInt().Int64())
		assert.Equal(t, uint64(3), uint64(u.Nonce))
	})

	t.Run("gas price wins over max fee", func(t *testing.T) {
		req := baseRequest()
		req.GasPrice = big.NewInt(9)
		u, err := Build(req, 0, big.NewInt(1), nil)
		require.NoError(t, err)
		assert.Equal(t, int64(9), u.MaxFeePerGas.ToInt().Int64())
	})

	t.Run("missing value is zero", func(t *testing.T) {
		req := baseRequest()
		req.ValueWei = nil
		u, err := Build(req, 0, big.NewInt(1), nil)
		require.NoError(t, err)
		assert.Equal(t, "0x0", u.Value.String())
	})

	t.Run("does not alias the request", func(t *testing.T) {
		req := baseRequest()
		u, err := Build(req, 0, big.NewInt(1), nil)
		require.NoError(t, err)

		req.MaxFeePerGas.SetInt64(1)
		req.Data[0] = 0xff
		*req.To = common.Address{}
		assert.Equal(t, int64(0x3b9aca00), u.MaxFeePerGas.ToInt().Int64())
		assert.Equal(t, byte(0x01), u.Data[0])
		assert.Equal(t, toAddr, *u.To)
	})

	errTests := []struct {
		name    string
		mutate  func(*Request)
		chainID *big.Int
		want    error
	}{
		{name: "missing fee", mutate: func(r *Request) { r.MaxFeePerGas = nil }, chainID: big.NewInt(1), want: ErrMissingFee},
		{name: "missing gas", mutate: func(r *Request) { r.Gas = 0 }, chainID: big.NewInt(1), want: ErrMissingGas},
		{name: "missing chain id", mutate: func(r *Request) {}, chainID: nil, want: ErrMissingChainID},
		{name: "zero chain id", mutate: func(r *Request) {}, chainID: big.NewInt(0), want: ErrMissingChainID},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			_, err := Build(req, 0, tt.chainID, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUnsigned_JSON(t *testing.T) {
	u, err := Build(baseRequest(), 5, big.NewInt(1), nil)
	require.NoError(t, err)

	raw, err := json.Marshal(u)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "0x5", fields["nonce"])
	assert.Equal(t, "0x3e8", fields["value"])
	assert.Equal(t, "0x0102", fields["data"])
	assert.Equal(t, "0x77359400", fields["maxPriorityFeePerGas"])
}

func TestUnsigned_SigningPayload(t *testing.T) {
	u, err := Build(baseRequest(), 0, big.NewInt(1), nil)
	require.NoError(t, err)

	payload, err := u.SigningPayload()
	require.NoError(t, err)
	assert.Equal(t, byte(types.DynamicFeeTxType), payload[0])
	assert.Equal(t, crypto.Keccak256Hash(payload), u.Digest(), "payload hashes to the london signing hash")

	again, err := Build(baseRequest(), 0, big.NewInt(1), nil)
	require.NoError(t, err)
	payload2, err := again.SigningPayload()
	require.NoError(t, err)
	assert.Equal(t, payload, payload2)

	t.Run("contract creation", func(t *testing.T) {
		req := baseRequest()
		req.To = nil
		u, err := Build(req, 0, big.NewInt(1), nil)
		require.NoError(t, err)

		payload, err := u.SigningPayload()
		require.NoError(t, err)
		assert.Equal(t, crypto.Keccak256Hash(payload), u.Digest())
	})
}

func TestUnsigned_SignedEncodingIsStable(t *testing.T) {
	signAndEncode := func() string {
		u, err := Build(baseRequest(), 0, big.NewInt(1), nil)
		require.NoError(t, err)
		assert.Equal(t, "0x77359400", u.MaxPriorityFeePerGas.String())
		assert.Equal(t, "0x3b9aca00", u.MaxFeePerGas.String())

		sig, err := crypto.Sign(u.Digest().Bytes(), devKey)
		require.NoError(t, err)
		signed, err := u.WithSignature(big.NewInt(int64(sig[64])), common.BytesToHash(sig[:32]), common.BytesToHash(sig[32:64]))
		require.NoError(t, err)

		encoded, err := Encode(signed)
		require.NoError(t, err)
		return encoded
	}

	first := signAndEncode()
	assert.Equal(t, first, signAndEncode())
}

func TestRecoveryID(t *testing.T) {
	tests := []struct {
		name    string
		v       *big.Int
		chainID *big.Int
		want    byte
		wantErr bool
	}{
		{name: "parity 0", v: big.NewInt(0), want: 0},
		{name: "parity 1", v: big.NewInt(1), want: 1},
		{name: "legacy 27", v: big.NewInt(27), want: 0},
		{name: "legacy 28", v: big.NewInt(28), want: 1},
		{name: "eip-155 mainnet", v: big.NewInt(38), chainID: big.NewInt(1), want: 1},
		{name: "eip-155 sepolia", v: big.NewInt(22310257), chainID: big.NewInt(11155111), want: 0},
		{name: "out of range", v: big.NewInt(5), wantErr: true},
		{name: "nil", v: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RecoveryID(tt.v, tt.chainID)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadSignature)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnsigned_WithSignature(t *testing.T) {
	u, err := Build(baseRequest(), 4, big.NewInt(1), nil)
	require.NoError(t, err)

	sig, err := crypto.Sign(u.Digest().Bytes(), devKey)
	require.NoError(t, err)

	for _, v := range []int64{int64(sig[64]), int64(sig[64]) + 27} {
		signed, err := u.WithSignature(big.NewInt(v), common.BytesToHash(sig[:32]), common.BytesToHash(sig[32:64]))
		require.NoError(t, err)

		sender, err := types.Sender(u.Signer(), signed)
		require.NoError(t, err)
		assert.Equal(t, devAddr, sender)
		assert.Equal(t, uint64(4), signed.Nonce())

		encoded, err := Encode(signed)
		require.NoError(t, err)
		assert.True(t, len(encoded) > 4 && encoded[:4] == "0x02")
	}

	_, err = u.WithSignature(big.NewInt(3), common.Hash{}, common.Hash{})
	assert.ErrorIs(t, err, ErrBadSignature)
}
