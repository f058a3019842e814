package wallet

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var ErrInvalidTypedData = errors.New("invalid EIP-712 typed data")

// TypedDataHashes parses an EIP-712 document and returns its domain separator
// and the hash of its primary message.
func TypedDataHashes(document []byte) (domain, message common.Hash, err error) {
	var td apitypes.TypedData
	if err := json.Unmarshal(document, &td); err != nil {
		return common.Hash{}, common.Hash{}, fmt.Errorf("%w: %v", ErrInvalidTypedData, err)
	}
	if td.PrimaryType == "" {
		return common.Hash{}, common.Hash{}, fmt.Errorf("%w: missing primaryType", ErrInvalidTypedData)
	}
	if _, ok := td.Types["EIP712Domain"]; !ok {
		return common.Hash{}, common.Hash{}, fmt.Errorf("%w: missing EIP712Domain type", ErrInvalidTypedData)
	}

	d, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, common.Hash{}, fmt.Errorf("%w: domain: %v", ErrInvalidTypedData, err)
	}
	m, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return common.Hash{}, common.Hash{}, fmt.Errorf("%w: %s: %v", ErrInvalidTypedData, td.PrimaryType, err)
	}
	return common.BytesToHash(d), common.BytesToHash(m), nil
}

// TypedDataDigest is keccak256(0x19 0x01 ‖ domain ‖ message), the value actually signed.
func TypedDataDigest(domain, message common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domain.Bytes(), message.Bytes())
}
