package tx

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrDeniedDestination = errors.New("destination denied by policy")
	ErrNotAllowlisted    = errors.New("destination not in allowlist")
	ErrValueOverLimit    = errors.New("value exceeds max per tx limit")
)

// Policy enforces safety constraints before a request reaches a signer.
type Policy struct {
	MaxPerTxWei *big.Int
	AllowTo     []common.Address
	DenyTo      []common.Address
}

// Validate applies simple allow/deny and spend limits.
func (p Policy) Validate(req Request) error {
	if req.To != nil {
		for _, a := range p.DenyTo {
			if a == *req.To {
				return ErrDeniedDestination
			}
		}
	}
	if len(p.AllowTo) > 0 {
		allowed := false
		for _, a := range p.AllowTo {
			if req.To != nil && a == *req.To {
				allowed = true
				break
			}
		}
		if !allowed {
			return ErrNotAllowlisted
		}
	}
	if p.MaxPerTxWei != nil && req.ValueWei != nil && req.ValueWei.Cmp(p.MaxPerTxWei) > 0 {
		return ErrValueOverLimit
	}
	return nil
}
