package tx

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestPolicy_Validate(t *testing.T) {
	other := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	tests := []struct {
		name   string
		policy Policy
		mutate func(*Request)
		want   error
	}{
		{name: "empty policy allows", policy: Policy{}},
		{name: "denied destination", policy: Policy{DenyTo: []common.Address{toAddr}}, want: ErrDeniedDestination},
		{name: "allowlisted", policy: Policy{AllowTo: []common.Address{toAddr}}},
		{name: "not allowlisted", policy: Policy{AllowTo: []common.Address{other}}, want: ErrNotAllowlisted},
		{
			name:   "deploy with allowlist",
			policy: Policy{AllowTo: []common.Address{toAddr}},
			mutate: func(r *Request) { r.To = nil },
			want:   ErrNotAllowlisted,
		},
		{name: "value at limit", policy: Policy{MaxPerTxWei: big.NewInt(1_000)}},
		{name: "value over limit", policy: Policy{MaxPerTxWei: big.NewInt(999)}, want: ErrValueOverLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			err := tt.policy.Validate(req)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
