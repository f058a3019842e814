package wallet

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/rs/zerolog"

	"github.com/yolodolo42/walletkit/internal/tx"
)

const erc20ABI = `[
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]},
	{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}]},
	{"type":"function","name":"transferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]}
]`

var erc20 = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// resolve builds the metadata a device shows while the user reviews tx. Token
// lookups are best effort: a failure only loses the symbol on screen.
func resolve(ctx context.Context, chain ChainRPC, unsigned *tx.Unsigned, log zerolog.Logger) *Resolution {
	res := &Resolution{
		ChainID:  unsigned.ChainID.ToInt(),
		To:       unsigned.To,
		ValueWei: unsigned.Value.ToInt(),
	}
	data := []byte(unsigned.Data)
	if len(data) < 4 || unsigned.To == nil {
		return res
	}

	method, err := erc20.MethodById(data[:4])
	if err != nil {
		return res
	}
	values := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(values, data[4:]); err != nil {
		log.Debug().Err(err).Str("method", method.Name).Msg("Undecodable calldata")
		return res
	}
	res.Method = method.Name
	res.Args = make(map[string]string, len(values))
	for _, input := range method.Inputs {
		res.Args[input.Name] = formatArg(values[input.Name])
	}

	if tokens, ok := chain.(TokenResolver); ok {
		info, err := tokens.TokenInfo(ctx, *unsigned.To)
		if err != nil {
			log.Debug().Err(err).Str("token", unsigned.To.Hex()).Msg("Token lookup failed")
			return res
		}
		res.Token = info
	}
	return res
}

func formatArg(v interface{}) string {
	switch val := v.(type) {
	case interface{ Hex() string }:
		return strings.ToLower(val.Hex())
	case interface{ String() string }:
		return val.String()
	default:
		return ""
	}
}
