//go:build integration
// +build integration

package cli

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yolodolo42/walletkit/internal/testutil"
)

// ScenarioStep is one command run against a live devnet.
type ScenarioStep struct {
	Args        []string
	ExpectSubs  []string // substrings that must appear in stdout
	ExpectError bool
	Capture     string // remember the last 0x token of stdout under this name
}

// Scenario is a sequence of commands sharing one config and data dir.
type Scenario struct {
	Name  string
	Steps []ScenarioStep
}

// Needs a hardhat/anvil node with the default dev accounts funded, e.g.
// WALLETKIT_RPC_URL=http://127.0.0.1:8545 go test -tags integration ./internal/cli/
func TestScenario_Devnet_SendAndReceipt(t *testing.T) {
	rpcURL := os.Getenv("WALLETKIT_RPC_URL")
	if rpcURL == "" {
		t.Skip("WALLETKIT_RPC_URL not set")
	}

	scenario := Scenario{
		Name: "devnet-send-eth",
		Steps: []ScenarioStep{
			{Args: []string{"chain-id"}, ExpectSubs: []string{"31337"}},
			{Args: []string{"addresses"}, ExpectSubs: []string{strings.ToLower(devAddress)}},
			{
				Args: []string{"send-eth",
					"--from", devAddress,
					"--to", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
					"--value", "0.01",
					"--max-fee", "100000000000",
					"--wait",
				},
				ExpectSubs: []string{"success"},
				Capture:    "tx",
			},
			{Args: []string{"receipt", "{tx}"}, ExpectSubs: []string{"success", "Gas used"}},
			{Args: []string{"send-eth", "--from", "0x0000000000000000000000000000000000000001", "--max-fee", "1"}, ExpectError: true},
		},
	}

	runScenario(t, scenario, rpcURL)
}

func runScenario(t *testing.T, sc Scenario, rpcURL string) {
	t.Helper()

	dir := testutil.TempDir(t)
	cfg := testutil.WriteFile(t, dir, "config.yaml", fmt.Sprintf(`chain: devnet
data_dir: %s
chains:
  devnet:
    chain_id: 31337
    rpc_urls: [%q]
transport:
  kind: simulator
derivation:
  search_limit: 10
log:
  level: error
`, dir, rpcURL))

	env := &testEnv{dir: dir, config: cfg}
	captured := map[string]string{}

	for i, step := range sc.Steps {
		args := make([]string, len(step.Args))
		for j, a := range step.Args {
			for name, value := range captured {
				a = strings.ReplaceAll(a, "{"+name+"}", value)
			}
			args[j] = a
		}

		out, err := env.run(t, "", args...)
		if step.ExpectError {
			require.Error(t, err, "%s step %d", sc.Name, i)
			continue
		}
		require.NoError(t, err, "%s step %d: %s", sc.Name, i, out)
		for _, sub := range step.ExpectSubs {
			require.Contains(t, out, sub, "%s step %d", sc.Name, i)
		}
		if step.Capture != "" {
			captured[step.Capture] = firstHexToken(out)
		}
	}
}

func firstHexToken(out string) string {
	for _, field := range strings.Fields(out) {
		if strings.HasPrefix(field, "0x") && len(field) == 66 {
			return field
		}
	}
	return ""
}
