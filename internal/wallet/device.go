package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrTransportClosed = errors.New("device connection closed")
	ErrDeviceTimeout   = errors.New("timed out waiting for the device")
	ErrDeviceMismatch  = errors.New("device returned an unexpected number of accounts")
)

// Signature is the {v, r, s} triple returned by a device.
type Signature struct {
	V *big.Int
	R common.Hash
	S common.Hash
}

// Hex renders r‖s‖v with v as its bare hex form (no zero padding), 0x prefixed.
func (s *Signature) Hex() string {
	return fmt.Sprintf("0x%x%x%s", s.R.Bytes(), s.S.Bytes(), s.V.Text(16))
}

// Resolution is human-readable transaction metadata shown on the device screen
// while the user confirms a signature.
type Resolution struct {
	ChainID  *big.Int
	To       *common.Address
	ValueWei *big.Int
	Method   string            // decoded calldata method, empty for plain transfers
	Args     map[string]string // decoded calldata arguments
	Token    *TokenInfo        // set when To is a known ERC-20 contract
}

// TokenInfo is ERC-20 metadata used to render amounts on the device.
type TokenInfo struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// TxSignRequest asks a device to sign an unsigned EIP-1559 transaction.
// Payload is the typed signing payload (0x02 ‖ rlp(fields)), Digest is its keccak256.
// Tx carries the same fields for drivers that re-encode the transaction themselves.
type TxSignRequest struct {
	Path       accounts.DerivationPath
	Tx         *types.Transaction
	ChainID    *big.Int
	Payload    []byte
	Digest     common.Hash
	Resolution *Resolution
}

// Device is an open connection to a signing device. Implementations may assume
// callers never issue overlapping commands.
type Device interface {
	// DeriveAddresses returns one address per path, in order.
	DeriveAddresses(ctx context.Context, paths []accounts.DerivationPath) ([]common.Address, error)

	// SignTransaction signs an EIP-1559 transaction digest.
	SignTransaction(ctx context.Context, req *TxSignRequest) (*Signature, error)

	// SignTypedDataHash signs precomputed EIP-712 domain and message hashes.
	SignTypedDataHash(ctx context.Context, path accounts.DerivationPath, domainHash, messageHash common.Hash) (*Signature, error)

	Close() error
}

// Transport opens connections to a device.
type Transport interface {
	Open(ctx context.Context) (Device, error)
}

// deviceConn serializes device commands and lets Disconnect cancel whatever is
// in flight. Two locks: stateMu guards the handle, comms admits one command at a
// time on the current connection.
type deviceConn struct {
	transport Transport
	timeout   time.Duration

	stateMu sync.Mutex
	session *deviceSession
}

type deviceSession struct {
	device  Device
	comms   chan struct{} // Mutex (buf=1) for device commands
	closing context.Context
	close   context.CancelFunc
}

func newDeviceConn(transport Transport, timeout time.Duration) *deviceConn {
	return &deviceConn{
		transport: transport,
		timeout:   timeout,
	}
}

// acquire returns the current session, opening the transport if needed.
func (c *deviceConn) acquire(ctx context.Context) (*deviceSession, error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.session != nil {
		return c.session, nil
	}
	device, err := c.transport.Open(ctx)
	if err != nil {
		return nil, err
	}
	s := &deviceSession{
		device: device,
		comms:  make(chan struct{}, 1),
	}
	s.comms <- struct{}{}
	s.closing, s.close = context.WithCancel(context.Background())
	c.session = s
	return s, nil
}

// do runs fn against the device with exclusive access, the configured bound and
// connection cancellation. fn keeps the comms slot until it actually returns.
func (c *deviceConn) do(ctx context.Context, fn func(ctx context.Context, device Device) error) error {
	session, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	closing := session.closing

	// A timed-out command may still hold the slot, so waiting for it is bounded too.
	var expired <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-session.comms:
	case <-ctx.Done():
		return ctx.Err()
	case <-closing.Done():
		return ErrTransportClosed
	case <-expired:
		return ErrDeviceTimeout
	}

	var (
		opCtx  context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		opCtx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		opCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	stop := context.AfterFunc(closing, cancel)
	defer stop()

	done := make(chan error, 1)
	go func() {
		defer func() { session.comms <- struct{}{} }()
		done <- fn(opCtx, session.device)
	}()

	select {
	case err := <-done:
		if err != nil && closing.Err() != nil {
			return ErrTransportClosed
		}
		return err
	case <-opCtx.Done():
		switch {
		case closing.Err() != nil:
			return ErrTransportClosed
		case errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			return ErrDeviceTimeout
		default:
			return ctx.Err()
		}
	}
}

// Disconnect closes the device and fails every in-flight command.
func (c *deviceConn) Disconnect() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.session == nil {
		return nil
	}
	c.session.close()
	err := c.session.device.Close()
	c.session = nil
	return err
}
