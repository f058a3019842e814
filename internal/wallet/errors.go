package wallet

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType is the stable classification attached to every error leaving a strategy.
type ErrorType string

const (
	ErrorTypeWallet      ErrorType = "wallet-error"
	ErrorTypeNetwork     ErrorType = "network-error"
	ErrorTypeNotFound    ErrorType = "not-found"
	ErrorTypeUnspecified ErrorType = "unspecified"
)

// ContextModule names the strategy operation that produced an error.
type ContextModule string

const (
	ModuleGetAccounts                   ContextModule = "GetAccounts"
	ModuleConfirm                       ContextModule = "Confirm"
	ModuleSendTransaction               ContextModule = "SendTransaction"
	ModuleSendEthereumTransaction       ContextModule = "SendEthereumTransaction"
	ModuleSignEthereumTransaction       ContextModule = "SignEthereumTransaction"
	ModuleSignTransaction               ContextModule = "SignTransaction"
	ModuleGetNetworkID                  ContextModule = "GetNetworkId"
	ModuleGetChainID                    ContextModule = "GetChainId"
	ModuleGetEthereumTransactionReceipt ContextModule = "GetEthereumTransactionReceipt"
)

// UnspecifiedErrorCode is used when the raw error carries no device status word.
const UnspecifiedErrorCode = -1

// Kind sentinels. errors.Is(err, ErrNotFound) reports whether err was classified as not-found.
var (
	ErrWalletError  = errors.New("wallet error")
	ErrNetworkError = errors.New("network error")
	ErrNotFound     = errors.New("not found")
	ErrUnspecified  = errors.New("unspecified error")
)

var kindSentinels = map[ErrorType]error{
	ErrorTypeWallet:      ErrWalletError,
	ErrorTypeNetwork:     ErrNetworkError,
	ErrorTypeNotFound:    ErrNotFound,
	ErrorTypeUnspecified: ErrUnspecified,
}

// ClassifiedError is the only error shape a Strategy returns. Message is safe to
// show to a user; the raw cause stays reachable through Unwrap for diagnostics.
type ClassifiedError struct {
	Kind    ErrorType
	Code    int
	Module  ContextModule
	Message string

	raw error
}

func (e *ClassifiedError) Error() string {
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.raw
}

// Is matches the kind sentinels.
func (e *ClassifiedError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Raw returns the unrewritten error message.
func (e *ClassifiedError) Raw() string {
	if e.raw == nil {
		return e.Message
	}
	return e.raw.Error()
}

// KindOf returns the classification of err, or ErrorTypeUnspecified when err was
// never classified.
func KindOf(err error) ErrorType {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrorTypeUnspecified
}

const (
	msgDeviceNotReady     = "Please ensure your Ledger is connected, unlocked and your Ethereum app is open."
	msgNoDeviceSelected   = "Please make sure your Ledger device is connected, unlocked and your Ethereum app is open"
	msgRestartDevice      = "Please restart your Ledger device and try connecting again"
	msgDeviceNotConnected = "Please make sure your Ledger device is connected"
	msgRequestRejected    = "The request has been rejected"
	msgUnsupportedBrowser = "Please use the latest Chrome/Firefox browser versions to connect with your Ledger device"
)

// lockedSubstrings are the raw fragments a device or its driver emits when it is
// locked, busy, or the Ethereum app is not in the foreground.
var lockedSubstrings = []string{
	"Ledger device: Incorrect length",
	"Ledger device: INS_NOT_SUPPORTED",
	"Ledger device: CLA_NOT_SUPPORTED",
	"Failed to open the device",
	"Ledger Device is busy",
	"UNKNOWN_ERROR",
	// go-ethereum usbwallet
	"wallet closed",
	"Ethereum app offline",
	"Ethereum app in browser mode",
}

type rewriteRule struct {
	match   func(raw string) bool
	message string
}

func containsAny(fragments ...string) func(string) bool {
	return func(raw string) bool {
		for _, f := range fragments {
			if strings.Contains(raw, f) {
				return true
			}
		}
		return false
	}
}

// rewriteRules are evaluated in full, in order. When a raw message satisfies
// more than one rule the last match decides the text.
var rewriteRules = []rewriteRule{
	{match: containsAny(lockedSubstrings...), message: msgDeviceNotReady},
	{match: containsAny("No device selected.", "no Ledger device found"), message: msgNoDeviceSelected},
	{match: containsAny("Unable to set device configuration."), message: msgRestartDevice},
	{match: containsAny("Cannot read properties of undefined"), message: msgDeviceNotConnected},
	{match: containsAny("Ledger device: Condition of use not satisfied", "denied by the user"), message: msgRequestRejected},
	{match: containsAny("U2F browser support is needed for Ledger."), message: msgUnsupportedBrowser},
}

// RewriteMessage applies the rule table to a raw device message. Unmatched
// messages come back verbatim.
func RewriteMessage(raw string) string {
	message := raw
	for _, rule := range rewriteRules {
		if rule.match(raw) {
			message = rule.message
		}
	}
	return message
}

var statusWordPattern = regexp.MustCompile(`\(0x([0-9a-fA-F]{4})\)`)

func statusCode(raw string) int {
	m := statusWordPattern.FindStringSubmatch(raw)
	if m == nil {
		return UnspecifiedErrorCode
	}
	code, err := strconv.ParseInt(m[1], 16, 32)
	if err != nil {
		return UnspecifiedErrorCode
	}
	return int(code)
}

// ClassifyDeviceError turns a raw transport or device failure into a WalletError
// carrying the user-facing rewrite. Already classified errors pass through.
func ClassifyDeviceError(err error, module ContextModule) error {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return err
	}
	raw := err.Error()
	return &ClassifiedError{
		Kind:    ErrorTypeWallet,
		Code:    statusCode(raw),
		Module:  module,
		Message: RewriteMessage(raw),
		raw:     err,
	}
}

// wrapNetworkError tags a chain-RPC failure once, without consulting the device rules.
func wrapNetworkError(err error, module ContextModule) error {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return err
	}
	return &ClassifiedError{
		Kind:    ErrorTypeNetwork,
		Code:    UnspecifiedErrorCode,
		Module:  module,
		Message: err.Error(),
		raw:     err,
	}
}

func newWalletError(module ContextModule, format string, args ...any) error {
	return invalidInput(module, fmt.Errorf(format, args...))
}

// invalidInput reports a caller mistake. The text is not rewritten.
func invalidInput(module ContextModule, err error) error {
	return &ClassifiedError{
		Kind:    ErrorTypeWallet,
		Code:    UnspecifiedErrorCode,
		Module:  module,
		Message: err.Error(),
		raw:     err,
	}
}

// classify is the single exit point for strategy errors.
func classify(err error, module ContextModule) error {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	switch {
	case errors.As(err, &ce):
		return err
	case errors.Is(err, ErrAccountNotFound):
		return &ClassifiedError{
			Kind:    ErrorTypeNotFound,
			Code:    UnspecifiedErrorCode,
			Module:  module,
			Message: err.Error(),
			raw:     err,
		}
	case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInvalidTypedData):
		return invalidInput(module, err)
	default:
		return ClassifyDeviceError(err, module)
	}
}
