// Package receipts records broadcast transactions and their receipts in sqlite.
package receipts

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("transaction not recorded")

// Transaction states.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Store persists transactions keyed by chain and hash.
type Store struct {
	db *sql.DB
}

// Record is one stored transaction.
type Record struct {
	Chain     string
	TxHash    string
	From      string
	Nonce     uint64
	Strategy  string
	Status    string
	GasUsed   uint64
	RawJSON   string // receipt JSON, empty while pending
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open opens (or creates) dataDir/receipts.db.
func Open(dataDir string) (*Store, error) {
	return OpenDSN(filepath.Join(dataDir, "receipts.db"))
}

// OpenDSN opens a store using the given sqlite DSN/path. Tests may pass ":memory:".
func OpenDSN(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open receipts db: %w", err)
	}
	// A :memory: database lives on a single connection.
	db.SetMaxOpenConns(1)

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS transactions (
	chain TEXT NOT NULL,
	tx_hash TEXT NOT NULL,
	from_address TEXT NOT NULL DEFAULT '',
	nonce INTEGER NOT NULL DEFAULT 0,
	strategy TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	gas_used INTEGER NOT NULL DEFAULT 0,
	raw_json TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (chain, tx_hash)
);
`)
	if err != nil {
		return fmt.Errorf("create transactions table: %w", err)
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func normalizeHash(txHash string) string {
	return strings.ToLower(common.HexToHash(txHash).Hex())
}

// RecordBroadcast stores a freshly broadcast transaction as pending. A later
// receipt for the same hash is kept.
func (s *Store) RecordBroadcast(chain string, txHash common.Hash, from common.Address, nonce uint64, strategy string) error {
	if chain == "" {
		return fmt.Errorf("chain is required")
	}
	now := time.Now().Unix()
	_, err := s.db.Exec(`
INSERT INTO transactions (chain, tx_hash, from_address, nonce, strategy, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(chain, tx_hash) DO NOTHING
`, chain, normalizeHash(txHash.Hex()), strings.ToLower(from.Hex()), nonce, strategy, StatusPending, now, now)
	if err != nil {
		return fmt.Errorf("record broadcast: %w", err)
	}
	return nil
}

// Upsert stores a mined receipt.
func (s *Store) Upsert(chain string, receipt *types.Receipt) error {
	if chain == "" {
		return fmt.Errorf("chain is required")
	}
	if receipt == nil {
		return fmt.Errorf("receipt is required")
	}

	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	status := StatusFailed
	if receipt.Status == types.ReceiptStatusSuccessful {
		status = StatusSuccess
	}

	now := time.Now().Unix()
	_, err = s.db.Exec(`
INSERT INTO transactions (chain, tx_hash, status, gas_used, raw_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(chain, tx_hash) DO UPDATE SET
	status=excluded.status,
	gas_used=excluded.gas_used,
	raw_json=excluded.raw_json,
	updated_at=excluded.updated_at
`, chain, normalizeHash(receipt.TxHash.Hex()), status, receipt.GasUsed, string(raw), now, now)
	if err != nil {
		return fmt.Errorf("persist receipt: %w", err)
	}
	return nil
}

const selectColumns = `chain, tx_hash, from_address, nonce, strategy, status, gas_used, raw_json, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var r Record
	var created, updated int64
	if err := row.Scan(&r.Chain, &r.TxHash, &r.From, &r.Nonce, &r.Strategy, &r.Status, &r.GasUsed, &r.RawJSON, &created, &updated); err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(created, 0)
	r.UpdatedAt = time.Unix(updated, 0)
	return &r, nil
}

// Get returns the stored record for txHash on chain.
func (s *Store) Get(chain, txHash string) (*Record, error) {
	if chain == "" || txHash == "" {
		return nil, fmt.Errorf("chain and tx hash are required")
	}
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM transactions WHERE chain = ? AND tx_hash = ?`, chain, normalizeHash(txHash))
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, txHash)
	}
	return r, err
}

// Receipt decodes the stored receipt JSON.
func (r *Record) Receipt() (*types.Receipt, error) {
	if r.RawJSON == "" {
		return nil, fmt.Errorf("%w: %s has no receipt yet", ErrNotFound, r.TxHash)
	}
	var receipt types.Receipt
	if err := json.Unmarshal([]byte(r.RawJSON), &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &receipt, nil
}

// Pending lists transactions still waiting for a receipt, oldest first.
func (s *Store) Pending(chain string) ([]*Record, error) {
	rows, err := s.db.Query(`SELECT `+selectColumns+` FROM transactions WHERE chain = ? AND status = ? ORDER BY created_at, nonce`, chain, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
