// Package storage persists the bridge execution ledger.
package storage

import (
	"bytes"
	"encoding/binary"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

// BridgeRecord marks a settlement as executed on a target chain.
type BridgeRecord struct {
	SettlementID uuid.UUID     `json:"settlementId"`
	Hash         common.Hash   `json:"hash"`
	Target       model.ChainID `json:"target"`
	Envelope     hexutil.Bytes `json:"envelope"`
	ExecutedAt   time.Time     `json:"executedAt"`
}

// Ledger remembers which settlements were executed on which chain.
// Lookup returns nil when nothing was recorded.
type Ledger interface {
	Lookup(hash common.Hash, target model.ChainID) (*BridgeRecord, error)
	Record(rec BridgeRecord) error
	List(target model.ChainID) ([]BridgeRecord, error)
	Close() error
}

var ErrDuplicateRecord = errors.New("bridge record already exists")

// keys: bridge:<8-byte chain id>:<32-byte settlement hash>
var prefixBridge = []byte("bridge:")

func targetPrefix(target model.ChainID) []byte {
	k := make([]byte, 0, len(prefixBridge)+9)
	k = append(k, prefixBridge...)
	k = binary.BigEndian.AppendUint64(k, uint64(target))
	return append(k, ':')
}

func recordKey(hash common.Hash, target model.ChainID) []byte {
	return append(targetPrefix(target), hash[:]...)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := bytes.Clone(prefix)
	bound[len(bound)-1]++
	return bound
}

// MemLedger keeps records in memory. Used by tests and when no ledger path is configured.
type MemLedger struct {
	mu      sync.RWMutex
	records map[string]BridgeRecord
}

func NewMemLedger() *MemLedger {
	return &MemLedger{records: make(map[string]BridgeRecord)}
}

func (m *MemLedger) Lookup(hash common.Hash, target model.ChainID) (*BridgeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[string(recordKey(hash, target))]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemLedger) Record(rec BridgeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(recordKey(rec.Hash, rec.Target))
	if _, ok := m.records[key]; ok {
		return errors.Wrapf(ErrDuplicateRecord, "settlement %s on chain %s", rec.Hash, rec.Target)
	}
	m.records[key] = rec
	return nil
}

func (m *MemLedger) List(target model.ChainID) ([]BridgeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := string(targetPrefix(target))
	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	out := make([]BridgeRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.records[k])
	}
	return out, nil
}

func (m *MemLedger) Close() error { return nil }

var _ Ledger = (*MemLedger)(nil)
