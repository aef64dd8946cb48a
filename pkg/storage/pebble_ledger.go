package storage

import (
	"encoding/json"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

type PebbleLedger struct {
	db *pebble.DB
	// serializes the read-check-write in Record
	mu sync.Mutex
}

func NewPebbleLedger(path string) (*PebbleLedger, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open ledger %s", path)
	}
	return &PebbleLedger{db: db}, nil
}

func (s *PebbleLedger) Close() error { return s.db.Close() }

func (s *PebbleLedger) Lookup(hash common.Hash, target model.ChainID) (*BridgeRecord, error) {
	data, closer, err := s.db.Get(recordKey(hash, target))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get bridge record")
	}
	defer closer.Close()

	var rec BridgeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "unmarshal bridge record")
	}
	return &rec, nil
}

func (s *PebbleLedger) Record(rec BridgeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal bridge record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.Lookup(rec.Hash, rec.Target)
	if err != nil {
		return err
	}
	if existing != nil {
		return errors.Wrapf(ErrDuplicateRecord, "settlement %s on chain %s", rec.Hash, rec.Target)
	}
	if err := s.db.Set(recordKey(rec.Hash, rec.Target), data, pebble.Sync); err != nil {
		return errors.Wrap(err, "save bridge record")
	}
	return nil
}

// List returns every record for target ordered by settlement hash.
func (s *PebbleLedger) List(target model.ChainID) ([]BridgeRecord, error) {
	prefix := targetPrefix(target)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, errors.Wrap(err, "iterate bridge records")
	}
	defer iter.Close()

	var out []BridgeRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec BridgeRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, errors.Wrap(err, "unmarshal bridge record")
		}
		out = append(out, rec)
	}
	return out, nil
}

var _ Ledger = (*PebbleLedger)(nil)
