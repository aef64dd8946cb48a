package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"
)

// settlementNamespace scopes settlement ids so they never collide with other v5 uuids.
var settlementNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("cowsolver/settlement"))

// Settlement is the validated outcome of one batch.
// Unsettled is a report only; it is not part of the settlement's identity.
type Settlement struct {
	ID             uuid.UUID       `json:"id"`
	ClearingPrice  decimal.Decimal `json:"clearingPrice"`
	Orders         []Order         `json:"orders"`
	Transfers      []Transfer      `json:"transfers"`
	Chain          ChainID         `json:"chain"`
	BatchTimestamp time.Time       `json:"batchTimestamp"`
	Unsettled      []Residual      `json:"unsettled,omitempty"`
}

type transferRLP struct {
	From      common.Address
	To        common.Address
	Token     common.Address
	Amount    string
	Kind      uint8
	FromOrder uint64
	ToOrder   uint64
}

// rlpTime carries a timestamp as sign, whole seconds and nanoseconds since
// the unix epoch; RLP has no signed integers.
type rlpTime struct {
	BeforeEpoch bool
	Seconds     uint64
	Nanos       uint64
}

func newRLPTime(t time.Time) rlpTime {
	sec := t.Unix()
	if sec < 0 {
		return rlpTime{BeforeEpoch: true, Seconds: uint64(-sec), Nanos: uint64(t.Nanosecond())}
	}
	return rlpTime{Seconds: uint64(sec), Nanos: uint64(t.Nanosecond())}
}

type settlementRLP struct {
	Chain          uint64
	BatchTimestamp rlpTime
	ClearingPrice  string
	OrderIDs       []uint64
	Transfers      []transferRLP
}

// Encode returns the canonical RLP encoding used for hashing and on-chain submission.
func (s *Settlement) Encode() ([]byte, error) {
	w := settlementRLP{
		Chain:          uint64(s.Chain),
		BatchTimestamp: newRLPTime(s.BatchTimestamp),
		ClearingPrice:  s.ClearingPrice.String(),
		OrderIDs:       make([]uint64, len(s.Orders)),
		Transfers:      make([]transferRLP, len(s.Transfers)),
	}
	for i, o := range s.Orders {
		w.OrderIDs[i] = o.ID
	}
	for i, t := range s.Transfers {
		w.Transfers[i] = transferRLP{
			From:      t.From,
			To:        t.To,
			Token:     t.Token.Address,
			Amount:    t.Amount.String(),
			Kind:      uint8(t.Kind),
			FromOrder: t.FromOrder,
			ToOrder:   t.ToOrder,
		}
	}
	return rlp.EncodeToBytes(&w)
}

// Hash is the Keccak-256 of Encode.
func (s *Settlement) Hash() (common.Hash, error) {
	enc, err := s.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(enc)
	return common.BytesToHash(h.Sum(nil)), nil
}

// Seal derives the settlement id from its content hash, so identical
// input always produces the same id.
func (s *Settlement) Seal() error {
	h, err := s.Hash()
	if err != nil {
		return err
	}
	s.ID = uuid.NewSHA1(settlementNamespace, h[:])
	return nil
}

// OrderIDs lists the ids of the orders the settlement includes.
func (s *Settlement) OrderIDs() []uint64 {
	ids := make([]uint64, len(s.Orders))
	for i, o := range s.Orders {
		ids[i] = o.ID
	}
	return ids
}

// Fills aggregates transfers into per-order sold/received totals.
func (s *Settlement) Fills() map[uint64]*Fill {
	fills := make(map[uint64]*Fill)
	get := func(id uint64) *Fill {
		f, ok := fills[id]
		if !ok {
			f = &Fill{OrderID: id}
			fills[id] = f
		}
		return f
	}
	for _, t := range s.Transfers {
		if t.Debits() {
			f := get(t.FromOrder)
			f.Sold = f.Sold.Add(t.Amount)
		}
		if t.Credits() {
			f := get(t.ToOrder)
			f.Received = f.Received.Add(t.Amount)
		}
	}
	return fills
}
