package p2p

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

const wireVersion = 1

// SettlementWire is the gossip payload announcing a solved batch.
type SettlementWire struct {
	Version    int               `json:"version"`
	Solver     string            `json:"solver"`
	Settlement *model.Settlement `json:"settlement"`
}

// OrderWire shares a submitted order with the other solver nodes.
type OrderWire struct {
	Version int         `json:"version"`
	Order   model.Order `json:"order"`
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decodeSettlement(b []byte) (*SettlementWire, error) {
	var w SettlementWire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, errors.Wrap(err, "decode settlement")
	}
	if w.Version != wireVersion {
		return nil, errors.Errorf("unsupported settlement wire version %d", w.Version)
	}
	if w.Settlement == nil {
		return nil, errors.New("settlement missing")
	}
	return &w, nil
}

func decodeOrder(b []byte) (*OrderWire, error) {
	var w OrderWire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	if w.Version != wireVersion {
		return nil, errors.Errorf("unsupported order wire version %d", w.Version)
	}
	return &w, nil
}
