package bridge

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/cowsolver/pkg/adapters"
	"github.com/uhyunpark/cowsolver/pkg/crypto"
	"github.com/uhyunpark/cowsolver/pkg/model"
	"github.com/uhyunpark/cowsolver/pkg/storage"
	"github.com/uhyunpark/cowsolver/pkg/util"
)

type Config struct {
	// Targets lists the chains this bridge may execute on.
	Targets []model.ChainID
	// MaxGasPrice in wei; zero disables the check.
	MaxGasPrice decimal.Decimal
}

// Envelope is the RLP payload submitted to the target chain.
type Envelope struct {
	Source     uint64
	Target     uint64
	Hash       common.Hash
	Settlement []byte
	Solver     []byte
	Signature  []byte
}

// ChainBridge submits attested settlements through a ChainClient and records
// every execution in a ledger keyed by (settlement hash, target chain).
type ChainBridge struct {
	cfg      Config
	targets  map[model.ChainID]bool
	client   adapters.ChainClient
	ledger   storage.Ledger
	attestor *crypto.Attestor
	clock    util.Clock
	log      *zap.SugaredLogger

	// one execution at a time so a retry racing the first call cannot resubmit
	mu sync.Mutex
}

func NewChainBridge(cfg Config, client adapters.ChainClient, ledger storage.Ledger, attestor *crypto.Attestor, clock util.Clock, log *zap.SugaredLogger) *ChainBridge {
	targets := make(map[model.ChainID]bool, len(cfg.Targets))
	for _, c := range cfg.Targets {
		if c.Supported() {
			targets[c] = true
		}
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ChainBridge{cfg: cfg, targets: targets, client: client, ledger: ledger, attestor: attestor, clock: clock, log: log}
}

func (b *ChainBridge) BridgeSettlement(ctx context.Context, s *model.Settlement, target model.ChainID) error {
	if s == nil {
		return executionFailed("nil settlement", nil)
	}
	if !b.targets[target] {
		return invalidChain(target)
	}

	hash, err := s.Hash()
	if err != nil {
		return executionFailed("hash settlement", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	prev, err := b.ledger.Lookup(hash, target)
	if err != nil {
		return executionFailed("ledger lookup", err)
	}
	if prev != nil {
		b.log.Infow("bridge_already_executed", "settlement", s.ID, "target", target, "executed_at", prev.ExecutedAt)
		return nil
	}

	if b.cfg.MaxGasPrice.IsPositive() {
		gas, err := b.client.GasPrice(ctx, target)
		if err != nil {
			return executionFailed("gas price", err)
		}
		if gas.GreaterThan(b.cfg.MaxGasPrice) {
			return executionFailed("gas price "+gas.String()+" above cap "+b.cfg.MaxGasPrice.String(), nil)
		}
	}

	envelope, err := b.envelope(s, hash, target)
	if err != nil {
		return executionFailed("build envelope", err)
	}
	if err := b.client.SubmitTransaction(ctx, target, envelope); err != nil {
		return executionFailed("submit", err)
	}

	rec := storage.BridgeRecord{
		SettlementID: s.ID,
		Hash:         hash,
		Target:       target,
		Envelope:     envelope,
		ExecutedAt:   b.clock.Now().UTC(),
	}
	if err := b.ledger.Record(rec); err != nil {
		// submitted but not recorded: a retry would resubmit
		b.log.Errorw("bridge_record_failed", "settlement", s.ID, "target", target, "err", err)
		return executionFailed("record execution", err)
	}
	b.log.Infow("bridge_executed", "settlement", s.ID, "source", s.Chain, "target", target, "bytes", len(envelope))
	return nil
}

func (b *ChainBridge) envelope(s *model.Settlement, hash common.Hash, target model.ChainID) ([]byte, error) {
	body, err := s.Encode()
	if err != nil {
		return nil, err
	}
	env := Envelope{
		Source:     uint64(s.Chain),
		Target:     uint64(target),
		Hash:       hash,
		Settlement: body,
	}
	if b.attestor != nil {
		pk, err := b.attestor.PublicKeyBytes()
		if err != nil {
			return nil, err
		}
		env.Solver = pk
		env.Signature = b.attestor.Attest(hash, target)
	}
	return rlp.EncodeToBytes(&env)
}

// DecodeEnvelope parses a payload produced by ChainBridge.
func DecodeEnvelope(payload []byte) (*Envelope, error) {
	var env Envelope
	if err := rlp.DecodeBytes(payload, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

var _ Bridge = (*ChainBridge)(nil)
