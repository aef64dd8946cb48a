// Package metrics instruments the solver with Prometheus collectors.
package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

// BatchSolver is the part of the solver the API and the node loop depend on.
type BatchSolver interface {
	Chain() model.ChainID
	ProcessBatch(ctx context.Context, batch model.BatchAuction) (*model.Settlement, error)
}

const (
	OutcomeSettled   = "settled"
	OutcomeUnsettled = "unsettled"
	OutcomeExpired   = "expired"
	OutcomeError     = "error"
)

// InstrumentedSolver counts batch outcomes and solve latency around another solver.
type InstrumentedSolver struct {
	next      BatchSolver
	batches   *prometheus.CounterVec
	latency   prometheus.Histogram
	transfers *prometheus.CounterVec
	unsettled prometheus.Counter
}

func Instrument(next BatchSolver, reg prometheus.Registerer, namespace string) (*InstrumentedSolver, error) {
	s := &InstrumentedSolver{
		next: next,
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "batches_total",
			Help:      "Batches processed by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "solve_duration_seconds",
			Help:      "Time spent solving one batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "transfers_total",
			Help:      "Transfers in produced settlements by kind.",
		}, []string{"kind"}),
		unsettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "unsettled_orders_total",
			Help:      "Orders reported unsettled.",
		}),
	}
	for _, c := range []prometheus.Collector{s.batches, s.latency, s.transfers, s.unsettled} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register solver metrics")
		}
	}
	return s, nil
}

func (s *InstrumentedSolver) Chain() model.ChainID { return s.next.Chain() }

func (s *InstrumentedSolver) ProcessBatch(ctx context.Context, batch model.BatchAuction) (st *model.Settlement, err error) {
	defer func(begin time.Time) {
		s.latency.Observe(time.Since(begin).Seconds())
		s.batches.WithLabelValues(outcome(err)).Inc()
		var unsettled *model.UnsettledBatchError
		switch {
		case st != nil:
			for _, t := range st.Transfers {
				s.transfers.WithLabelValues(t.Kind.String()).Inc()
			}
			s.unsettled.Add(float64(len(st.Unsettled)))
		case errors.As(err, &unsettled):
			s.unsettled.Add(float64(len(unsettled.Unsettled)))
		}
	}(time.Now())
	return s.next.ProcessBatch(ctx, batch)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSettled
	case errors.Is(err, model.ErrBatchExpired):
		return OutcomeExpired
	case errors.Is(err, model.ErrNoSettlement):
		return OutcomeUnsettled
	default:
		return OutcomeError
	}
}

// RegisterPool exposes the number of orders waiting for the next batch.
func RegisterPool(reg prometheus.Registerer, namespace string, pending func() int) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "pending_orders",
		Help:      "Orders waiting for the next batch.",
	}, func() float64 { return float64(pending()) })
	return errors.Wrap(reg.Register(g), "register pool metrics")
}
