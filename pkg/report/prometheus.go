package report

import (
	"context"

	"github.com/absmach/flcoord/pkg/fl"
	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// Instruments are the round level metrics exported by the coordinator.
type Instruments struct {
	Rounds        metrics.Counter
	ClientResults metrics.Counter
	Metric        metrics.Gauge
	RoundDuration metrics.Histogram
}

// MakeInstruments registers the round level metrics.
func MakeInstruments(namespace string) Instruments {
	return Instruments{
		Rounds: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "total",
			Help:      "Number of rounds by outcome.",
		}, []string{"outcome"}),
		ClientResults: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clients",
			Name:      "results_total",
			Help:      "Number of client call results by phase and status.",
		}, []string{"phase", "status"}),
		Metric: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "metric",
			Help:      "Latest evaluation metric of the global model.",
		}, []string{"name"}),
		RoundDuration: kitprometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rounds",
			Name:      "duration_seconds",
			Help:      "Wall time of a round.",
			Buckets:   stdprometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{}),
	}
}

type instrumented struct {
	in Instruments
}

func Instrument(in Instruments) Reporter {
	return instrumented{in: in}
}

func (i instrumented) RoundCompleted(_ context.Context, _ string, rec fl.RoundRecord) error {
	i.in.Rounds.With("outcome", string(rec.Outcome)).Add(1)
	i.in.RoundDuration.Observe(rec.Duration.Seconds())

	for phase, p := range map[string]fl.Participation{"fit": rec.Fit, "evaluate": rec.Evaluate} {
		i.in.ClientResults.With("phase", phase, "status", fl.Success.String()).Add(float64(p.Succeeded))
		i.in.ClientResults.With("phase", phase, "status", fl.Failed.String()).Add(float64(p.Failed + p.Excluded))
		i.in.ClientResults.With("phase", phase, "status", fl.TimedOut.String()).Add(float64(p.TimedOut))
	}

	if m := rec.Centralized; m != nil {
		i.in.Metric.With("name", "loss").Set(m.Loss)
		i.in.Metric.With("name", "accuracy").Set(m.Accuracy)
		i.in.Metric.With("name", "f1_score").Set(m.F1)
	}
	if d := rec.Distributed; d != nil {
		i.in.Metric.With("name", "distributed_loss").Set(d.Loss)
	}

	return nil
}

func (instrumented) RunCompleted(context.Context, fl.Snapshot) error {
	return nil
}
