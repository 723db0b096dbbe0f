package report_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/mqtt/mocks"
	"github.com/absmach/flcoord/pkg/report"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func history() fl.Snapshot {
	return fl.Snapshot{
		RunID: "run-1",
		Rounds: []fl.RoundRecord{
			{
				Round:       1,
				Outcome:     fl.OutcomeSucceeded,
				Fit:         fl.Participation{Sampled: 3, Succeeded: 3},
				Evaluate:    fl.Participation{Sampled: 2, Succeeded: 1, TimedOut: 1},
				Distributed: &fl.DistributedMetrics{Loss: 0.5},
				Centralized: &fl.CentralizedMetrics{
					Loss:            0.4,
					Accuracy:        0.8,
					F1:              0.75,
					ConfusionMatrix: fl.ConfusionMatrix{{20, 5}, {5, 20}},
				},
				Duration: time.Second,
			},
			{
				Round:   2,
				Outcome: fl.OutcomeFailed,
				Reason:  fl.ErrNoSuccessfulClients.Error(),
				Fit:     fl.Participation{Sampled: 3, TimedOut: 3},
			},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, history()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "round,outcome"))
	assert.Equal(t, "1,succeeded,3,3,1,0.500000,0.400000,0.800000,0.750000,20,5,5,20", lines[1])
	assert.Equal(t, "2,failed,3,0,0,,,,,,,,", lines[2])
}

func TestFileReporters(t *testing.T) {
	dir := t.TempDir()
	r := report.Multi(report.JSONFile(dir), report.CSVFile(dir))

	require.NoError(t, r.RoundCompleted(context.Background(), "run-1", history().Rounds[0]))
	require.NoError(t, r.RunCompleted(context.Background(), history()))

	data, err := os.ReadFile(filepath.Join(dir, "run-1.json"))
	require.NoError(t, err)

	var snap fl.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Len(t, snap.Rounds, 2)
	assert.Equal(t, 0.75, snap.Rounds[0].Centralized.F1)

	_, err = os.Stat(filepath.Join(dir, "run-1.csv"))
	assert.NoError(t, err)
}

func TestPublisher(t *testing.T) {
	ps := new(mocks.PubSub)
	ps.On("Publish", mock.Anything, "rounds", mock.MatchedBy(func(msg map[string]any) bool {
		return msg["round"] == 1 && msg["run_id"] == "run-1"
	})).Return(nil).Once()
	ps.On("Publish", mock.Anything, "rounds", mock.Anything).Return(errors.New("broker down")).Once()

	r := report.Publisher(ps, "rounds")
	require.NoError(t, r.RoundCompleted(context.Background(), "run-1", history().Rounds[0]))
	assert.Error(t, r.RunCompleted(context.Background(), history()))
	ps.AssertExpectations(t)
}

func TestInstrument(t *testing.T) {
	rounds := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rounds_total"}, []string{"outcome"})
	results := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "client_results_total"}, []string{"phase", "status"})
	metric := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "model_metric"}, []string{"name"})
	duration := prometheus.NewSummaryVec(prometheus.SummaryOpts{Name: "round_duration_seconds"}, []string{})

	r := report.Instrument(report.Instruments{
		Rounds:        kitprometheus.NewCounter(rounds),
		ClientResults: kitprometheus.NewCounter(results),
		Metric:        kitprometheus.NewGauge(metric),
		RoundDuration: kitprometheus.NewSummary(duration),
	})

	for _, rec := range history().Rounds {
		require.NoError(t, r.RoundCompleted(context.Background(), "run-1", rec))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(rounds.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rounds.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(results.WithLabelValues("fit", "timed_out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(results.WithLabelValues("evaluate", "timed_out")))
	assert.Equal(t, 0.8, testutil.ToFloat64(metric.WithLabelValues("accuracy")))
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	r := report.Log(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, r.RoundCompleted(context.Background(), "run-1", history().Rounds[0]))
	require.NoError(t, r.RunCompleted(context.Background(), history()))

	out := buf.String()
	assert.Contains(t, out, `"msg":"centralized evaluation"`)
	assert.Contains(t, out, `"succeeded":1`)
	assert.Contains(t, out, `"f1_score":0.75`)
}
