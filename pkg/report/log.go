package report

import (
	"context"
	"log/slog"

	"github.com/absmach/flcoord/pkg/fl"
)

type logReporter struct {
	logger *slog.Logger
}

// Log writes round metrics and the final summary to a structured logger.
func Log(logger *slog.Logger) Reporter {
	return logReporter{logger: logger}
}

func (l logReporter) RoundCompleted(ctx context.Context, runID string, rec fl.RoundRecord) error {
	if rec.Centralized == nil {
		return nil
	}
	l.logger.InfoContext(ctx, "centralized evaluation",
		slog.String("run_id", runID),
		slog.Int("round", rec.Round),
		slog.Float64("loss", rec.Centralized.Loss),
		slog.Float64("accuracy", rec.Centralized.Accuracy),
		slog.Float64("f1_score", rec.Centralized.F1),
		slog.Any("confusion_matrix", rec.Centralized.ConfusionMatrix),
	)

	return nil
}

func (l logReporter) RunCompleted(ctx context.Context, snap fl.Snapshot) error {
	succeeded := len(snap.Succeeded())
	args := []any{
		slog.String("run_id", snap.RunID),
		slog.Int("rounds", len(snap.Rounds)),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", len(snap.Rounds)-succeeded),
	}
	if _, loss := snap.Series("loss"); len(loss) > 0 {
		_, acc := snap.Series("accuracy")
		_, f1 := snap.Series("f1_score")
		args = append(args, slog.Group("final",
			slog.Float64("loss", loss[len(loss)-1]),
			slog.Float64("accuracy", acc[len(acc)-1]),
			slog.Float64("f1_score", f1[len(f1)-1]),
		))
	}
	l.logger.InfoContext(ctx, "run history", args...)

	return nil
}
