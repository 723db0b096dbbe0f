package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/absmach/flcoord/pkg/fl"
)

type jsonFile struct {
	dir string
}

// JSONFile writes the full history of each run to <dir>/<run id>.json.
func JSONFile(dir string) Reporter {
	return jsonFile{dir: dir}
}

func (jsonFile) RoundCompleted(context.Context, string, fl.RoundRecord) error {
	return nil
}

func (j jsonFile) RunCompleted(_ context.Context, snap fl.Snapshot) error {
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	return os.WriteFile(filepath.Join(j.dir, snap.RunID+".json"), data, 0o644)
}

type csvFile struct {
	dir string
}

// CSVFile writes one row per round to <dir>/<run id>.csv with the
// centralized loss, accuracy and F1 series.
func CSVFile(dir string) Reporter {
	return csvFile{dir: dir}
}

func (csvFile) RoundCompleted(context.Context, string, fl.RoundRecord) error {
	return nil
}

func (c csvFile) RunCompleted(_ context.Context, snap fl.Snapshot) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	f, err := os.Create(filepath.Join(c.dir, snap.RunID+".csv"))
	if err != nil {
		return fmt.Errorf("failed to create csv report: %w", err)
	}
	defer f.Close()

	return WriteCSV(f, snap)
}

var csvHeader = []string{
	"round", "outcome", "fit_sampled", "fit_succeeded", "eval_succeeded",
	"distributed_loss", "loss", "accuracy", "f1_score", "tn", "fp", "fn", "tp",
}

// WriteCSV renders the history as CSV. Metric cells are empty for rounds
// that produced no model.
func WriteCSV(w io.Writer, snap fl.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, r := range snap.Rounds {
		row := []string{
			strconv.Itoa(r.Round),
			string(r.Outcome),
			strconv.Itoa(r.Fit.Sampled),
			strconv.Itoa(r.Fit.Succeeded),
			strconv.Itoa(r.Evaluate.Succeeded),
			"", "", "", "", "", "", "", "",
		}
		if r.Distributed != nil {
			row[5] = formatFloat(r.Distributed.Loss)
		}
		if m := r.Centralized; m != nil {
			row[6] = formatFloat(m.Loss)
			row[7] = formatFloat(m.Accuracy)
			row[8] = formatFloat(m.F1)
			row[9] = strconv.Itoa(m.ConfusionMatrix.TrueNegatives())
			row[10] = strconv.Itoa(m.ConfusionMatrix.FalsePositives())
			row[11] = strconv.Itoa(m.ConfusionMatrix.FalseNegatives())
			row[12] = strconv.Itoa(m.ConfusionMatrix.TruePositives())
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()

	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
