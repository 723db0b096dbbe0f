package fl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Checkpoints persists round records as JSON and model versions as CBOR
// under one directory per run.
type Checkpoints struct {
	roundsDir string
	modelsDir string
	mu        sync.RWMutex
}

func NewCheckpoints(baseDir, runID string) (*Checkpoints, error) {
	id := sanitizeRunID(runID)
	if id == "" {
		return nil, fmt.Errorf("invalid run ID: %q", runID)
	}

	cp := &Checkpoints{
		roundsDir: filepath.Join(baseDir, id, "rounds"),
		modelsDir: filepath.Join(baseDir, id, "models"),
	}
	if err := os.MkdirAll(cp.roundsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create rounds directory: %w", err)
	}
	if err := os.MkdirAll(cp.modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return cp, nil
}

func (cp *Checkpoints) SaveRecord(rec RoundRecord) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal round record: %w", err)
	}

	file := filepath.Join(cp.roundsDir, fmt.Sprintf("round_%04d.json", rec.Round))
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write round file: %w", err)
	}

	return nil
}

// Records returns every stored record ordered by round number.
func (cp *Checkpoints) Records() ([]RoundRecord, error) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	entries, err := os.ReadDir(cp.roundsDir)
	if err != nil {
		return nil, err
	}

	var records []RoundRecord
	for _, entry := range entries {
		var round int
		if entry.IsDir() {
			continue
		}
		if _, err := fmt.Sscanf(entry.Name(), "round_%d.json", &round); err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(cp.roundsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read round file: %w", err)
		}
		var rec RoundRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal round record: %w", err)
		}
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b RoundRecord) int { return a.Round - b.Round })

	return records, nil
}

func (cp *Checkpoints) SaveModel(version int, ps ParameterSet) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	data, err := MarshalParameters(ps)
	if err != nil {
		return err
	}

	file := filepath.Join(cp.modelsDir, fmt.Sprintf("model_v%d.cbor", version))
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	return nil
}

func (cp *Checkpoints) LoadModel(version int) (ParameterSet, error) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(cp.modelsDir, fmt.Sprintf("model_v%d.cbor", version)))
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	return UnmarshalParameters(data)
}

// Versions lists stored model versions in ascending order.
func (cp *Checkpoints) Versions() ([]int, error) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	entries, err := os.ReadDir(cp.modelsDir)
	if err != nil {
		return nil, err
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "model_v%d.cbor", &version); err == nil {
			versions = append(versions, version)
		}
	}
	slices.Sort(versions)

	return versions, nil
}

// sanitizeRunID keeps only characters that are safe in a directory name.
func sanitizeRunID(id string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(id) {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
