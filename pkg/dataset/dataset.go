// Package dataset loads tabular binary-classification data and splits it
// between the coordinator's holdout set and the participants.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"
)

var (
	ErrMissingTarget = errors.New("target column not found")
	ErrEmpty         = errors.New("dataset is empty")
)

type Dataset struct {
	Features []string
	X        [][]float64
	Y        []float64
}

func (d Dataset) Len() int {
	return len(d.Y)
}

func (d Dataset) NumFeatures() int {
	if len(d.X) == 0 {
		return len(d.Features)
	}

	return len(d.X[0])
}

// LoadCSV reads a CSV file with a header row. Every column must be numeric;
// target names the label column.
func LoadCSV(path, target string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	return ReadCSV(f, target)
}

func ReadCSV(r io.Reader, target string) (Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Dataset{}, ErrEmpty
		}

		return Dataset{}, fmt.Errorf("failed to read header: %w", err)
	}

	targetIdx := slices.Index(header, target)
	if targetIdx < 0 {
		return Dataset{}, fmt.Errorf("%w: %q", ErrMissingTarget, target)
	}

	d := Dataset{Features: slices.Delete(slices.Clone(header), targetIdx, targetIdx+1)}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		row := make([]float64, 0, len(record)-1)
		var label float64
		for i, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return Dataset{}, fmt.Errorf("line %d column %q: %w", line, header[i], err)
			}
			if i == targetIdx {
				label = v

				continue
			}
			row = append(row, v)
		}
		d.X = append(d.X, row)
		d.Y = append(d.Y, label)
	}
	if d.Len() == 0 {
		return Dataset{}, ErrEmpty
	}

	return d, nil
}

// Slice returns rows [i, j). The rows share memory with d.
func (d Dataset) Slice(i, j int) Dataset {
	i = min(max(i, 0), d.Len())
	j = min(max(j, i), d.Len())

	return Dataset{Features: d.Features, X: d.X[i:j], Y: d.Y[i:j]}
}

// Head returns at most the first n rows.
func (d Dataset) Head(n int) Dataset {
	return d.Slice(0, n)
}

func (d Dataset) Subset(idx []int) Dataset {
	out := Dataset{
		Features: d.Features,
		X:        make([][]float64, len(idx)),
		Y:        make([]float64, len(idx)),
	}
	for k, i := range idx {
		out.X[k] = d.X[i]
		out.Y[k] = d.Y[i]
	}

	return out
}

// Split shuffles rows with a seeded generator and puts testFraction of them,
// rounded up, in the test set.
func (d Dataset) Split(testFraction float64, seed uint64) (train, test Dataset) {
	n := d.Len()
	nTest := int(float64(n)*testFraction + 0.999999)
	nTest = min(max(nTest, 0), n)

	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)

	return d.Subset(perm[nTest:]), d.Subset(perm[:nTest])
}

// Partition divides the rows into n contiguous shards whose sizes differ by
// at most one.
func (d Dataset) Partition(n int) []Dataset {
	if n <= 0 {
		return nil
	}

	shards := make([]Dataset, n)
	size, rest := d.Len()/n, d.Len()%n
	start := 0
	for i := range n {
		end := start + size
		if i < rest {
			end++
		}
		shards[i] = d.Slice(start, end)
		start = end
	}

	return shards
}
