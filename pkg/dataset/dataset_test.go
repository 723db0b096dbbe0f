package dataset_test

import (
	"strings"
	"testing"

	"github.com/absmach/flcoord/pkg/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const heart = `age,sex,chol,target
63,1,233,1
37,1,250,1
41,0,204,0
56,1,236,0
57,0,354,1
`

func TestReadCSV(t *testing.T) {
	cases := []struct {
		desc   string
		input  string
		target string
		rows   int
		err    error
	}{
		{desc: "valid file", input: heart, target: "target", rows: 5},
		{desc: "missing target", input: heart, target: "label", err: dataset.ErrMissingTarget},
		{desc: "header only", input: "a,target\n", target: "target", err: dataset.ErrEmpty},
		{desc: "empty input", input: "", target: "target", err: dataset.ErrEmpty},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			d, err := dataset.ReadCSV(strings.NewReader(tc.input), tc.target)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.rows, d.Len())
			assert.Equal(t, []string{"age", "sex", "chol"}, d.Features)
			assert.Equal(t, []float64{63, 1, 233}, d.X[0])
			assert.Equal(t, []float64{1, 1, 0, 0, 1}, d.Y)
		})
	}

	_, err := dataset.ReadCSV(strings.NewReader("a,target\nx,1\n"), "target")
	assert.Error(t, err)
}

func TestSplitIsReproducible(t *testing.T) {
	d := dataset.Synthetic(100, 4, 1)

	train1, test1 := d.Split(0.2, 42)
	train2, test2 := d.Split(0.2, 42)

	assert.Equal(t, 80, train1.Len())
	assert.Equal(t, 20, test1.Len())
	assert.Equal(t, train1.Y, train2.Y)
	assert.Equal(t, test1.X, test2.X)
}

func TestPartition(t *testing.T) {
	d := dataset.Synthetic(10, 2, 1)

	shards := d.Partition(3)
	require.Len(t, shards, 3)
	assert.Equal(t, []int{4, 3, 3}, []int{shards[0].Len(), shards[1].Len(), shards[2].Len()})
	assert.Equal(t, d.X[4], shards[1].X[0])
	assert.Nil(t, d.Partition(0))
}

func TestHead(t *testing.T) {
	d := dataset.Synthetic(10, 2, 1)

	assert.Equal(t, 5, d.Head(5).Len())
	assert.Equal(t, 10, d.Head(50).Len())
}

func TestStandardizer(t *testing.T) {
	d := dataset.Dataset{
		X: [][]float64{{1, 5}, {3, 5}, {5, 5}},
		Y: []float64{0, 1, 0},
	}

	s := dataset.FitStandardizer(d)
	assert.Equal(t, []float64{3, 5}, s.Mean)
	assert.Equal(t, 1.0, s.Std[1])

	scaled := s.Apply(d)
	assert.InDelta(t, 0, scaled.X[1][0], 1e-12)
	assert.InDelta(t, -1, scaled.X[0][0], 1e-12)
	assert.Equal(t, 0.0, scaled.X[2][1])
	assert.Equal(t, 1.0, d.X[0][0])
}
