package fl_test

import (
	"os"
	"testing"

	"github.com/absmach/flcoord/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameterSetCompatible(t *testing.T) {
	a := fl.ParameterSet{fl.Zeros(13, 11), fl.Zeros(11), fl.Zeros(11, 1), fl.Zeros(1)}

	cases := []struct {
		desc  string
		other fl.ParameterSet
		want  bool
	}{
		{desc: "same signature", other: a.Clone(), want: true},
		{desc: "missing tensor", other: a[:3], want: false},
		{desc: "transposed tensor", other: fl.ParameterSet{fl.Zeros(11, 13), fl.Zeros(11), fl.Zeros(11, 1), fl.Zeros(1)}, want: false},
		{desc: "reordered tensors", other: fl.ParameterSet{fl.Zeros(11), fl.Zeros(13, 11), fl.Zeros(11, 1), fl.Zeros(1)}, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, a.Compatible(tc.other))
		})
	}
}

func TestParameterSetCloneIsDeep(t *testing.T) {
	a := fl.ParameterSet{{Shape: []int{2}, Data: []float64{1, 2}}}
	b := a.Clone()
	b[0].Data[0] = 42

	assert.Equal(t, 1.0, a[0].Data[0])
	assert.False(t, a.Equal(b))
}

func TestNewTensor(t *testing.T) {
	_, err := fl.NewTensor([]int{2, 3}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, fl.ErrShapeMismatch)

	tensor, err := fl.NewTensor([]int{1, 3}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, tensor.Len())
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, fl.ParameterSet{}.Validate(), fl.ErrEmptyParameters)
	assert.ErrorIs(t, fl.ParameterSet{{Shape: []int{3}, Data: []float64{1}}}.Validate(), fl.ErrShapeMismatch)
	assert.NoError(t, fl.ParameterSet{fl.Zeros(2, 2)}.Validate())
}

func TestWeightedAverageRequiresPositiveWeight(t *testing.T) {
	_, err := fl.WeightedAverage([]fl.ParameterSet{scalar(1)}, []float64{0})
	assert.ErrorIs(t, err, fl.ErrInvalidSampleCount)
}

func TestCodec(t *testing.T) {
	ps := fl.ParameterSet{
		{Shape: []int{2, 1}, Data: []float64{0.25, -3}},
		{Shape: []int{1}, Data: []float64{1e-9}},
	}

	encoded, err := fl.EncodeParameters(ps)
	require.NoError(t, err)

	decoded, err := fl.DecodeParameters(encoded)
	require.NoError(t, err)
	assert.True(t, ps.Equal(decoded))

	_, err = fl.DecodeParameters("")
	assert.ErrorIs(t, err, fl.ErrEmptyParameters)

	_, err = fl.DecodeParameters("not base64!")
	assert.Error(t, err)
}

func TestCheckpoints(t *testing.T) {
	dir, err := os.MkdirTemp("", "flcoord-checkpoints")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cp, err := fl.NewCheckpoints(dir, "run-1")
	require.NoError(t, err)

	ps := fl.ParameterSet{{Shape: []int{2}, Data: []float64{1, 2}}}
	require.NoError(t, cp.SaveModel(2, ps))
	require.NoError(t, cp.SaveModel(1, ps))

	versions, err := cp.Versions()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)

	loaded, err := cp.LoadModel(2)
	require.NoError(t, err)
	assert.True(t, ps.Equal(loaded))

	require.NoError(t, cp.SaveRecord(fl.RoundRecord{Round: 2, Outcome: fl.OutcomeFailed}))
	require.NoError(t, cp.SaveRecord(fl.RoundRecord{Round: 1, Outcome: fl.OutcomeSucceeded}))
	records, err := cp.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Round)
	assert.Equal(t, fl.OutcomeFailed, records[1].Outcome)

	_, err = fl.NewCheckpoints(dir, "../..")
	assert.Error(t, err)
}
