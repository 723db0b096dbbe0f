package fl

import (
	"fmt"
	"math"
)

const epsilon = 1e-7

// ConfusionMatrix for binary classification, indexed [actual][predicted].
type ConfusionMatrix [2][2]int

func (c ConfusionMatrix) TrueNegatives() int  { return c[0][0] }
func (c ConfusionMatrix) FalsePositives() int { return c[0][1] }
func (c ConfusionMatrix) FalseNegatives() int { return c[1][0] }
func (c ConfusionMatrix) TruePositives() int  { return c[1][1] }

func (c ConfusionMatrix) Total() int {
	return c[0][0] + c[0][1] + c[1][0] + c[1][1]
}

func (c ConfusionMatrix) Accuracy() float64 {
	if c.Total() == 0 {
		return 0
	}

	return float64(c.TruePositives()+c.TrueNegatives()) / float64(c.Total())
}

// F1 is the harmonic mean of precision and recall for the positive class.
// It is zero when there are no true positives.
func (c ConfusionMatrix) F1() float64 {
	tp := float64(c.TruePositives())
	denom := 2*tp + float64(c.FalsePositives()+c.FalseNegatives())
	if tp == 0 || denom == 0 {
		return 0
	}

	return 2 * tp / denom
}

// Confusion counts predictions against binary labels. A probability is
// positive only above 0.5, so an exact 0.5 rounds to the negative class.
func Confusion(labels, probs []float64) (ConfusionMatrix, error) {
	var cm ConfusionMatrix
	if len(labels) != len(probs) {
		return cm, fmt.Errorf("got %d labels and %d predictions", len(labels), len(probs))
	}
	for i, y := range labels {
		actual := 0
		if y >= 0.5 {
			actual = 1
		}
		predicted := 0
		if probs[i] > 0.5 {
			predicted = 1
		}
		cm[actual][predicted]++
	}

	return cm, nil
}

// BinaryCrossEntropy is the mean log loss of probabilities against labels.
func BinaryCrossEntropy(labels, probs []float64) (float64, error) {
	if len(labels) != len(probs) {
		return 0, fmt.Errorf("got %d labels and %d predictions", len(labels), len(probs))
	}
	if len(labels) == 0 {
		return 0, nil
	}

	var sum float64
	for i, y := range labels {
		p := math.Min(math.Max(probs[i], epsilon), 1-epsilon)
		sum -= y*math.Log(p) + (1-y)*math.Log(1-p)
	}

	return sum / float64(len(labels)), nil
}

// Classification scores probabilities against labels.
func Classification(labels, probs []float64) (CentralizedMetrics, error) {
	loss, err := BinaryCrossEntropy(labels, probs)
	if err != nil {
		return CentralizedMetrics{}, err
	}
	cm, err := Confusion(labels, probs)
	if err != nil {
		return CentralizedMetrics{}, err
	}

	return CentralizedMetrics{
		Loss:            loss,
		Accuracy:        cm.Accuracy(),
		F1:              cm.F1(),
		ConfusionMatrix: cm,
		NumSamples:      len(labels),
	}, nil
}
