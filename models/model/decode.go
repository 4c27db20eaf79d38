package model

import (
	"fmt"
	"sort"

	"github.com/chewxy/math32"
)

// distributionTolerance is how far the sum of an output vector may drift from
// one before it is treated as logits.
const distributionTolerance = 1e-2

// DecodeTopK returns the k highest scoring classes of output, sorted by
// probability descending. Equal probabilities keep their output order. Outputs
// that are not already a probability distribution are passed through softmax.
//
// Arguments:
//   - output: The raw output vector of a single image.
//   - classes: The label set the output indexes into.
//   - k: The number of predictions to return.
//
// Returns:
//   - []Prediction: At most k predictions.
//   - error: An error if the output and the label set disagree, or the output
//     holds NaN or infinite values.
func DecodeTopK(output []float32, classes *OutputClassSet, k int) ([]Prediction, error) {
	if classes == nil {
		return nil, fmt.Errorf("no class set to decode with")
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("empty output vector")
	}
	if len(output) != classes.Len() {
		return nil, fmt.Errorf("output has %d values, class set has %d", len(output), classes.Len())
	}
	if k <= 0 {
		return nil, fmt.Errorf("invalid k %d", k)
	}
	for i, v := range output {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return nil, fmt.Errorf("output value %d is not finite: %v", i, v)
		}
	}

	probs := output
	if !IsDistribution(output) {
		probs = Softmax(output)
	}

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return probs[order[a]] > probs[order[b]]
	})

	if k > len(order) {
		k = len(order)
	}
	predictions := make([]Prediction, 0, k)
	for _, idx := range order[:k] {
		class, err := classes.Get(idx)
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, Prediction{
			Index:       idx,
			ClassID:     class.ID,
			Label:       class.Name,
			Probability: probs[idx],
		})
	}
	return predictions, nil
}

// IsDistribution reports whether values are all in [0, 1] and sum to one.
func IsDistribution(values []float32) bool {
	var sum float32
	for _, v := range values {
		if math32.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
		sum += v
	}
	return math32.Abs(sum-1) <= distributionTolerance
}

// Softmax returns a new slice holding the softmax of values.
func Softmax(values []float32) []float32 {
	out := make([]float32, len(values))
	if len(values) == 0 {
		return out
	}
	maxVal := values[0]
	for _, v := range values[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float32
	for i, v := range values {
		out[i] = math32.Exp(v - maxVal)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
