package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog/log"

	"herbrank/internal/refdata"
	"herbrank/internal/sampling"
)

// Logistic is the built-in baseline scorer: L2-regularized logistic
// regression over SMILES-derived descriptors, trained by seeded SGD with a
// fixed epoch budget. Fully deterministic given (dataset, seed), which is
// what makes checkpoint round-trips bit-identical.
type Logistic struct {
	epochs       int
	learningRate float64
	l2           float64
}

func NewLogistic(maxEpochs int) *Logistic {
	return &Logistic{
		epochs:       maxEpochs,
		learningRate: 0.1,
		l2:           1e-4,
	}
}

func (s *Logistic) Name() string { return "logistic" }

// logisticModel is the checkpointed state: weights plus the training-set
// standardization so inference sees the same feature scale.
type logisticModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Mean    []float64 `json:"mean"`
	Std     []float64 `json:"std"`
}

func (s *Logistic) Fit(ctx context.Context, ds sampling.Dataset) (Predictor, error) {
	var (
		features [][]float64
		labels   []float64
		posUsed  int
		skipped  int
	)
	for _, sample := range ds.Samples {
		x, err := descriptors(sample.SMILES)
		if err != nil {
			skipped++
			continue
		}
		features = append(features, x)
		labels = append(labels, float64(sample.Label))
		if sample.Label == 1 {
			posUsed++
		}
	}
	if skipped > 0 {
		log.Warn().Int("fold", ds.Fold).Int("count", skipped).Msg("training samples with unparsable structures skipped")
	}
	if posUsed == 0 {
		return nil, fmt.Errorf("fold %d: no usable positive samples", ds.Fold)
	}
	if posUsed == len(features) {
		return nil, fmt.Errorf("fold %d: no usable background samples", ds.Fold)
	}

	mean, std := columnStats(features)

	model := &logisticModel{
		Weights: make([]float64, numDescriptors),
		Bias:    0,
		Mean:    mean,
		Std:     std,
	}

	// Train on standardized copies; inference standardizes on the fly.
	scaled := make([][]float64, len(features))
	for i, row := range features {
		z := make([]float64, numDescriptors)
		for j, x := range row {
			z[j] = (x - mean[j]) / std[j]
		}
		scaled[i] = z
	}

	rng := rand.New(rand.NewSource(ds.Seed))
	n := len(scaled)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < s.epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fold %d: training canceled: %w", ds.Fold, err)
		}
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		lr := s.learningRate / (1 + 0.1*float64(epoch))
		for _, i := range order {
			z := model.Bias
			for j, x := range scaled[i] {
				z += model.Weights[j] * x
			}
			grad := sigmoid(z) - labels[i]
			for j, x := range scaled[i] {
				model.Weights[j] -= lr * (grad*x + s.l2*model.Weights[j])
			}
			model.Bias -= lr * grad
		}
	}

	for _, w := range model.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("fold %d: training diverged", ds.Fold)
		}
	}

	return model, nil
}

func (s *Logistic) Save(p Predictor) ([]byte, error) {
	model, ok := p.(*logisticModel)
	if !ok {
		return nil, fmt.Errorf("predictor is not a logistic model")
	}
	return json.Marshal(model)
}

func (s *Logistic) Load(checkpoint []byte) (Predictor, error) {
	var model logisticModel
	if err := json.Unmarshal(checkpoint, &model); err != nil {
		return nil, fmt.Errorf("decode logistic checkpoint: %w", err)
	}
	if len(model.Weights) != numDescriptors || len(model.Mean) != numDescriptors || len(model.Std) != numDescriptors {
		return nil, fmt.Errorf("logistic checkpoint has wrong width")
	}
	return &model, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// forward computes the positive-class probability for a raw feature row.
func (m *logisticModel) forward(raw []float64) float64 {
	z := m.Bias
	for j, x := range raw {
		z += m.Weights[j] * (x - m.Mean[j]) / m.Std[j]
	}
	return sigmoid(z)
}

func (m *logisticModel) ScoreBatch(ctx context.Context, compounds []refdata.Compound) ([]float64, error) {
	scores := make([]float64, len(compounds))
	for i, c := range compounds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x, err := descriptors(c.SMILES)
		if err != nil {
			scores[i] = math.NaN()
			continue
		}
		scores[i] = m.forward(x)
	}
	return scores, nil
}

// columnStats computes per-column mean and std; zero-variance columns get
// std 1 so standardization stays a no-op for them.
func columnStats(rows [][]float64) (mean, std []float64) {
	mean = make([]float64, numDescriptors)
	std = make([]float64, numDescriptors)
	n := float64(len(rows))

	for _, row := range rows {
		for j, x := range row {
			mean[j] += x
		}
	}
	for j := range mean {
		mean[j] /= n
	}
	for _, row := range rows {
		for j, x := range row {
			d := x - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
		if std[j] == 0 {
			std[j] = 1 // constant column
		}
	}
	return mean, std
}
