package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/avvvet/chatbuddy/internal/catalog"
	"github.com/avvvet/chatbuddy/internal/models"
)

// SVM training parameters
const (
	svmLearningRate = 0.1
	svmLambda       = 1e-3
	svmEpochs       = 50
	svmSoftmaxScale = 2.0
)

// SVMModel is a one-vs-rest linear SVM over L2 normalised TF-IDF vectors
type SVMModel struct {
	Labels  []string       `json:"labels"`
	Vocab   map[string]int `json:"vocab"`
	IDF     []float64      `json:"idf"`
	Weights [][]float64    `json:"weights"`
	Bias    []float64      `json:"bias"`
}

type feature struct {
	index int
	value float64
}

// SVMTrainer trains SVMModel instances
type SVMTrainer struct{}

// Train fits one hinge-loss classifier per intent with plain SGD. Examples are
// visited in catalog order so training is deterministic.
func (SVMTrainer) Train(ctx context.Context, c *catalog.Catalog, pre Preprocessor) (PredictionModel, error) {
	type sample struct {
		label  string
		tokens []string
	}

	var samples []sample
	labelSet := make(map[string]struct{})
	for _, ex := range c.TrainingSet() {
		tokens := pre.Preprocess(ex.Text)
		if len(tokens) == 0 {
			continue
		}
		samples = append(samples, sample{label: ex.Label, tokens: tokens})
		labelSet[ex.Label] = struct{}{}
	}
	if len(samples) == 0 {
		return nil, ErrNoTrainingData
	}

	m := &SVMModel{Vocab: make(map[string]int)}
	for label := range labelSet {
		m.Labels = append(m.Labels, label)
	}
	sort.Strings(m.Labels)

	// vocabulary and document frequencies
	df := make(map[string]int)
	for _, s := range samples {
		seen := make(map[string]struct{})
		for _, tok := range s.tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(samples))
	m.IDF = make([]float64, len(terms))
	for i, term := range terms {
		m.Vocab[term] = i
		m.IDF[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	vectors := make([][]feature, len(samples))
	for i, s := range samples {
		vectors[i] = m.vectorize(s.tokens)
	}

	m.Weights = make([][]float64, len(m.Labels))
	m.Bias = make([]float64, len(m.Labels))
	for k, label := range m.Labels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w := make([]float64, len(terms))
		var b float64
		for epoch := 0; epoch < svmEpochs; epoch++ {
			for i, s := range samples {
				y := -1.0
				if s.label == label {
					y = 1.0
				}
				margin := y * (dot(w, vectors[i]) + b)

				decay := 1 - svmLearningRate*svmLambda
				for j := range w {
					w[j] *= decay
				}
				if margin < 1 {
					for _, f := range vectors[i] {
						w[f.index] += svmLearningRate * y * f.value
					}
					b += svmLearningRate * y
				}
			}
		}
		m.Weights[k] = w
		m.Bias[k] = b
	}

	return m, nil
}

func (m *SVMModel) Name() string { return ModelSVM }

// Predict scores every intent and returns the best one. Confidence is the
// softmax of the margins; tokens outside the vocabulary give confidence 0.
func (m *SVMModel) Predict(_ context.Context, tokens []string) (models.Classification, error) {
	if len(m.Labels) == 0 {
		return models.Classification{}, ErrModelNotReady
	}

	x := m.vectorize(tokens)
	margins := make([]float64, len(m.Labels))
	best := 0
	for k := range m.Labels {
		margins[k] = dot(m.Weights[k], x) + m.Bias[k]
		if margins[k] > margins[best] {
			best = k
		}
	}

	if len(x) == 0 {
		return models.Classification{Intent: m.Labels[best], Confidence: 0}, nil
	}
	return models.Classification{
		Intent:     m.Labels[best],
		Confidence: softmax(margins, svmSoftmaxScale)[best],
	}, nil
}

func (m *SVMModel) vectorize(tokens []string) []feature {
	counts := make(map[int]float64)
	for _, tok := range tokens {
		if idx, ok := m.Vocab[tok]; ok {
			counts[idx]++
		}
	}

	var (
		vec  = make([]feature, 0, len(counts))
		norm float64
	)
	for idx, tf := range counts {
		v := tf * m.IDF[idx]
		vec = append(vec, feature{index: idx, value: v})
		norm += v * v
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i].value /= norm
	}
	sort.Slice(vec, func(i, j int) bool { return vec[i].index < vec[j].index })
	return vec
}

// Save writes the model as JSON, replacing path atomically
func (m *SVMModel) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace model: %w", err)
	}
	return nil
}

// LoadSVM reads a model written by Save
func LoadSVM(path string) (*SVMModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m SVMModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", path, err)
	}
	if len(m.Labels) == 0 || len(m.Weights) != len(m.Labels) ||
		len(m.Bias) != len(m.Labels) || len(m.IDF) != len(m.Vocab) {
		return nil, fmt.Errorf("model %s is malformed", path)
	}
	for _, w := range m.Weights {
		if len(w) != len(m.IDF) {
			return nil, fmt.Errorf("model %s is malformed", path)
		}
	}
	return &m, nil
}

func dot(w []float64, x []feature) float64 {
	var sum float64
	for _, f := range x {
		sum += w[f.index] * f.value
	}
	return sum
}

func softmax(scores []float64, scale float64) []float64 {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}

	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(scale * (s - maxScore))
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
