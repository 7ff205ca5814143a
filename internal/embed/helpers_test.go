package embed

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
)

// mockEmbedder counts calls and can be told to fail for chosen texts.
type mockEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	dimensions int
	modelName  string

	mu      sync.Mutex
	failOn  map[string]error
	failAll error
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{
		dimensions: dims,
		modelName:  "mock-model",
		failOn:     make(map[string]error),
	}
}

func (m *mockEmbedder) vectorFor(text string) []float32 {
	vec := make([]float32, m.dimensions)
	vec[len(text)%m.dimensions] = 1
	return vec
}

func (m *mockEmbedder) errFor(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	return m.failOn[text]
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	if err := m.errFor(text); err != nil {
		return nil, err
	}
	return m.vectorFor(text), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	result := make([][]float32, len(texts))
	for i, text := range texts {
		if err := m.errFor(text); err != nil {
			return nil, err
		}
		result[i] = m.vectorFor(text)
	}
	return result, nil
}

func (m *mockEmbedder) Dimensions() int                  { return m.dimensions }
func (m *mockEmbedder) ModelName() string                { return m.modelName }
func (m *mockEmbedder) Available(_ context.Context) bool { return true }
func (m *mockEmbedder) Close() error                     { return nil }

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity computes cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}
