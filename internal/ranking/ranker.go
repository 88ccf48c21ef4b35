// Package ranking scores candidate chunks against a query vector by cosine
// similarity and returns the top-K in a deterministic order.
package ranking

import (
	"math"
	"sort"

	"contracts-rag/internal/model"
	"contracts-rag/internal/pkg/vectorcodec"
)

// DefaultScore is assigned to chunks whose embedding is absent, malformed or of the
// wrong dimensionality. It is neutral so such chunks are kept rather than buried.
const DefaultScore = 0.5

// Scored is a chunk paired with its raw cosine score.
type Scored struct {
	Chunk model.Chunk
	Score float64
	// Fallback is set when Score is the default rather than a computed cosine.
	Fallback bool
}

// Relevance is the score on a 0-100 scale rounded to one decimal, for display.
// Halves round away from zero (math.Round), not to even.
func (s Scored) Relevance() float64 {
	return math.Round(s.Score*1000) / 10
}

type Option func(*Ranker)

// WithFallbackScore overrides DefaultScore.
func WithFallbackScore(score float64) Option {
	return func(r *Ranker) {
		r.fallback = score
	}
}

type Ranker struct {
	codec    vectorcodec.Codec
	fallback float64
}

func NewRanker(codec vectorcodec.Codec, opts ...Option) *Ranker {
	r := &Ranker{
		codec:    codec,
		fallback: DefaultScore,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dimension is the vector length the ranker expects; zero means unchecked.
func (r *Ranker) Dimension() int {
	return r.codec.Dim
}

// Rank scores every candidate against query and returns at most k results, highest
// score first. Candidates with equal scores keep their input order.
func (r *Ranker) Rank(query []float32, candidates []model.Chunk, k int) []Scored {
	if k <= 0 || len(candidates) == 0 {
		return []Scored{}
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	scored := make([]Scored, len(candidates))
	for i := range candidates {
		scored[i] = r.score(query, candidates[i])
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored[:k]
}

func (r *Ranker) score(query []float32, chunk model.Chunk) Scored {
	vec, err := r.codec.Decode(chunk.Embedding)
	if err != nil || len(vec) != len(query) || len(vec) == 0 {
		return Scored{Chunk: chunk, Score: r.fallback, Fallback: true}
	}
	sim := CosineSimilarity(query, vec)
	if math.IsNaN(sim) {
		return Scored{Chunk: chunk, Score: r.fallback, Fallback: true}
	}
	return Scored{Chunk: chunk, Score: sim}
}

// CosineSimilarity returns dot(a,b)/(|a||b|) clamped to [-1, 1]. Vectors of different
// length yield NaN; a zero-magnitude vector yields 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.NaN()
	}
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na2) * math.Sqrt(nb2))
	switch {
	case sim > 1:
		return 1
	case sim < -1:
		return -1
	}
	return sim
}
