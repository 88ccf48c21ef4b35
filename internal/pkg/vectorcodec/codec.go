// Package vectorcodec converts embedding vectors to and from the textual form
// persisted in the chunks table.
//
// The encoding is a JSON array of numbers, e.g. "[0.12,-0.45,0.91]". Each element is
// written with the shortest decimal representation that parses back to the same
// float32, so Decode(Encode(v)) reproduces v exactly.
package vectorcodec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrEncode = errors.New("encode embedding")
	ErrDecode = errors.New("decode embedding")
)

// Codec encodes and decodes vectors. Dim is the deployment dimensionality; zero
// disables the element count check.
type Codec struct {
	Dim int
}

func New(dim int) Codec {
	if dim < 0 {
		dim = 0
	}
	return Codec{Dim: dim}
}

func (c Codec) Encode(vec []float32) (string, error) {
	if c.Dim > 0 && len(vec) != c.Dim {
		return "", fmt.Errorf("%w: got %d elements, want %d", ErrEncode, len(vec), c.Dim)
	}

	var b strings.Builder
	b.Grow(len(vec)*10 + 2)
	b.WriteByte('[')
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("%w: non-finite value at index %d", ErrEncode, i)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}

func (c Codec) Decode(text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	var vec []float32
	if err := json.Unmarshal([]byte(text), &vec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if vec == nil {
		return nil, fmt.Errorf("%w: null vector", ErrDecode)
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite value at index %d", ErrDecode, i)
		}
	}
	if c.Dim > 0 && len(vec) != c.Dim {
		return nil, fmt.Errorf("%w: got %d elements, want %d", ErrDecode, len(vec), c.Dim)
	}
	return vec, nil
}
