package vectorcodec

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	codec := New(4)
	orig := []float32{0.12, -0.45, 0.91, 0.33}

	text, err := codec.Encode(orig)
	require.NoError(t, err)
	assert.Equal(t, "[0.12,-0.45,0.91,0.33]", text)

	decoded, err := codec.Decode(text)
	require.NoError(t, err)
	assert.Equal(t, orig, decoded)
}

func TestCodec_RoundTrip_RandomVectors(t *testing.T) {
	codec := New(64)
	rng := rand.New(rand.NewSource(7))

	for n := 0; n < 200; n++ {
		vec := make([]float32, 64)
		for i := range vec {
			vec[i] = float32(rng.NormFloat64() * math.Pow(10, float64(rng.Intn(12)-6)))
		}

		text, err := codec.Encode(vec)
		require.NoError(t, err)
		decoded, err := codec.Decode(text)
		require.NoError(t, err)

		for i := range vec {
			require.Equal(t, math.Float32bits(vec[i]), math.Float32bits(decoded[i]), "element %d of %s", i, text)
		}
	}
}

func TestCodec_Encode_NonFinite(t *testing.T) {
	codec := New(0)

	for _, v := range []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))} {
		_, err := codec.Encode([]float32{1, v})
		assert.ErrorIs(t, err, ErrEncode)
	}
}

func TestCodec_Encode_WrongDimension(t *testing.T) {
	_, err := New(3).Encode([]float32{1, 2})
	assert.ErrorIs(t, err, ErrEncode)
}

func TestCodec_Encode_Empty(t *testing.T) {
	text, err := New(0).Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", text)
}

func TestCodec_Decode_Malformed(t *testing.T) {
	codec := New(0)
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"null", "null"},
		{"not json", "0.1,0.2"},
		{"truncated", "[0.1,0.2"},
		{"strings", `["a","b"]`},
		{"object", `{"v":[1]}`},
		{"overflow", "[1e39]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.input)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestCodec_Decode_DimensionEnforced(t *testing.T) {
	_, err := New(4).Decode("[1,0,0]")
	assert.ErrorIs(t, err, ErrDecode)

	vec, err := New(0).Decode("[1,0,0]")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
}

func TestCodec_Decode_AcceptsWhitespaceAndIntegers(t *testing.T) {
	vec, err := New(4).Decode(" [1, 0, 0.9, -2] ")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0.9, -2}, vec)
}
