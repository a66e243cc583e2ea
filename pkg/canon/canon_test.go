package canon_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybscloud/spiral/pkg/canon"
)

func TestCanonicalizeSortsKeysByUTF16Order(t *testing.T) {
	b, err := canon.Canonicalize(map[string]any{"b": 1.0, "a": 2.0})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(b))
}

func TestCanonicalizeFoldsNegativeZero(t *testing.T) {
	b, err := canon.Canonicalize(math.Copysign(0, -1))
	require.NoError(t, err)
	assert.Equal(t, "0", string(b))
}

func TestCanonicalizeRejectsNonFiniteNumbers(t *testing.T) {
	for _, f := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		_, err := canon.Canonicalize(f)
		assert.Error(t, err, "non-finite float %v must be rejected, not encoded as null", f)
	}
}

func TestCanonicalizeRejectsNonFiniteNestedInObject(t *testing.T) {
	_, err := canon.Canonicalize(map[string]any{"x": math.NaN()})
	assert.Error(t, err)
}

func TestDigestIsStableAcrossFieldOrder(t *testing.T) {
	d1, err := canon.Digest(map[string]any{"a": 1.0, "b": 2.0})
	require.NoError(t, err)
	d2, err := canon.Digest(map[string]any{"b": 2.0, "a": 1.0})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestStripUnknownTopLevel(t *testing.T) {
	in := map[string]any{"version": "1", "nodes": []any{}, "requestId": "abc"}
	out := canon.StripUnknownTopLevel(in, map[string]bool{"version": true, "nodes": true})
	assert.Equal(t, map[string]any{"version": "1", "nodes": []any{}}, out)
}
