package value_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybscloud/spiral/pkg/value"
)

func TestTypeJSONRoundTrip(t *testing.T) {
	cases := []value.Type{
		value.TVoid(),
		value.TBool(),
		value.TInt(),
		value.TFloat(),
		value.TString(),
		value.TList(value.TInt()),
		value.TSet(value.TString()),
		value.TMap(value.TBool()),
		value.TOption(value.TInt()),
		value.TRef(value.TString()),
		value.TFn([]value.Type{value.TInt(), value.TInt()}, value.TInt()),
		value.TOpaque("host:socket"),
	}
	for _, tc := range cases {
		raw, err := json.Marshal(tc)
		require.NoError(t, err)

		var got value.Type
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, tc, got)
	}
}

func TestTypeJSONClosureUsesFnKind(t *testing.T) {
	raw, err := json.Marshal(value.TFn([]value.Type{value.TBool()}, value.TVoid()))
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "fn", generic["kind"])
}

func TestTypeJSONRefCellUsesRefKind(t *testing.T) {
	raw, err := json.Marshal(value.TRef(value.TInt()))
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "ref", generic["kind"])
}

func TestFromAnyScalars(t *testing.T) {
	v, err := value.FromAny(value.TInt(), float64(42))
	require.NoError(t, err)
	i, ok := v.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(42), i)

	v, err = value.FromAny(value.TBool(), true)
	require.NoError(t, err)
	b, ok := v.AsBool()
	require.True(t, ok)
	assert.True(t, b)

	v, err = value.FromAny(value.TString(), "hi")
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "hi", s)

	v, err = value.FromAny(value.TVoid(), nil)
	require.NoError(t, err)
	assert.Equal(t, value.KindVoid, v.Kind())
}

func TestFromAnyListRecursesOnElem(t *testing.T) {
	v, err := value.FromAny(value.TList(value.TInt()), []any{float64(1), float64(2), float64(3)})
	require.NoError(t, err)
	lst, ok := v.AsList()
	require.True(t, ok)
	require.Len(t, lst, 3)
	for idx, want := range []int64{1, 2, 3} {
		got, ok := lst[idx].AsInt()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestFromAnyOptionNoneVsSome(t *testing.T) {
	none, err := value.FromAny(value.TOption(value.TInt()), nil)
	require.NoError(t, err)
	_, isSome, isOption := none.AsOption()
	require.True(t, isOption)
	assert.False(t, isSome)

	some, err := value.FromAny(value.TOption(value.TInt()), float64(7))
	require.NoError(t, err)
	inner, isSome, isOption := some.AsOption()
	require.True(t, isOption)
	require.True(t, isSome)
	i, _ := inner.AsInt()
	assert.Equal(t, int64(7), i)
}

func TestFromAnyRejectsNonLiteralType(t *testing.T) {
	_, err := value.FromAny(value.TFn(nil, value.TVoid()), nil)
	assert.Error(t, err)
}

func TestToAnyFromAnyRoundTripsThroughJSON(t *testing.T) {
	original := value.Map(map[string]value.Value{
		"name": value.String("doc"),
		"kind": value.String("document"),
	})

	rendered, err := value.ToAny(original)
	require.NoError(t, err)

	raw, err := json.Marshal(rendered)
	require.NoError(t, err)

	var decoded any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	back, err := value.FromAny(value.TMap(value.TString()), decoded)
	require.NoError(t, err)
	m, ok := back.AsMap()
	require.True(t, ok)
	s, ok := m["name"].AsString()
	require.True(t, ok)
	assert.Equal(t, "doc", s)
}
