package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpusim/internal/engine"
	"github.com/roach88/dpusim/internal/isa"
)

func TestMarshalCanonical_Values(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int8", int8(-128), "-128"},
		{"int64", int64(-9223372036854775808), "-9223372036854775808"},
		{"opcode", uint32(0xFF), "255"},
		{"bool", true, "true"},
		{"empty array", []any{}, "[]"},
		{"bytes", []int8{1, -2, 3}, "[1,-2,3]"},
		{"strings", []string{"a", "b"}, `["a","b"]`},
		{"empty object", Object{}, "{}"},
		{"nested", Object{"b": Object{"y": 1, "x": 2}, "a": []any{true}}, `{"a":[true],"b":{"x":2,"y":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	for _, v := range []any{nil, 1.5, float32(2), struct{}{}, Object{"a": nil}, []any{0.5}} {
		_, err := MarshalCanonical(v)
		assert.Error(t, err, "%#v", v)
	}
}

func TestMarshalCanonical_StringEscapes(t *testing.T) {
	got, err := MarshalCanonical("a\"b\\c\n<&> \x01")
	require.NoError(t, err)
	assert.Equal(t, "\"a\\\"b\\\\c\\n<&> \\u0001\"", string(got))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"
	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as 0xD83D 0xDE00, which sorts before U+FF61 in
	// UTF-16 but after it in UTF-8.
	obj := Object{"\uff61": 1, "\U0001F600": 2}
	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uff61\":1}", string(got))
}

func TestDigest_DomainSeparated(t *testing.T) {
	a, err := Digest(DomainStep, Object{"x": 1})
	require.NoError(t, err)
	b, err := Digest(DomainRun, Object{"x": 1})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)

	again, err := Digest(DomainStep, Object{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestRegionDigest_DependsOnContentOnly(t *testing.T) {
	assert.Equal(t, RegionDigest([]int8{1, 2, 3}), RegionDigest([]int8{1, 2, 3}))
	assert.NotEqual(t, RegionDigest([]int8{1, 2, 3}), RegionDigest([]int8{1, 2, -3}))
}

func steps(runID string, seq0 int64) []engine.Step {
	return []engine.Step{
		{RunID: runID, Seq: seq0, Index: 0, Kind: isa.ConvInit, Opcode: 0x9, Text: "CONVINIT kernel_h=1"},
		{RunID: runID, Seq: seq0 + 1, Index: 1, Kind: isa.End, Opcode: 0x7, Text: "END"},
	}
}

func TestFromStep_IDIncludesRun(t *testing.T) {
	a, err := FromStep(steps("run-1", 1)[0])
	require.NoError(t, err)
	b, err := FromStep(steps("run-2", 1)[0])
	require.NoError(t, err)
	assert.Equal(t, "CONVINIT", a.Kind)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRunDigest_IgnoresRunIDAndClockOffset(t *testing.T) {
	collect := func(runID string, seq0 int64) []Record {
		c := NewCollector(nil)
		for _, s := range steps(runID, seq0) {
			require.NoError(t, c.RecordStep(context.Background(), s))
		}
		return c.Records()
	}
	a, err := RunDigest(collect("run-1", 1))
	require.NoError(t, err)
	b, err := RunDigest(collect("run-2", 50))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	changed := collect("run-1", 1)
	changed[0].Text = "CONVINIT kernel_h=3"
	c, err := RunDigest(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

type countingRecorder struct{ n int }

func (r *countingRecorder) RecordStep(context.Context, engine.Step) error {
	r.n++
	return nil
}

func TestCollector_ForwardsAndResets(t *testing.T) {
	next := &countingRecorder{}
	c := NewCollector(next)
	for _, s := range steps("run-1", 1) {
		require.NoError(t, c.RecordStep(context.Background(), s))
	}
	assert.Equal(t, 2, next.n)
	assert.Len(t, c.Records(), 2)

	c.Reset()
	assert.Empty(t, c.Records())
}
