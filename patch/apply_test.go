package patch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homveloper/syncdoc/patch"
)

func apply(t *testing.T, v any, ops patch.Patch) any {
	t.Helper()
	out, err := patch.Apply(v, ops, patch.Options{Strict: true})
	require.NoError(t, err)
	return out
}

func TestApplyIdentity(t *testing.T) {
	v := map[string]any{"a": 1.0}
	out := apply(t, v, nil)
	assert.Equal(t, v, out)
}

func TestApplyAddMapKey(t *testing.T) {
	v := map[string]any{"a": 1.0}
	out := apply(t, v, patch.Patch{{Op: patch.Add, Path: "/b", Value: 2.0}})
	assert.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, out)
	// original untouched
	assert.Equal(t, map[string]any{"a": 1.0}, v)
}

func TestApplyAddSequenceInsert(t *testing.T) {
	v := map[string]any{"a": []any{1.0, 2.0}}
	out := apply(t, v, patch.Patch{{Op: patch.Add, Path: "/a/1", Value: "X"}})
	assert.Equal(t, []any{1.0, "X", 2.0}, out.(map[string]any)["a"])
}

func TestApplyAddAppend(t *testing.T) {
	v := map[string]any{"a": []any{1.0}}
	out := apply(t, v, patch.Patch{{Op: patch.Add, Path: "/a/-", Value: 2.0}})
	assert.Equal(t, []any{1.0, 2.0}, out.(map[string]any)["a"])
}

func TestApplyRemoveStrictMissing(t *testing.T) {
	v := map[string]any{"a": 1.0}
	_, err := patch.Apply(v, patch.Patch{{Op: patch.Remove, Path: "/b"}}, patch.Options{Strict: true})
	assert.Error(t, err)
}

func TestApplyRemoveSilentMissing(t *testing.T) {
	v := map[string]any{"a": 1.0}
	out, err := patch.Apply(v, patch.Patch{{Op: patch.Remove, Path: "/b"}}, patch.Options{Silent: true})
	require.NoError(t, err)
	assert.Equal(t, v, out)
}

func TestApplyRigidRollsBack(t *testing.T) {
	v := map[string]any{"a": 1.0}
	out, err := patch.Apply(v, patch.Patch{
		{Op: patch.Add, Path: "/b", Value: 2.0},
		{Op: patch.Remove, Path: "/zzz"},
	}, patch.Options{Rigid: true})
	assert.Error(t, err)
	assert.Equal(t, v, out)
}

func TestApplyReplaceMissingParentFails(t *testing.T) {
	v := map[string]any{}
	_, err := patch.Apply(v, patch.Patch{{Op: patch.Replace, Path: "/a/b", Value: 1.0}}, patch.Options{Strict: true})
	assert.Error(t, err)
}

func TestApplyAddAutoCreatesMapping(t *testing.T) {
	// add auto-creates the missing intermediate mapping /a. (replace
	// creates /a too, but then fails because the key b does not exist in
	// it, as TestApplyReplaceMissingParentFails shows.)
	v := map[string]any{}
	out := apply(t, v, patch.Patch{{Op: patch.Add, Path: "/a/b", Value: 1.0}})
	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1.0}}, out)
}

func TestApplyMoveAppendsToOtherSequence(t *testing.T) {
	// Scenario 1 from spec §8.
	v := map[string]any{"matrix": []any{
		[]any{0.0, 1.0, 2.0},
		[]any{3.0, 4.0, 5.0},
	}}
	out := apply(t, v, patch.Patch{{Op: patch.Move, From: "/matrix/1/0", Path: "/matrix/0/-"}})
	want := map[string]any{"matrix": []any{
		[]any{0.0, 1.0, 2.0, 3.0},
		[]any{4.0, 5.0},
	}}
	assert.Equal(t, want, out)
}

func TestApplyInc(t *testing.T) {
	v := map[string]any{"x": 5.0}
	out := apply(t, v, patch.Patch{{Op: patch.Inc, Path: "/x", Value: 3.0}})
	assert.Equal(t, 8.0, out.(map[string]any)["x"])
}

func TestApplyIncMissingIsZero(t *testing.T) {
	v := map[string]any{}
	out := apply(t, v, patch.Patch{{Op: patch.Inc, Path: "/x", Value: 3.0}})
	assert.Equal(t, 3.0, out.(map[string]any)["x"])
}

func TestApplyBit(t *testing.T) {
	v := map[string]any{"flags": float64(0b0110)}
	// set bit 0 (1), clear bit 1 (2): low=1, high=2 -> mask = (2<<16)|1
	mask := float64((2 << 16) | 1)
	out := apply(t, v, patch.Patch{{Op: patch.Bit, Path: "/flags", Value: mask}})
	assert.Equal(t, float64(0b0101), out.(map[string]any)["flags"])
}

func TestApplyMaxKeepsHigher(t *testing.T) {
	v := map[string]any{"s": 100.0}
	out := apply(t, v, patch.Patch{{Op: patch.Max, Path: "/s", Value: 50.0}})
	assert.Equal(t, 100.0, out.(map[string]any)["s"])

	out = apply(t, v, patch.Patch{{Op: patch.Max, Path: "/s", Value: 150.0}})
	assert.Equal(t, 150.0, out.(map[string]any)["s"])
}

func TestApplyMinMissingActsAsReplace(t *testing.T) {
	v := map[string]any{}
	out := apply(t, v, patch.Patch{{Op: patch.Min, Path: "/s", Value: 5.0}})
	assert.Equal(t, 5.0, out.(map[string]any)["s"])
}

func TestApplyCopyDeep(t *testing.T) {
	v := map[string]any{"a": map[string]any{"x": 1.0}}
	out := apply(t, v, patch.Patch{{Op: patch.Copy, From: "/a", Path: "/b"}})
	m := out.(map[string]any)
	assert.Equal(t, m["a"], m["b"])
	// mutating the copy's source map must not affect the copy
	m["a"].(map[string]any)["x"] = 2.0
	assert.Equal(t, 1.0, m["b"].(map[string]any)["x"])
}
