package patch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homveloper/syncdoc/patch"
)

func TestComposeIncFolds(t *testing.T) {
	ops := patch.Patch{
		{Op: patch.Inc, Path: "/x", Value: 1.0},
		{Op: patch.Inc, Path: "/x", Value: 2.0},
		{Op: patch.Inc, Path: "/x", Value: 3.0},
	}
	out := patch.Compose(ops, nil)
	require.Len(t, out, 1)
	assert.Equal(t, 6.0, out[0].Value)
}

func TestComposeReplaceAbsorbsPriorOnSamePath(t *testing.T) {
	ops := patch.Patch{
		{Op: patch.Add, Path: "/a", Value: 1.0},
		{Op: patch.Replace, Path: "/a", Value: 2.0},
	}
	out := patch.Compose(ops, nil)
	require.Len(t, out, 1)
	assert.Equal(t, patch.Replace, out[0].Op)
	assert.Equal(t, 2.0, out[0].Value)
}

func TestComposeReplaceAbsorbsDescendant(t *testing.T) {
	ops := patch.Patch{
		{Op: patch.Add, Path: "/a/b", Value: 1.0},
		{Op: patch.Replace, Path: "/a", Value: map[string]any{"c": 2.0}},
	}
	out := patch.Compose(ops, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "/a", out[0].Path)
}

func TestComposeMaxDropsNonExtremum(t *testing.T) {
	ops := patch.Patch{
		{Op: patch.Max, Path: "/s", Value: 100.0},
		{Op: patch.Max, Path: "/s", Value: 50.0},
	}
	out := patch.Compose(ops, nil)
	require.Len(t, out, 1)
	assert.Equal(t, 100.0, out[0].Value)
}

func TestComposeMaxKeepsNewExtremum(t *testing.T) {
	ops := patch.Patch{
		{Op: patch.Max, Path: "/s", Value: 50.0},
		{Op: patch.Max, Path: "/s", Value: 100.0},
	}
	out := patch.Compose(ops, nil)
	require.Len(t, out, 1)
	assert.Equal(t, 100.0, out[0].Value)
}

func TestComposeUnrelatedOpsStayDistinct(t *testing.T) {
	ops := patch.Patch{
		{Op: patch.Add, Path: "/a", Value: 1.0},
		{Op: patch.Add, Path: "/b", Value: 2.0},
	}
	out := patch.Compose(ops, nil)
	require.Len(t, out, 2)
}

func TestComposeEquivalentToSequentialApply(t *testing.T) {
	before := map[string]any{"x": 1.0, "a": "keep"}
	ops := patch.Patch{
		{Op: patch.Inc, Path: "/x", Value: 2.0},
		{Op: patch.Inc, Path: "/x", Value: 3.0},
		{Op: patch.Replace, Path: "/a", Value: "done"},
	}
	sequential, err := patch.Apply(before, ops, patch.Options{Strict: true})
	require.NoError(t, err)

	composed := patch.Compose(ops, nil)
	viaCompose, err := patch.Apply(before, composed, patch.Options{Strict: true})
	require.NoError(t, err)

	assert.Equal(t, sequential, viaCompose)
}
