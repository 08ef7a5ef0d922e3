package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysTrue(string) (bool, error)  { return true, nil }
func alwaysFalse(string) (bool, error) { return false, nil }

func TestIsReady_WrongKindOrStatus(t *testing.T) {
	chainID := uuid.New()
	a := inline(chainID, nil, 0, "a")
	tree := NewTree([]*Fragment{a})

	a.Status = FragmentRunning
	ready, err := tree.IsReady(a, alwaysTrue)
	require.NoError(t, err)
	assert.False(t, ready)

	g := group(chainID, nil, 1, false)
	tree2 := NewTree([]*Fragment{g})
	ready, err = tree2.IsReady(g, alwaysTrue)
	require.NoError(t, err)
	assert.False(t, ready, "group fragments are never directly dispatched")
}

func TestIsReady_SequentialBlockedByEarlierSibling(t *testing.T) {
	chainID := uuid.New()
	a := inline(chainID, nil, 0, "a")
	b := inline(chainID, nil, 1, "b")
	tree := NewTree([]*Fragment{a, b})

	ready, err := tree.IsReady(b, alwaysTrue)
	require.NoError(t, err)
	assert.False(t, ready, "a hasn't completed yet")

	a.Status = FragmentCompleted
	ready, err = tree.IsReady(b, alwaysTrue)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestIsReady_ParallelSiblingsDoNotBlockEachOther(t *testing.T) {
	chainID := uuid.New()
	g := group(chainID, nil, 0, true)
	a := inline(chainID, &g.ID, 0, "a")
	b := inline(chainID, &g.ID, 1, "b")
	tree := NewTree([]*Fragment{g, a, b})

	ready, err := tree.IsReady(b, alwaysTrue)
	require.NoError(t, err)
	assert.True(t, ready, "parallel siblings dispatch independently of each other")
}

func TestIsReady_OwnConditionGatesDispatch(t *testing.T) {
	chainID := uuid.New()
	a := inline(chainID, nil, 0, "deploy")
	a.Condition = `$BRANCH == "main"`
	tree := NewTree([]*Fragment{a})

	ready, err := tree.IsReady(a, alwaysFalse)
	require.NoError(t, err)
	assert.False(t, ready, "fragment's own condition evaluated false should block it")

	ready, err = tree.IsReady(a, alwaysTrue)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestIsReady_AncestorConditionGatesDescendants(t *testing.T) {
	chainID := uuid.New()
	g := group(chainID, nil, 0, false)
	g.Condition = `$TRIGGER == "push"`
	a := inline(chainID, &g.ID, 0, "a")
	tree := NewTree([]*Fragment{g, a})

	ready, err := tree.IsReady(a, alwaysFalse)
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestIsReady_ConditionEvaluationError(t *testing.T) {
	chainID := uuid.New()
	a := inline(chainID, nil, 0, "a")
	a.Condition = "not valid expr"
	tree := NewTree([]*Fragment{a})

	boom := errors.New("compile error")
	_, err := tree.IsReady(a, func(string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}
