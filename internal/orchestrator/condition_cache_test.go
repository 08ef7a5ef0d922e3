package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionCache_EvaluatesDocumentSyntax(t *testing.T) {
	t.Parallel()
	cache := NewConditionCache(10)
	eval := cache.Evaluator(map[string]string{"BRANCH": "main", "TRIGGER": "push"})

	ok, err := eval(`$BRANCH == 'main'`)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = eval(`$BRANCH == 'develop'`)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = eval(`$TRIGGER == 'push' && $BRANCH == 'main'`)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConditionCache_CompileAndCache_ReusesCompiledProgram(t *testing.T) {
	t.Parallel()
	cache := NewConditionCache(10)

	prog1, err := cache.CompileAndCache(`$BRANCH == 'main'`)
	require.NoError(t, err)
	prog2, err := cache.CompileAndCache(`$BRANCH == 'main'`)
	require.NoError(t, err)
	assert.Same(t, prog1, prog2, "identical condition text should hit the cache, not recompile")
}

func TestConditionCache_InvalidExpressionErrors(t *testing.T) {
	t.Parallel()
	cache := NewConditionCache(10)
	_, err := cache.CompileAndCache(`$BRANCH ===`)
	assert.Error(t, err)
}

func TestRewriteCondition(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		`$BRANCH == 'main'`:                    `BRANCH == "main"`,
		`$TRIGGER == 'push' && $BRANCH == 'x'`: `TRIGGER == "push" && BRANCH == "x"`,
		`BRANCH == "main"`:                     `BRANCH == "main"`,
	}
	for in, want := range cases {
		assert.Equal(t, want, rewriteCondition(in))
	}
}
