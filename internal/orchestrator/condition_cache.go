// Package orchestrator implements the Work Orchestrator: worker registration,
// heartbeats, work dispatch, result reporting, and queue metrics.
package orchestrator

import (
	"container/list"
	"fmt"
	"regexp"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/vulcan-ci/vulcan/internal/domain"
)

const defaultConditionCacheSize = 100

// Workflow documents write conditions with a sigil for chain-env variables
// and single-quoted string literals, e.g. `$BRANCH == 'main'`. expr-lang
// itself knows neither: it lexes bare identifiers and double-quoted strings.
// rewriteCondition translates document syntax into expr-lang syntax before
// compilation; it is the only place that needs to know about the mismatch.
var conditionVarPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
var conditionSingleQuotePattern = regexp.MustCompile(`'([^']*)'`)

func rewriteCondition(condition string) string {
	condition = conditionVarPattern.ReplaceAllString(condition, "$1")
	condition = conditionSingleQuotePattern.ReplaceAllString(condition, `"$1"`)
	return condition
}

// ConditionCache compiles and caches condition expressions keyed by their
// text, so a hot fragment's own and ancestor conditions aren't recompiled on every
// dispatch attempt. Least-recently-used entries are evicted once the cache
// is full.
type ConditionCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type cacheEntry struct {
	key     string
	program *vm.Program
}

func NewConditionCache(capacity int) *ConditionCache {
	if capacity <= 0 {
		capacity = defaultConditionCacheSize
	}
	return &ConditionCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// CompileAndCache compiles condition if not already cached, then returns the
// compiled program. condition is cached under its original (document) text;
// rewriteCondition's translation is an implementation detail of compilation.
func (c *ConditionCache) CompileAndCache(condition string) (*vm.Program, error) {
	c.mu.Lock()
	if el, ok := c.items[condition]; ok {
		c.ll.MoveToFront(el)
		entry := el.Value.(*cacheEntry)
		c.mu.Unlock()
		return entry.program, nil
	}
	c.mu.Unlock()

	program, err := expr.Compile(rewriteCondition(condition), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", condition, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[condition]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*cacheEntry).program, nil
	}
	el := c.ll.PushFront(&cacheEntry{key: condition, program: program})
	c.items[condition] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
	return program, nil
}

// Evaluator builds a domain.ConditionEvaluator bound to env, backed by this
// cache's compiled programs. Conditions reference $BRANCH/$TRIGGER/
// $COMMIT_SHA/$PR_NUMBER with string-equality semantics, e.g. `BRANCH ==
// "main"`.
func (c *ConditionCache) Evaluator(env map[string]string) domain.ConditionEvaluator {
	vars := make(map[string]interface{}, len(env))
	for k, v := range env {
		vars[k] = v
	}
	return func(condition string) (bool, error) {
		program, err := c.CompileAndCache(condition)
		if err != nil {
			return false, err
		}
		out, err := expr.Run(program, vars)
		if err != nil {
			return false, fmt.Errorf("evaluate condition %q: %w", condition, err)
		}
		result, ok := out.(bool)
		if !ok {
			return false, fmt.Errorf("condition %q did not evaluate to a boolean", condition)
		}
		return result, nil
	}
}
