package domain

import (
	"sort"

	"github.com/google/uuid"
)

// rootKey is the map key used for fragments with a nil ParentID (the chain root scope).
var rootKey = uuid.UUID{}

// Tree indexes a chain's flat fragment list by parent for the tree-shaped
// queries dispatch and rollup need: children-of, ancestors-of, siblings-of.
type Tree struct {
	byID     map[uuid.UUID]*Fragment
	children map[uuid.UUID][]*Fragment
}

// NewTree builds a Tree from a chain's full fragment set.
func NewTree(fragments []*Fragment) *Tree {
	t := &Tree{
		byID:     make(map[uuid.UUID]*Fragment, len(fragments)),
		children: make(map[uuid.UUID][]*Fragment),
	}
	for _, f := range fragments {
		t.byID[f.ID] = f
	}
	for _, f := range fragments {
		key := rootKey
		if f.ParentID != nil {
			key = *f.ParentID
		}
		t.children[key] = append(t.children[key], f)
	}
	for key := range t.children {
		kids := t.children[key]
		sort.Slice(kids, func(i, j int) bool { return kids[i].Sequence < kids[j].Sequence })
		t.children[key] = kids
	}
	return t
}

// Children returns the (sequence-ordered) children of parentID, or the root
// scope's children when parentID is nil.
func (t *Tree) Children(parentID *uuid.UUID) []*Fragment {
	key := rootKey
	if parentID != nil {
		key = *parentID
	}
	return t.children[key]
}

// Parent returns f's parent fragment, or nil if f is at the chain root.
func (t *Tree) Parent(f *Fragment) *Fragment {
	if f.ParentID == nil {
		return nil
	}
	return t.byID[*f.ParentID]
}

// Get looks up a fragment by id.
func (t *Tree) Get(id uuid.UUID) (*Fragment, bool) {
	f, ok := t.byID[id]
	return f, ok
}

// All returns every fragment in the tree, in no particular order.
func (t *Tree) All() []*Fragment {
	out := make([]*Fragment, 0, len(t.byID))
	for _, f := range t.byID {
		out = append(out, f)
	}
	return out
}

// ConditionEvaluator reports whether a condition expression holds, given the
// chain's environment. Errors are propagated; a missing/empty condition
// string is never passed in (callers skip the call entirely).
type ConditionEvaluator func(condition string) (bool, error)

// IsReady reports whether an inline fragment is eligible for dispatch right
// now: correct kind/status, every earlier sibling (inline or group) under a
// non-parallel parent already completed or skipped, and the fragment's own
// condition plus every ancestor group's condition (if any) evaluating true.
func (t *Tree) IsReady(f *Fragment, eval ConditionEvaluator) (bool, error) {
	if f.Kind != FragmentInline || f.Status != FragmentPending {
		return false, nil
	}

	parent := t.Parent(f)
	if parent == nil || !parent.IsParallel {
		for _, sib := range t.Children(f.ParentID) {
			if sib.ID == f.ID {
				break
			}
			if sib.Kind == FragmentInline && sib.Status != FragmentCompleted && sib.Status != FragmentSkipped {
				return false, nil
			}
			if sib.Kind == FragmentGroup && sib.Status != FragmentCompleted && sib.Status != FragmentSkipped {
				return false, nil
			}
		}
	}

	for node := f; node != nil; node = t.Parent(node) {
		if node.Condition == "" {
			continue
		}
		ok, err := eval(node.Condition)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
