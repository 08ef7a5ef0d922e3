package domain

import "time"

// MarkAncestorsRunning flips any pending ancestor group to running when one
// of its descendants starts running, per spec §4.2: "a group fragment ...
// transitions pending -> running when its first child transitions to
// running." Returns the ancestors that changed, for the caller to persist.
func (t *Tree) MarkAncestorsRunning(f *Fragment) []*Fragment {
	var changed []*Fragment
	for anc := t.Parent(f); anc != nil; anc = t.Parent(anc) {
		if anc.Status != FragmentPending {
			break
		}
		anc.Status = FragmentRunning
		now := time.Now()
		anc.StartedAt = &now
		changed = append(changed, anc)
	}
	return changed
}

// Rollup recomputes ancestor group statuses after `settled` just transitioned
// to a terminal status (completed/failed/skipped). It also propagates
// skipped-by-failure to not-yet-dispatched sequential siblings — at
// `settled`'s own scope, and again at every ancestor scope where a group
// itself newly transitions to failed during the walk up (a failed group
// dooms its own later sequential siblings exactly as a failed leaf would).
// It mutates fragments in the tree in place and returns every fragment whose
// status changed as a result, in an order safe to persist top-to-bottom.
func (t *Tree) Rollup(settled *Fragment) []*Fragment {
	var changed []*Fragment

	if settled.Status == FragmentFailed {
		t.skipLaterSiblings(settled, &changed)
	}

	for anc := t.Parent(settled); anc != nil; anc = t.Parent(anc) {
		prevStatus := anc.Status
		if !t.recomputeGroup(anc) {
			break
		}
		changed = append(changed, anc)
		if anc.Status == FragmentFailed && prevStatus != FragmentFailed {
			t.skipLaterSiblings(anc, &changed)
		}
	}

	return changed
}

// skipLaterSiblings marks every not-yet-dispatched sequential sibling after
// f, within f's own parent scope, skipped-by-failure. f must already be
// failed. Parallel siblings are left alone — they run to their own natural
// completion even though the group is doomed.
func (t *Tree) skipLaterSiblings(f *Fragment, changed *[]*Fragment) {
	parent := t.Parent(f)
	if parent != nil && parent.IsParallel {
		return
	}
	for _, sib := range t.Children(f.ParentID) {
		if sib.Sequence <= f.Sequence {
			continue
		}
		if sib.Status == FragmentPending {
			t.skipSubtree(sib, changed)
		}
	}
}

// skipSubtree marks f, and every descendant of f if f is a group, skipped.
// Skipped fragments are never dispatched but count as completed for rollup.
func (t *Tree) skipSubtree(f *Fragment, changed *[]*Fragment) {
	f.Status = FragmentSkipped
	*changed = append(*changed, f)
	for _, child := range t.Children(&f.ID) {
		t.skipSubtree(child, changed)
	}
}

// recomputeGroup recomputes g's status from its children and reports whether
// it changed. A group is failed as soon as any child has failed (its
// parallel peers may still be running to completion); completed once every
// child is completed or skipped, with none failed.
func (t *Tree) recomputeGroup(g *Fragment) bool {
	children := t.Children(&g.ID)
	if len(children) == 0 {
		return false
	}

	anyFailed := false
	allTerminal := true
	for _, c := range children {
		if c.Status == FragmentFailed {
			anyFailed = true
		}
		if !c.Status.IsTerminal() {
			allTerminal = false
		}
	}

	var next FragmentStatus
	switch {
	case anyFailed:
		next = FragmentFailed
	case allTerminal:
		next = FragmentCompleted
	default:
		return false
	}

	statusChanged := g.Status != next
	g.Status = next

	// A group can be marked failed early (anyFailed, not yet allTerminal) and
	// only reach allTerminal on a later sibling's settle; CompletedAt must be
	// stamped on that later call even though status itself no longer changes.
	if allTerminal && g.CompletedAt == nil {
		now := time.Now()
		g.CompletedAt = &now
		return true
	}
	return statusChanged
}

// RootSettled reports whether every top-level (chain-root-scope) fragment has
// reached a terminal status, and whether any of them failed — the inputs the
// caller needs to decide the owning chain's final status.
func (t *Tree) RootSettled() (settled bool, anyFailed bool) {
	roots := t.Children(nil)
	if len(roots) == 0 {
		return true, false
	}
	settled = true
	for _, r := range roots {
		if !r.Status.IsTerminal() {
			settled = false
		}
		if r.Status == FragmentFailed {
			anyFailed = true
		}
	}
	return settled, anyFailed
}
