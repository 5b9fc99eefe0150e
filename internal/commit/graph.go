package commit

import "fmt"

// Ancestry traversal. Two strategies live here:
//
// Iterator linearizes the DAG into chronological order with a mutable
// two-frontier state. It is what log uses. It is an approximation: a
// merge-parent that is itself a merge commit is not followed through both of
// its parents.
//
// Ancestors/MergeBase/IsAncestor compute reachable sets by BFS. The merge
// engine uses these, since they stay correct for histories with nested merge
// commits.

// Iterator walks the history from a starting commit, most recent first. Each
// position is the current commit plus up to two frontier hashes, the next
// candidates on the parent and merge-parent lines.
type Iterator struct {
	store     *Store
	current   string
	done      bool
	parent    string
	hasParent bool
	merge     string
	hasMerge  bool
	err       error
}

// Err returns the load failure that aborted the walk, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Iterate returns an iterator positioned at start. An empty start hash yields
// an exhausted iterator.
func (s *Store) Iterate(start string) *Iterator {
	it := &Iterator{store: s}
	if start == "" {
		it.done = true
		return it
	}
	it.current = start
	it.parent, it.hasParent, it.merge, it.hasMerge = s.frontier(start)
	return it
}

// Next emits the current commit and advances the frontiers. It returns false
// when the walk is exhausted or the current record cannot be loaded; a
// malformed commit aborts traversal rather than panicking.
func (it *Iterator) Next() (*Commit, bool) {
	if it.done {
		return nil, false
	}

	out, err := it.store.Load(it.current)
	if err != nil {
		it.done = true
		it.err = fmt.Errorf("loading commit %s: %w", it.current, err)
		return nil, false
	}

	switch {
	case !it.hasParent && !it.hasMerge:
		it.done = true

	case it.hasParent && !it.hasMerge:
		it.advanceTo(it.parent)

	case !it.hasParent && it.hasMerge:
		it.advanceTo(it.merge)

	case it.parent == it.merge:
		// Point of divergence: collapse to the single common commit so the
		// merge base is not emitted twice.
		it.advanceTo(it.parent)

	default:
		recent, ok := it.store.moreRecent(it.parent, it.merge)
		if !ok {
			it.done = true
			break
		}
		if recent == it.parent {
			it.current = it.parent
			it.parent, it.hasParent = it.store.firstParent(recent)
		} else {
			it.current = it.merge
			it.merge, it.hasMerge = it.store.firstParent(recent)
		}
	}

	return out, true
}

func (it *Iterator) advanceTo(hash string) {
	it.current = hash
	it.parent, it.hasParent, it.merge, it.hasMerge = it.store.frontier(hash)
}

// frontier loads a commit and returns its parent hashes as optional values. A
// lone merge parent collapses into the first slot, matching the snapshot
// semantics: one frontier means one line of history to follow.
func (s *Store) frontier(hash string) (parent string, hasParent bool, merge string, hasMerge bool) {
	if hash == "" {
		return "", false, "", false
	}
	c, err := s.Load(hash)
	if err != nil {
		return "", false, "", false
	}
	switch {
	case c.Parent == "" && c.MergeParent == "":
		return "", false, "", false
	case c.Parent == "":
		return c.MergeParent, true, "", false
	case c.MergeParent == "":
		return c.Parent, true, "", false
	default:
		return c.Parent, true, c.MergeParent, true
	}
}

func (s *Store) firstParent(hash string) (string, bool) {
	parent, hasParent, _, _ := s.frontier(hash)
	return parent, hasParent
}

// moreRecent picks the frontier with the larger timestamp. If one side fails
// to load, the other wins; if both fail, the walk terminates.
func (s *Store) moreRecent(a, b string) (string, bool) {
	ca, errA := s.Load(a)
	cb, errB := s.Load(b)
	switch {
	case errA == nil && errB == nil:
		if ca.Timestamp > cb.Timestamp {
			return a, true
		}
		return b, true
	case errA == nil:
		return a, true
	case errB == nil:
		return b, true
	default:
		return "", false
	}
}

// Ancestors returns every commit reachable from start keyed by hash, including
// start itself and the empty pre-history sentinel.
func (s *Store) Ancestors(start string) (map[string]*Commit, error) {
	seen := make(map[string]*Commit)
	queue := []string{start}
	for len(queue) > 0 {
		hash := queue[0]
		queue = queue[1:]
		if _, ok := seen[hash]; ok {
			continue
		}
		c, err := s.Load(hash)
		if err != nil {
			return nil, fmt.Errorf("walking ancestry at %s: %w", hash, err)
		}
		seen[hash] = c
		if hash == "" {
			continue
		}
		queue = append(queue, c.Parent)
		if c.MergeParent != "" {
			queue = append(queue, c.MergeParent)
		}
	}
	return seen, nil
}

// MergeBase returns the most recent common ancestor of a and b. The empty
// pre-history sentinel is reachable from every commit, so two histories with
// no shared commits degrade to the empty snapshot as their base.
func (s *Store) MergeBase(a, b string) (*Commit, error) {
	ancestorsA, err := s.Ancestors(a)
	if err != nil {
		return nil, err
	}
	ancestorsB, err := s.Ancestors(b)
	if err != nil {
		return nil, err
	}

	var best *Commit
	for hash, c := range ancestorsA {
		if _, ok := ancestorsB[hash]; !ok {
			continue
		}
		if best == nil || c.Timestamp > best.Timestamp ||
			(c.Timestamp == best.Timestamp && c.Hash > best.Hash) {
			best = c
		}
	}
	return best, nil
}

// IsAncestor reports whether ancestor is reachable from descendant. Every
// commit is an ancestor of itself, and the empty sentinel is an ancestor of
// everything.
func (s *Store) IsAncestor(ancestor, descendant string) (bool, error) {
	if ancestor == "" {
		return true, nil
	}
	reachable, err := s.Ancestors(descendant)
	if err != nil {
		return false, err
	}
	_, ok := reachable[ancestor]
	return ok, nil
}
