// Package commitlog implements commit creation, history walk, diff, and
// merge-base/conflict-detection over the object model (spec §4.4).
package commitlog

import (
	"fmt"
	"time"

	"github.com/vcsql/vcsql/internal/objstore"
	"github.com/vcsql/vcsql/internal/vcsqlerr"
)

// Info is the structured metadata returned by CommitInfo and History.
type Info struct {
	ID        objstore.CommitID
	Root      objstore.TreeID
	Parents   []objstore.CommitID
	Author    string
	Message   string
	Timestamp time.Time
}

// IsMerge reports whether this commit has more than one parent.
func (i Info) IsMerge() bool { return len(i.Parents) > 1 }

// Log is the commit/history facade over a Store.
type Log struct {
	store *objstore.Store
}

// New constructs a Log over store.
func New(store *objstore.Store) *Log { return &Log{store: store} }

// CreateInitialCommit builds a root tree containing one reserved empty
// subtree and commits it with no parents (spec §4.4).
func (l *Log) CreateInitialCommit(author string) (objstore.CommitID, error) {
	reservedTree, err := l.store.PutTree(objstore.Tree{})
	if err != nil {
		return objstore.CommitID{}, fmt.Errorf("create initial commit: %w", err)
	}
	root, err := l.store.PutTree(objstore.Tree{Entries: []objstore.TreeEntry{
		{Name: "_schemas", Kind: objstore.EntryTree, Tree: reservedTree},
	}})
	if err != nil {
		return objstore.CommitID{}, fmt.Errorf("create initial commit: %w", err)
	}
	return l.Commit(root, nil, "[INIT] empty repository", author)
}

// Commit builds a commit object over tree with the given parents, message
// and author signature.
func (l *Log) Commit(tree objstore.TreeID, parents []objstore.CommitID, message, author string) (objstore.CommitID, error) {
	c := objstore.Commit{
		Root:      tree,
		Parents:   parents,
		Author:    author,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	id, err := l.store.PutCommit(c)
	if err != nil {
		return objstore.CommitID{}, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// CommitInfo returns the structured metadata for id.
func (l *Log) CommitInfo(id objstore.CommitID) (Info, error) {
	c, err := l.store.GetCommit(id)
	if err != nil {
		return Info{}, fmt.Errorf("commit info %s: %w", id.Short(), err)
	}
	return Info{ID: id, Root: c.Root, Parents: c.Parents, Author: c.Author, Message: c.Message, Timestamp: c.Timestamp}, nil
}

// History walks backward from start in reverse topological + time order.
// If firstParentOnly is true, only the first parent of each commit is
// followed. limit <= 0 means unbounded.
func (l *Log) History(start objstore.CommitID, limit int, firstParentOnly bool) ([]Info, error) {
	var out []Info
	visited := map[string]bool{}
	queue := []objstore.CommitID{start}

	for len(queue) > 0 {
		if limit > 0 && len(out) >= limit {
			break
		}
		id := queue[0]
		queue = queue[1:]
		if visited[id.String()] {
			continue
		}
		visited[id.String()] = true

		info, err := l.CommitInfo(id)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		out = append(out, info)

		if firstParentOnly {
			if len(info.Parents) > 0 {
				queue = append(queue, info.Parents[0])
			}
			continue
		}
		queue = append(queue, info.Parents...)
	}
	// Already time-descending since we visit a commit before its parents
	// and parents are strictly older; sort defensively for merge commits
	// whose parent subtrees can interleave timestamps.
	sortByTimeDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortByTimeDesc(infos []Info) {
	for i := 1; i < len(infos); i++ {
		for j := i; j > 0 && infos[j].Timestamp.After(infos[j-1].Timestamp); j-- {
			infos[j], infos[j-1] = infos[j-1], infos[j]
		}
	}
}

// MergeBase returns the nearest common ancestor of a and b, if any.
func (l *Log) MergeBase(a, b objstore.CommitID) (objstore.CommitID, bool, error) {
	ancestorsA, err := l.ancestorSet(a)
	if err != nil {
		return objstore.CommitID{}, false, fmt.Errorf("merge base: %w", err)
	}

	visited := map[string]bool{}
	queue := []objstore.CommitID{b}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		key := id.String()
		if visited[key] {
			continue
		}
		visited[key] = true
		if ancestorsA[key] {
			return id, true, nil
		}
		info, err := l.CommitInfo(id)
		if err != nil {
			return objstore.CommitID{}, false, fmt.Errorf("merge base: %w", err)
		}
		queue = append(queue, info.Parents...)
	}
	return objstore.CommitID{}, false, nil
}

func (l *Log) ancestorSet(start objstore.CommitID) (map[string]bool, error) {
	set := map[string]bool{}
	queue := []objstore.CommitID{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		key := id.String()
		if set[key] {
			continue
		}
		set[key] = true
		info, err := l.CommitInfo(id)
		if err != nil {
			return nil, err
		}
		queue = append(queue, info.Parents...)
	}
	return set, nil
}

// DetectConflicts computes the diffs from the merge base of ours and
// theirs to each side and returns the intersection of their changed
// paths. Fails with ErrNoCommonAncestor when the two commits share no
// history.
func (l *Log) DetectConflicts(ours, theirs objstore.CommitID) ([]string, error) {
	base, ok, err := l.MergeBase(ours, theirs)
	if err != nil {
		return nil, fmt.Errorf("detect conflicts: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("detect conflicts: %w", vcsqlerr.ErrNoCommonAncestor)
	}

	oursChanges, err := l.Diff(base, ours)
	if err != nil {
		return nil, fmt.Errorf("detect conflicts: %w", err)
	}
	theirsChanges, err := l.Diff(base, theirs)
	if err != nil {
		return nil, fmt.Errorf("detect conflicts: %w", err)
	}

	oursPaths := map[string]bool{}
	for _, c := range oursChanges {
		oursPaths[c.Path] = true
	}
	var conflicts []string
	for _, c := range theirsChanges {
		if oursPaths[c.Path] {
			conflicts = append(conflicts, c.Path)
		}
	}
	return conflicts, nil
}
