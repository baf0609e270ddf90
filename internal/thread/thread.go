// Package thread assembles flat comment rows into reply trees.
//
// Only parent_id is stored, so the tree is rebuilt in memory every time the
// comments are fetched. Assembly is two passes: index every row by id, then
// attach each row to its parent (or make it a root).
package thread

import "github.com/sakif/vinstackcode/internal/model"

// OrphanPolicy decides what happens to a comment whose parent is not in the
// input.
type OrphanPolicy int

const (
	// DropOrphans leaves orphans out of the forest entirely.
	DropOrphans OrphanPolicy = iota
	// PromoteOrphans turns each orphan into a root.
	PromoteOrphans
)

func (p OrphanPolicy) String() string {
	switch p {
	case DropOrphans:
		return "drop"
	case PromoteOrphans:
		return "promote"
	default:
		return "unknown"
	}
}

// Node is a comment with its direct replies.
type Node struct {
	model.Comment
	Replies []*Node `json:"replies"`
}

// Build returns the roots of the comment forest in input order. Replies keep
// input order too, so rows sorted by creation time give chronological threads.
//
// A dropped orphan takes its own replies with it, since they can only be
// reached through it.
func Build(rows []model.Comment, policy OrphanPolicy) []*Node {
	nodes := make(map[string]*Node, len(rows))
	for _, c := range rows {
		nodes[c.ID] = &Node{Comment: c, Replies: []*Node{}}
	}

	roots := make([]*Node, 0, len(rows))
	for _, c := range rows {
		n := nodes[c.ID]
		if c.ParentID == "" {
			roots = append(roots, n)
			continue
		}
		parent, ok := nodes[c.ParentID]
		if ok && parent != n {
			parent.Replies = append(parent.Replies, n)
			continue
		}
		switch policy {
		case PromoteOrphans:
			roots = append(roots, n)
		case DropOrphans:
		}
	}
	return roots
}

// Count returns the number of comments reachable from roots.
func Count(roots []*Node) int {
	total := 0
	for _, r := range roots {
		total += 1 + Count(r.Replies)
	}
	return total
}
