package versioning

import (
	"sort"

	"github.com/google/uuid"

	"github.com/rpattn/parametric/internal/domain"
)

// Node is one version in a lineage arena. Parent is nil for a root, which is
// either a true first version or the oldest surviving ancestor when a hard
// delete removed part of the chain.
type Node struct {
	Model    domain.ParametricModel
	Parent   *Node
	Children []*Node
}

// Lineage is an arena of version nodes keyed by model id with immutable
// parent pointers. It is built once from a repository query; application code
// never chases parentId through individual lookups.
type Lineage struct {
	nodes map[uuid.UUID]*Node
	roots []*Node
}

// BuildLineage assembles the arena from a set of version rows. Rows whose
// parent is absent from the set become roots; dangling pointers are expected
// because parent rows can be hard-deleted without rewriting children.
func BuildLineage(models []domain.ParametricModel) *Lineage {
	lineage := &Lineage{nodes: make(map[uuid.UUID]*Node, len(models))}

	for _, model := range models {
		lineage.nodes[model.ID] = &Node{Model: model}
	}

	for _, node := range lineage.nodes {
		parentID := node.Model.ParentID
		if parentID == nil {
			continue
		}
		if parent, ok := lineage.nodes[*parentID]; ok {
			node.Parent = parent
			parent.Children = append(parent.Children, node)
		}
	}

	for _, node := range lineage.nodes {
		sort.Slice(node.Children, func(i, j int) bool {
			a, b := node.Children[i].Model, node.Children[j].Model
			if a.Version != b.Version {
				return a.Version < b.Version
			}
			return a.CreatedAt.Before(b.CreatedAt)
		})
		if node.Parent == nil {
			lineage.roots = append(lineage.roots, node)
		}
	}
	sort.Slice(lineage.roots, func(i, j int) bool {
		a, b := lineage.roots[i].Model, lineage.roots[j].Model
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	return lineage
}

// Node returns the arena node for id, if present.
func (l *Lineage) Node(id uuid.UUID) (*Node, bool) {
	node, ok := l.nodes[id]
	return node, ok
}

// Len reports the number of versions in the arena.
func (l *Lineage) Len() int {
	return len(l.nodes)
}

// Chain returns the ancestor path ending at id, oldest first. The chain roots
// at the oldest row the arena can see.
func (l *Lineage) Chain(id uuid.UUID) []domain.ParametricModel {
	node, ok := l.nodes[id]
	if !ok {
		return nil
	}
	var chain []domain.ParametricModel
	for current := node; current != nil; current = current.Parent {
		chain = append(chain, current.Model)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Ordered walks the arena root-first and returns every version, parents
// before children. Sibling branches order by version then creation time.
func (l *Lineage) Ordered() []domain.ParametricModel {
	out := make([]domain.ParametricModel, 0, len(l.nodes))
	var walk func(*Node)
	walk = func(node *Node) {
		out = append(out, node.Model)
		for _, child := range node.Children {
			walk(child)
		}
	}
	for _, root := range l.roots {
		walk(root)
	}
	return out
}
