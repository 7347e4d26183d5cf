package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ModelSnapshot is the minimal data needed to diff two model versions.
type ModelSnapshot struct {
	Name             string
	Version          int64
	Objects          []ModelObject
	GlobalParameters []Parameter
	Relationships    []Relationship
}

// NewModelSnapshot captures the diffable parts of a model version.
func NewModelSnapshot(model ParametricModel) ModelSnapshot {
	return ModelSnapshot{
		Name:             model.Name,
		Version:          model.Version,
		Objects:          copyObjects(model.Objects),
		GlobalParameters: copyParameters(model.GlobalParameters),
		Relationships:    copyRelationships(model.Relationships),
	}
}

// CanonicalText flattens the snapshot into deterministic lines suitable for
// diffing. Object parameters sort by object id then name; globals by name.
func (s ModelSnapshot) CanonicalText() []string {
	lines := []string{
		fmt.Sprintf("Name: %s", s.Name),
		fmt.Sprintf("Version: %d", s.Version),
		"GlobalParameters:",
	}
	lines = append(lines, parameterLines("  ", s.GlobalParameters)...)

	lines = append(lines, "Objects:")
	objects := make([]ModelObject, len(s.Objects))
	copy(objects, s.Objects)
	sort.Slice(objects, func(i, j int) bool { return objects[i].ID < objects[j].ID })
	if len(objects) == 0 {
		lines = append(lines, "  (none)")
	}
	for _, obj := range objects {
		lines = append(lines, fmt.Sprintf("  %s:", obj.ID))
		lines = append(lines, parameterLines("    ", obj.Parameters)...)
	}

	lines = append(lines, "Relationships:")
	rels := make([]Relationship, len(s.Relationships))
	copy(rels, s.Relationships)
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].SourceID != rels[j].SourceID {
			return rels[i].SourceID < rels[j].SourceID
		}
		return rels[i].TargetID < rels[j].TargetID
	})
	if len(rels) == 0 {
		lines = append(lines, "  (none)")
	}
	for _, rel := range rels {
		lines = append(lines, fmt.Sprintf("  %s -> %s (%s)", rel.SourceID, rel.TargetID, rel.Type))
	}

	return lines
}

// DiffModelSnapshots produces a unified diff between two versions using the
// provided labels.
func DiffModelSnapshots(baseLabel string, base *ModelSnapshot, targetLabel string, target *ModelSnapshot) string {
	return buildUnifiedDiff(baseLabel, targetLabel, snapshotString(base), snapshotString(target))
}

func snapshotString(snapshot *ModelSnapshot) string {
	if snapshot == nil {
		return ""
	}
	return strings.Join(snapshot.CanonicalText(), "\n") + "\n"
}

func parameterLines(indent string, params []Parameter) []string {
	if len(params) == 0 {
		return []string{indent + "(none)"}
	}
	sorted := make([]Parameter, len(params))
	copy(sorted, params)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	lines := make([]string, 0, len(sorted))
	for _, p := range sorted {
		encoded, err := json.Marshal(p.Value)
		if err != nil {
			encoded = []byte(fmt.Sprintf("%v", p.Value))
		}
		if p.Unit != "" {
			lines = append(lines, fmt.Sprintf("%s%s: %s %s", indent, p.Name, encoded, p.Unit))
		} else {
			lines = append(lines, fmt.Sprintf("%s%s: %s", indent, p.Name, encoded))
		}
	}
	return lines
}

type diffOp struct {
	prefix string
	line   string
}

func buildUnifiedDiff(baseLabel, targetLabel, baseContent, targetContent string) string {
	baseLines := splitLines(baseContent)
	targetLines := splitLines(targetContent)

	ops := diffLines(baseLines, targetLines)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("--- %s\n", baseLabel))
	builder.WriteString(fmt.Sprintf("+++ %s\n", targetLabel))
	builder.WriteString("@@ -0,0 +0,0 @@\n")
	for _, operation := range ops {
		builder.WriteString(operation.prefix)
		builder.WriteString(operation.line)
		builder.WriteString("\n")
	}

	return builder.String()
}

func splitLines(input string) []string {
	lines := strings.Split(input, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// diffLines walks a longest-common-subsequence table to emit keep/remove/add
// operations in order.
func diffLines(base, target []string) []diffOp {
	m := len(base)
	n := len(target)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if base[i] == target[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	ops := make([]diffOp, 0, m+n)
	i, j := 0, 0
	for i < m && j < n {
		if base[i] == target[j] {
			ops = append(ops, diffOp{prefix: " ", line: base[i]})
			i++
			j++
			continue
		}

		if dp[i+1][j] >= dp[i][j+1] {
			ops = append(ops, diffOp{prefix: "-", line: base[i]})
			i++
		} else {
			ops = append(ops, diffOp{prefix: "+", line: target[j]})
			j++
		}
	}

	for i < m {
		ops = append(ops, diffOp{prefix: "-", line: base[i]})
		i++
	}

	for j < n {
		ops = append(ops, diffOp{prefix: "+", line: target[j]})
		j++
	}

	return ops
}
