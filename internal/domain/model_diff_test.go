package domain

import (
	"strings"
	"testing"
)

func TestModelSnapshotCanonicalText(t *testing.T) {
	snapshot := ModelSnapshot{
		Name:    "Tower",
		Version: 1,
		Objects: []ModelObject{
			{ID: "o2", Parameters: []Parameter{{Name: "width", Value: float64(4)}}},
			{ID: "o1", Parameters: []Parameter{
				{Name: "height", Value: float64(10), Unit: "m"},
				{Name: "area", Value: float64(25)},
			}},
		},
		GlobalParameters: []Parameter{{Name: "floors", Value: float64(5)}},
		Relationships:    []Relationship{{SourceID: "o1", TargetID: "o2", Type: "adjacent"}},
	}

	lines := snapshot.CanonicalText()

	expected := []string{
		"Name: Tower",
		"Version: 1",
		"GlobalParameters:",
		"  floors: 5",
		"Objects:",
		"  o1:",
		"    area: 25",
		"    height: 10 m",
		"  o2:",
		"    width: 4",
		"Relationships:",
		"  o1 -> o2 (adjacent)",
	}

	if len(lines) != len(expected) {
		t.Fatalf("expected %d canonical lines, got %d\n%v", len(expected), len(lines), lines)
	}

	for idx, line := range expected {
		if lines[idx] != line {
			t.Errorf("line %d mismatch: expected %q got %q", idx, line, lines[idx])
		}
	}
}

func TestDiffModelSnapshots(t *testing.T) {
	base := ModelSnapshot{
		Name:             "Tower",
		Version:          1,
		Objects:          []ModelObject{{ID: "o1", Parameters: []Parameter{{Name: "height", Value: float64(10)}}}},
		GlobalParameters: []Parameter{{Name: "floors", Value: float64(5)}},
	}
	target := ModelSnapshot{
		Name:             "Tower",
		Version:          2,
		Objects:          []ModelObject{{ID: "o1", Parameters: []Parameter{{Name: "height", Value: float64(12)}}}},
		GlobalParameters: []Parameter{{Name: "floors", Value: float64(5)}, {Name: "orientation", Value: "north"}},
	}

	diff := DiffModelSnapshots("v1", &base, "v2", &target)

	if diff == "" {
		t.Fatal("expected diff output, got empty string")
	}
	if !strings.Contains(diff, "-    height: 10") {
		t.Errorf("diff missing removed parameter value: %s", diff)
	}
	if !strings.Contains(diff, "+    height: 12") {
		t.Errorf("diff missing new parameter value: %s", diff)
	}
	if !strings.Contains(diff, "+  orientation: \"north\"") {
		t.Errorf("diff missing added global parameter: %s", diff)
	}
	if !strings.Contains(diff, "--- v1") || !strings.Contains(diff, "+++ v2") {
		t.Errorf("diff missing labels: %s", diff)
	}
}

func TestDiffIdenticalSnapshotsHasNoChanges(t *testing.T) {
	snapshot := ModelSnapshot{
		Name:             "Tower",
		Version:          1,
		GlobalParameters: []Parameter{{Name: "floors", Value: float64(5)}},
	}

	diff := DiffModelSnapshots("a", &snapshot, "b", &snapshot)
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---") {
			t.Fatalf("identical snapshots produced a removal: %q", line)
		}
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			t.Fatalf("identical snapshots produced an addition: %q", line)
		}
	}
}
