package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/dflow/internal/domain"
)

func TestBuildDAG_SimpleChain(t *testing.T) {
	processes := []domain.ProcessType{
		{Code: "scan_job", Position: 1},
		{Code: "rename_files", Position: 2, Requires: []string{"scan_job"}},
		{Code: "move_files", Position: 3, Requires: []string{"rename_files"}},
	}

	dag, err := BuildDAG(processes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dag.Size() != 3 {
		t.Errorf("expected 3 nodes, got %d", dag.Size())
	}

	if len(dag.RootNodes) != 1 {
		t.Fatalf("expected 1 root node, got %d", len(dag.RootNodes))
	}
	if dag.RootNodes[0].ID != "scan_job" {
		t.Errorf("expected root node scan_job, got %s", dag.RootNodes[0].ID)
	}

	move := dag.GetNode("move_files")
	if len(move.DependsOn) != 1 || move.DependsOn[0].ID != "rename_files" {
		t.Error("move_files should depend on rename_files")
	}

	want := []string{"scan_job", "rename_files", "move_files"}
	for i, node := range dag.Order {
		if node.ID != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, node.ID, want[i])
		}
	}
}

func TestBuildDAG_OrderFollowsPosition(t *testing.T) {
	// Независимые процессы сортируются по позиции в каталоге
	processes := []domain.ProcessType{
		{Code: "copy_files", Position: 3},
		{Code: "scan_job", Position: 1},
		{Code: "rename_files", Position: 2},
	}

	dag, err := BuildDAG(processes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"scan_job", "rename_files", "copy_files"}
	for i, node := range dag.Order {
		if node.ID != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, node.ID, want[i])
		}
	}
}

func TestBuildDAG_Diamond(t *testing.T) {
	// A → B → D
	// A → C → D
	processes := []domain.ProcessType{
		{Code: "A", Position: 1},
		{Code: "B", Position: 2, Requires: []string{"A"}},
		{Code: "C", Position: 3, Requires: []string{"A"}},
		{Code: "D", Position: 4, Requires: []string{"B", "C"}},
	}

	dag, err := BuildDAG(processes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dag.GetNode("A").InDegree != 0 {
		t.Error("A should have inDegree 0")
	}
	if dag.GetNode("D").InDegree != 2 {
		t.Error("D should have inDegree 2")
	}
}

func TestBuildDAG_DuplicateRequirement(t *testing.T) {
	processes := []domain.ProcessType{
		{Code: "A", Position: 1},
		{Code: "B", Position: 2, Requires: []string{"A", "A"}},
	}

	dag, err := BuildDAG(processes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dag.GetNode("B").InDegree != 1 {
		t.Errorf("expected inDegree 1, got %d", dag.GetNode("B").InDegree)
	}
}

func TestBuildDAG_Errors(t *testing.T) {
	tests := []struct {
		name      string
		processes []domain.ProcessType
		want      error
	}{
		{
			name: "cycle",
			processes: []domain.ProcessType{
				{Code: "A", Requires: []string{"C"}},
				{Code: "B", Requires: []string{"A"}},
				{Code: "C", Requires: []string{"B"}},
			},
			want: ErrCyclicDependency,
		},
		{
			name: "self",
			processes: []domain.ProcessType{
				{Code: "A", Requires: []string{"A"}},
			},
			want: ErrSelfDependency,
		},
		{
			name: "unknown",
			processes: []domain.ProcessType{
				{Code: "A", Requires: []string{"missing"}},
			},
			want: ErrMissingRequirement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildDAG(tt.processes)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected error to wrap domain.ErrValidation, got %v", err)
			}
		})
	}
}

func TestGetReadyNodes(t *testing.T) {
	processes := []domain.ProcessType{
		{Code: "A", Position: 1},
		{Code: "B", Position: 2},
		{Code: "C", Position: 3, Requires: []string{"A"}},
		{Code: "D", Position: 4, Requires: []string{"A", "B"}},
	}

	dag, err := BuildDAG(processes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := func(nodes []*Node) map[string]bool {
		m := make(map[string]bool)
		for _, n := range nodes {
			m[n.ID] = true
		}
		return m
	}

	// Изначально готовы A и B
	ready := ids(dag.GetReadyNodes(nil))
	if len(ready) != 2 || !ready["A"] || !ready["B"] {
		t.Errorf("expected A and B ready, got %v", ready)
	}

	// После A готовы B и C
	ready = ids(dag.GetReadyNodes(map[string]bool{"A": true}))
	if !ready["B"] || !ready["C"] || ready["D"] {
		t.Errorf("expected B and C ready, got %v", ready)
	}

	// После A и B готов D
	ready = ids(dag.GetReadyNodes(map[string]bool{"A": true, "B": true}))
	if !ready["C"] || !ready["D"] {
		t.Errorf("expected C and D ready, got %v", ready)
	}

	all := map[string]bool{"A": true, "B": true, "C": true, "D": true}
	if !dag.IsComplete(all) {
		t.Error("DAG should be complete")
	}
	if len(dag.GetReadyNodes(all)) != 0 {
		t.Error("no nodes should be ready when all completed")
	}
}
