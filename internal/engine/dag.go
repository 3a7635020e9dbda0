package engine

import (
	"fmt"
	"sort"

	"github.com/shaiso/dflow/internal/domain"
)

// Node — узел в графе процессов.
type Node struct {
	// Process — тип процесса из каталога.
	Process *domain.ProcessType

	// ID — код процесса.
	ID string

	// InDegree — количество входящих рёбер (requires).
	InDegree int

	// DependsOn — процессы, которые должны завершиться раньше.
	DependsOn []*Node

	// Dependents — процессы, которые ждут этот.
	Dependents []*Node
}

// DAG — направленный ациклический граф процессов по requires.
type DAG struct {
	// Nodes — все узлы графа (code → Node).
	Nodes map[string]*Node

	// RootNodes — процессы без требований, в порядке каталога.
	RootNodes []*Node

	// Order — топологически отсортированный список; при равенстве — порядок каталога.
	Order []*Node
}

// BuildDAG строит граф процессов.
//
// Процессы должны быть уже проверены Validate (уникальные непустые коды).
func BuildDAG(processes []domain.ProcessType) (*DAG, error) {
	dag := &DAG{
		Nodes: make(map[string]*Node, len(processes)),
	}

	// Первый проход: создаём все узлы
	for i := range processes {
		p := &processes[i]
		dag.Nodes[p.Code] = &Node{
			Process:    p,
			ID:         p.Code,
			DependsOn:  make([]*Node, 0),
			Dependents: make([]*Node, 0),
		}
	}

	// Второй проход: связываем узлы по requires
	for i := range processes {
		if err := dag.linkDependencies(&processes[i]); err != nil {
			return nil, err
		}
	}

	dag.findRootNodes()

	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

// linkDependencies связывает узел с процессами из requires.
func (d *DAG) linkDependencies(p *domain.ProcessType) error {
	node := d.Nodes[p.Code]

	for _, req := range p.Requires {
		if req == p.Code {
			return NewValidationError(p.Code, "requires", "process requires itself", ErrSelfDependency)
		}
		depNode, exists := d.Nodes[req]
		if !exists {
			return NewValidationError(p.Code, "requires",
				fmt.Sprintf("requires unknown process: %s", req), ErrMissingRequirement)
		}
		d.addEdge(depNode, node)
	}

	return nil
}

// addEdge добавляет ребро между узлами.
// Дубликаты игнорируются, чтобы не считать InDegree дважды.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// findRootNodes находит узлы без входящих рёбер.
func (d *DAG) findRootNodes() {
	d.RootNodes = make([]*Node, 0)
	for _, node := range d.Nodes {
		if node.InDegree == 0 {
			d.RootNodes = append(d.RootNodes, node)
		}
	}
	sortByPosition(d.RootNodes)
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Среди готовых узлов первым берётся узел с меньшей позицией в каталоге.
func (d *DAG) topologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(d.Nodes))
	for id, node := range d.Nodes {
		inDegree[id] = node.InDegree
	}

	ready := make([]*Node, len(d.RootNodes))
	copy(ready, d.RootNodes)

	order := make([]*Node, 0, len(d.Nodes))

	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				ready = append(ready, dependent)
			}
		}
		sortByPosition(ready)
	}

	if len(order) != len(d.Nodes) {
		return nil, NewValidationError("", "requires", "cyclic dependency between processes", ErrCyclicDependency)
	}

	return order, nil
}

// GetReadyNodes возвращает процессы, все требования которых завершены,
// а сами они ещё не завершены. Порядок — топологический.
func (d *DAG) GetReadyNodes(completed map[string]bool) []*Node {
	ready := make([]*Node, 0)

	for _, node := range d.Order {
		if completed[node.ID] {
			continue
		}

		allDepsCompleted := true
		for _, dep := range node.DependsOn {
			if !completed[dep.ID] {
				allDepsCompleted = false
				break
			}
		}

		if allDepsCompleted {
			ready = append(ready, node)
		}
	}

	return ready
}

// GetNode возвращает узел по коду.
func (d *DAG) GetNode(id string) *Node {
	return d.Nodes[id]
}

// Size возвращает количество узлов.
func (d *DAG) Size() int {
	return len(d.Nodes)
}

// IsComplete проверяет, все ли процессы завершены.
func (d *DAG) IsComplete(completed map[string]bool) bool {
	for _, node := range d.Nodes {
		if !completed[node.ID] {
			return false
		}
	}
	return true
}

func sortByPosition(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		pi, pj := nodes[i].Process.Position, nodes[j].Process.Position
		if pi != pj {
			return pi < pj
		}
		return nodes[i].ID < nodes[j].ID
	})
}
