package dag

import (
	"slices"

	"github.com/felixgeelhaar/pipescope/internal/errors"
)

// TopologicalOrder returns every job after all of its dependencies.
// Among jobs that are ready at the same time the one declared first wins,
// so the order is reproducible. A cycle yields a DAG-001 error.
func (d *PipelineDag) TopologicalOrder() ([]NodeIndex, error) {
	n := len(d.jobs)
	inDegree := make([]int, n)
	var ready []NodeIndex
	for i := 0; i < n; i++ {
		inDegree[i] = len(d.deps[i])
		if inDegree[i] == 0 {
			ready = append(ready, NodeIndex(i))
		}
	}

	order := make([]NodeIndex, 0, n)
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, succ := range d.dependents[next] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				ready = insertSorted(ready, succ)
			}
		}
	}

	if len(order) != n {
		var stuck []string
		for i := 0; i < n; i++ {
			if inDegree[i] > 0 {
				stuck = append(stuck, d.jobs[i].ID)
			}
		}
		return nil, errors.NewCycleError(stuck)
	}
	return order, nil
}

// Validate checks the graph is acyclic
func (d *PipelineDag) Validate() error {
	_, err := d.TopologicalOrder()
	return err
}

// Layers groups jobs by their longest distance from a root. Jobs in one layer
// never depend on each other and can run at the same time.
func (d *PipelineDag) Layers() ([][]NodeIndex, error) {
	order, err := d.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	depth := make([]int, len(d.jobs))
	maxDepth := -1
	for _, idx := range order {
		for _, pred := range d.deps[idx] {
			depth[idx] = max(depth[idx], depth[pred]+1)
		}
		maxDepth = max(maxDepth, depth[idx])
	}

	layers := make([][]NodeIndex, maxDepth+1)
	for i := range d.jobs {
		layers[depth[i]] = append(layers[depth[i]], NodeIndex(i))
	}
	return layers, nil
}

// MaxParallelism is the size of the widest layer; 0 for an empty or cyclic graph
func (d *PipelineDag) MaxParallelism() int {
	layers, err := d.Layers()
	if err != nil {
		return 0
	}
	widest := 0
	for _, l := range layers {
		widest = max(widest, len(l))
	}
	return widest
}

// Reachable reports whether to is reachable from from along dependency edges
func (d *PipelineDag) Reachable(from, to NodeIndex) bool {
	seen := make([]bool, len(d.jobs))
	stack := []NodeIndex{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, d.dependents[cur]...)
	}
	return false
}

// Ancestors returns every job idx transitively depends on, in declared order
func (d *PipelineDag) Ancestors(idx NodeIndex) []NodeIndex {
	seen := make([]bool, len(d.jobs))
	stack := slices.Clone(d.deps[idx])
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, d.deps[cur]...)
	}
	var out []NodeIndex
	for i, ok := range seen {
		if ok {
			out = append(out, NodeIndex(i))
		}
	}
	return out
}
