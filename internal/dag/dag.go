// Package dag holds the provider-neutral pipeline graph.
//
// Jobs live in an arena indexed by NodeIndex in the order the pipeline declares
// them. Edges run from a dependency to its dependent, so every topological
// order lists a job after everything it needs.
package dag

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/felixgeelhaar/pipescope/internal/domain"
	"github.com/felixgeelhaar/pipescope/internal/errors"
)

// PipelineDag is the canonical graph of one parsed pipeline file
type PipelineDag struct {
	name       string
	sourceFile string
	provider   domain.Provider
	triggers   []string

	jobs       []JobNode
	index      map[string]NodeIndex
	deps       [][]NodeIndex // predecessors, ascending
	dependents [][]NodeIndex // successors, ascending
}

// Edge is a depends-on relation: From must finish before To starts
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// New creates an empty graph
func New(name, sourceFile string, provider domain.Provider) *PipelineDag {
	return &PipelineDag{
		name:       name,
		sourceFile: sourceFile,
		provider:   provider,
		index:      make(map[string]NodeIndex),
	}
}

func (d *PipelineDag) Name() string              { return d.name }
func (d *PipelineDag) SourceFile() string        { return d.sourceFile }
func (d *PipelineDag) Provider() domain.Provider { return d.provider }

// Triggers returns the events that start the pipeline (push, pull_request, schedule, ...)
func (d *PipelineDag) Triggers() []string {
	return slices.Clone(d.triggers)
}

// SetTriggers records the pipeline trigger events, sorted and de-duplicated
func (d *PipelineDag) SetTriggers(triggers []string) {
	t := slices.Clone(triggers)
	sort.Strings(t)
	d.triggers = slices.Compact(t)
}

// HasTrigger reports whether the pipeline starts on the given event
func (d *PipelineDag) HasTrigger(event string) bool {
	return slices.Contains(d.triggers, event)
}

// AddJob appends a job in declared order
func (d *PipelineDag) AddJob(job JobNode) (NodeIndex, error) {
	if strings.TrimSpace(job.ID) == "" {
		return 0, errors.New(errors.ErrCodeParseInvalidPipeline, "job id cannot be empty")
	}
	if _, exists := d.index[job.ID]; exists {
		return 0, errors.New(errors.ErrCodeDAGDuplicateJob, fmt.Sprintf("duplicate job id %q", job.ID))
	}
	for i, step := range job.Steps {
		if v := step.EstimatedDurationSecs; v != nil && (*v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return 0, errors.New(errors.ErrCodeParseInvalidPipeline,
				fmt.Sprintf("job %q step %d (%s) has invalid duration %v", job.ID, i+1, step.Label(), *v)).
				WithSuggestion("Step durations must be finite and not negative")
		}
	}

	idx := NodeIndex(len(d.jobs))
	d.jobs = append(d.jobs, job)
	d.deps = append(d.deps, nil)
	d.dependents = append(d.dependents, nil)
	d.index[job.ID] = idx
	return idx, nil
}

// AddDependency records that dependent needs dependency. Repeated edges are ignored.
func (d *PipelineDag) AddDependency(dependent, dependency string) error {
	to, ok := d.index[dependent]
	if !ok {
		return errors.New(errors.ErrCodeDAGUnknownDependency, fmt.Sprintf("unknown job %q", dependent))
	}
	from, ok := d.index[dependency]
	if !ok {
		return errors.NewUnknownDependencyError(dependent, dependency)
	}
	if from == to {
		return errors.New(errors.ErrCodeDAGSelfLoop, fmt.Sprintf("job %q depends on itself", dependent))
	}

	d.deps[to] = insertSorted(d.deps[to], from)
	d.dependents[from] = insertSorted(d.dependents[from], to)
	return nil
}

func insertSorted(list []NodeIndex, v NodeIndex) []NodeIndex {
	pos, found := slices.BinarySearch(list, v)
	if found {
		return list
	}
	return slices.Insert(list, pos, v)
}

// JobCount returns the number of jobs
func (d *PipelineDag) JobCount() int {
	return len(d.jobs)
}

// StepCount returns the number of steps across all jobs
func (d *PipelineDag) StepCount() int {
	n := 0
	for _, j := range d.jobs {
		n += len(j.Steps)
	}
	return n
}

// Job returns the job at idx
func (d *PipelineDag) Job(idx NodeIndex) JobNode {
	return d.jobs[idx]
}

// Jobs returns all jobs in declared order
func (d *PipelineDag) Jobs() []JobNode {
	return slices.Clone(d.jobs)
}

// Lookup finds a job index by id
func (d *PipelineDag) Lookup(id string) (NodeIndex, bool) {
	idx, ok := d.index[id]
	return idx, ok
}

// Dependencies returns the direct predecessors of idx in declared order
func (d *PipelineDag) Dependencies(idx NodeIndex) []NodeIndex {
	return slices.Clone(d.deps[idx])
}

// Dependents returns the direct successors of idx in declared order
func (d *PipelineDag) Dependents(idx NodeIndex) []NodeIndex {
	return slices.Clone(d.dependents[idx])
}

// Edges lists every edge, grouped by dependent in declared order
func (d *PipelineDag) Edges() []Edge {
	var edges []Edge
	for to, preds := range d.deps {
		for _, from := range preds {
			edges = append(edges, Edge{From: d.jobs[from].ID, To: d.jobs[to].ID})
		}
	}
	return edges
}

// Roots returns the jobs with no dependencies
func (d *PipelineDag) Roots() []NodeIndex {
	var roots []NodeIndex
	for i := range d.jobs {
		if len(d.deps[i]) == 0 {
			roots = append(roots, NodeIndex(i))
		}
	}
	return roots
}

// IDs maps indices to job ids
func (d *PipelineDag) IDs(indices []NodeIndex) []string {
	ids := make([]string, len(indices))
	for i, idx := range indices {
		ids[i] = d.jobs[idx].ID
	}
	return ids
}
