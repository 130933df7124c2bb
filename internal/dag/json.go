package dag

import (
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/pipescope/internal/domain"
)

type dagJSON struct {
	Name       string          `json:"name"`
	SourceFile string          `json:"source_file"`
	Provider   domain.Provider `json:"provider"`
	Triggers   []string        `json:"triggers,omitempty"`
	Jobs       []JobNode       `json:"jobs"`
	Edges      []Edge          `json:"edges"`
}

// MarshalJSON writes the graph with jobs in declared order and explicit edges
func (d *PipelineDag) MarshalJSON() ([]byte, error) {
	jobs := d.jobs
	if jobs == nil {
		jobs = []JobNode{}
	}
	edges := d.Edges()
	if edges == nil {
		edges = []Edge{}
	}
	return json.Marshal(dagJSON{
		Name:       d.name,
		SourceFile: d.sourceFile,
		Provider:   d.provider,
		Triggers:   d.triggers,
		Jobs:       jobs,
		Edges:      edges,
	})
}

// UnmarshalJSON rebuilds the graph and rejects cycles and dangling edges
func (d *PipelineDag) UnmarshalJSON(data []byte) error {
	var raw dagJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Provider != "" {
		if err := raw.Provider.Validate(); err != nil {
			return err
		}
	}

	g := New(raw.Name, raw.SourceFile, raw.Provider)
	g.SetTriggers(raw.Triggers)
	for _, job := range raw.Jobs {
		if _, err := g.AddJob(job); err != nil {
			return err
		}
	}
	for _, e := range raw.Edges {
		if err := g.AddDependency(e.To, e.From); err != nil {
			return fmt.Errorf("edge %s -> %s: %w", e.From, e.To, err)
		}
	}
	if err := g.Validate(); err != nil {
		return err
	}

	*d = *g
	return nil
}
