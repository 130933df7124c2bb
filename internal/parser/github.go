package parser

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/errors"
)

func parseGitHub(path string, root *yaml.Node) (*draft, error) {
	dr := newDraft(scalar(lookup(root, "name")))
	dr.triggers = githubTriggers(lookup(root, "on"))

	jobs := lookup(root, "jobs")
	if !isMap(jobs) {
		return nil, errors.NewInvalidPipelineError("GitHub Actions", "workflow has no jobs mapping")
	}

	for _, p := range pairs(jobs) {
		if !isMap(p.value) {
			return nil, errors.NewInvalidPipelineError("GitHub Actions", "job "+p.key+" is not a mapping")
		}
		job := githubJob(p.key, resolve(p.value))
		dr.addJob(job)
		dr.need(job.ID, strs(lookup(p.value, "needs"))...)
	}
	return dr, nil
}

// githubTriggers reads on: in any of its three forms
func githubTriggers(on *yaml.Node) []string {
	if isMap(on) {
		return keys(on)
	}
	return strs(on)
}

func githubJob(id string, n *yaml.Node) dag.JobNode {
	job := dag.JobNode{
		ID:        id,
		Name:      scalar(lookup(n, "name")),
		RunsOn:    runsOn(lookup(n, "runs-on")),
		Condition: scalar(lookup(n, "if")),
		Image:     containerImage(lookup(n, "container")),
		Outputs:   keys(lookup(n, "outputs")),
	}

	// A job that calls a reusable workflow has no steps of its own
	if uses := scalar(lookup(n, "uses")); uses != "" {
		job.Steps = []dag.StepInfo{{Name: id, Uses: uses, With: stringMap(lookup(n, "with"))}}
		return job
	}

	for _, s := range items(lookup(n, "steps")) {
		step := dag.StepInfo{
			Name: scalar(lookup(s, "name")),
			Uses: scalar(lookup(s, "uses")),
			Run:  scalar(lookup(s, "run")),
			With: stringMap(lookup(s, "with")),
		}
		job.Steps = append(job.Steps, step)

		action := strings.ToLower(step.Uses)
		switch {
		case strings.HasPrefix(action, "actions/upload-artifact@"):
			job.Artifacts = append(job.Artifacts, lines(step.With["path"])...)
		case strings.HasPrefix(action, "actions/cache@"), strings.HasPrefix(action, "actions/cache/save@"):
			job.Caches = append(job.Caches, lines(step.With["path"])...)
		}
	}
	return job
}

// runsOn flattens the label, list and group forms of runs-on
func runsOn(n *yaml.Node) string {
	if isMap(n) {
		if labels := strs(lookup(n, "labels")); len(labels) > 0 {
			return strings.Join(labels, ", ")
		}
		return scalar(lookup(n, "group"))
	}
	return strings.Join(strs(n), ", ")
}

func containerImage(n *yaml.Node) string {
	if isMap(n) {
		return scalar(lookup(n, "image"))
	}
	return scalar(n)
}

// lines splits a multi-line input value into trimmed non-empty lines
func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
