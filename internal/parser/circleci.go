package parser

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/errors"
)

const circleName = "CircleCI"

func parseCircleCI(path string, root *yaml.Node) (*draft, error) {
	definitions := lookup(root, "jobs")
	workflows := lookup(root, "workflows")
	if !isMap(definitions) && !isMap(workflows) {
		return nil, errors.NewInvalidPipelineError(circleName, "config has neither jobs nor workflows")
	}

	executors := lookup(root, "executors")
	dr := newDraft("")
	dr.triggers = []string{"push"}

	var flows []pair
	for _, p := range pairs(workflows) {
		if p.key != "version" && isMap(p.value) {
			flows = append(flows, p)
		}
	}

	// Version 2.0 configs without workflows run every job once
	if len(flows) == 0 {
		for _, p := range pairs(definitions) {
			dr.addJob(circleJob(p.key, p.key, resolve(p.value), executors))
		}
		return dr, nil
	}
	if len(flows) == 1 {
		dr.name = flows[0].key
	}

	for _, flow := range flows {
		if has(flow.value, "triggers") {
			dr.triggers = append(dr.triggers, "schedule")
		}
		for _, entry := range items(lookup(flow.value, "jobs")) {
			ref, params := scalar(entry), (*yaml.Node)(nil)
			if isMap(entry) {
				ps := pairs(entry)
				if len(ps) != 1 {
					return nil, errors.NewInvalidPipelineError(circleName, fmt.Sprintf("workflow %s has a malformed job entry", flow.key))
				}
				ref, params = ps[0].key, resolve(ps[0].value)
			}
			if ref == "" {
				continue
			}

			id := ref
			if alias := scalar(lookup(params, "name")); alias != "" {
				id = alias
			}
			if !dr.hasJob(id) {
				var job dag.JobNode
				if def := lookup(definitions, ref); isMap(def) {
					job = circleJob(id, ref, def, executors)
				} else {
					// An orb job or an approval gate
					job = dag.JobNode{ID: id, Steps: []dag.StepInfo{{Name: ref, Uses: ref, With: stringMap(params)}}}
					if scalar(lookup(params, "type")) == "approval" {
						job.Steps[0].Uses = "approval"
						job.Condition = "manual approval"
					}
				}
				if cond := circleFilters(lookup(params, "filters")); cond != "" {
					job.Condition = cond
				}
				dr.addJob(job)
			}
			dr.need(id, strs(lookup(params, "requires"))...)
		}
	}
	return dr, nil
}

func circleJob(id, ref string, n, executors *yaml.Node) dag.JobNode {
	job := dag.JobNode{ID: id, RunsOn: scalar(lookup(n, "resource_class"))}
	if id != ref {
		job.Name = ref
	}

	env := n
	if exec := lookup(n, "executor"); exec != nil {
		name := scalar(exec)
		if name == "" {
			name = scalar(lookup(exec, "name"))
		}
		if def := lookup(executors, name); isMap(def) {
			env = def
		}
	}
	if job.RunsOn == "" {
		job.RunsOn = scalar(lookup(env, "resource_class"))
	}
	if images := items(lookup(env, "docker")); len(images) > 0 {
		job.Image = scalar(lookup(images[0], "image"))
	} else if machine := lookup(env, "machine"); machine != nil {
		job.Image = scalar(lookup(machine, "image"))
	} else if macos := lookup(env, "macos"); macos != nil {
		job.Image = "macos:" + scalar(lookup(macos, "xcode"))
		if job.RunsOn == "" {
			job.RunsOn = "macos.m1.medium.gen1"
		}
	}

	for _, s := range items(lookup(n, "steps")) {
		if name := scalar(s); name != "" {
			job.Steps = append(job.Steps, dag.StepInfo{Name: name, Uses: name})
			continue
		}
		ps := pairs(s)
		if len(ps) != 1 {
			continue
		}
		kind, body := ps[0].key, resolve(ps[0].value)

		switch kind {
		case "run":
			step := dag.StepInfo{Run: scalar(body)}
			if isMap(body) {
				step.Name = scalar(lookup(body, "name"))
				step.Run = scalar(lookup(body, "command"))
			}
			job.Steps = append(job.Steps, step)
		case "save_cache":
			job.Caches = append(job.Caches, strs(lookup(body, "paths"))...)
			job.Steps = append(job.Steps, dag.StepInfo{Name: kind, Uses: kind, With: stringMap(body)})
		case "persist_to_workspace":
			root := scalar(lookup(body, "root"))
			for _, p := range strs(lookup(body, "paths")) {
				job.Artifacts = append(job.Artifacts, strings.TrimSuffix(root, "/")+"/"+p)
			}
			job.Steps = append(job.Steps, dag.StepInfo{Name: kind, Uses: kind, With: stringMap(body)})
		case "store_artifacts":
			job.Artifacts = append(job.Artifacts, scalar(lookup(body, "path")))
			job.Steps = append(job.Steps, dag.StepInfo{Name: kind, Uses: kind, With: stringMap(body)})
		default:
			// checkout with options, restore_cache, attach_workspace, orb commands
			job.Steps = append(job.Steps, dag.StepInfo{Name: kind, Uses: kind, With: stringMap(body)})
		}
	}
	return job
}

// circleFilters renders branch and tag filters as a condition
func circleFilters(n *yaml.Node) string {
	var parts []string
	for _, kind := range []string{"branches", "tags"} {
		f := lookup(n, kind)
		if only := strs(lookup(f, "only")); len(only) > 0 {
			parts = append(parts, fmt.Sprintf("%s only %s", kind, strings.Join(only, ", ")))
		}
		if ignore := strs(lookup(f, "ignore")); len(ignore) > 0 {
			parts = append(parts, fmt.Sprintf("%s ignore %s", kind, strings.Join(ignore, ", ")))
		}
	}
	return strings.Join(parts, "; ")
}
