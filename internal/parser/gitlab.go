package parser

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/errors"
)

// gitlabGlobalKeys are top-level keys that are not jobs
var gitlabGlobalKeys = map[string]bool{
	"default": true, "include": true, "stages": true, "variables": true, "workflow": true,
	"image": true, "services": true, "cache": true, "before_script": true, "after_script": true,
}

var gitlabDefaultStages = []string{".pre", "build", "test", "deploy", ".post"}

var pipelineSource = regexp.MustCompile(`\$CI_PIPELINE_SOURCE\s*==\s*["']([a-z_]+)["']`)

const gitlabName = "GitLab CI"

func parseGitLab(path string, root *yaml.Node) (*draft, error) {
	dr := newDraft("")
	dr.triggers = gitlabTriggers(lookup(root, "workflow"))

	stages := strs(lookup(root, "stages"))
	if len(stages) == 0 {
		stages = gitlabDefaultStages
	} else {
		stages = append(append([]string{".pre"}, stages...), ".post")
	}
	stageIndex := make(map[string]int, len(stages))
	for i, s := range stages {
		stageIndex[s] = i
	}

	defaults := lookup(root, "default")
	templates := make(map[string]*yaml.Node)
	for _, p := range pairs(root) {
		if isMap(p.value) {
			templates[p.key] = resolve(p.value)
		}
	}

	type placed struct {
		id    string
		stage int
		needs *yaml.Node
	}
	var order []placed

	for _, p := range pairs(root) {
		if gitlabGlobalKeys[p.key] || strings.HasPrefix(p.key, ".") || !isMap(p.value) {
			continue
		}

		n, err := gitlabExtends(p.key, resolve(p.value), templates, 0)
		if err != nil {
			return nil, err
		}
		if !has(n, "script") && !has(n, "trigger") && !has(n, "run") {
			return nil, errors.NewInvalidPipelineError(gitlabName, fmt.Sprintf("job %s has no script", p.key))
		}

		stage := scalar(lookup(n, "stage"))
		if stage == "" {
			stage = "test"
		}
		idx, ok := stageIndex[stage]
		if !ok {
			return nil, errors.NewInvalidPipelineError(gitlabName, fmt.Sprintf("job %s uses undeclared stage %q", p.key, stage))
		}

		dr.addJob(gitlabJob(p.key, stage, n, root, defaults))
		order = append(order, placed{id: p.key, stage: idx, needs: lookup(n, "needs")})
	}

	for _, job := range order {
		if job.needs != nil {
			for _, need := range gitlabNeeds(job.needs) {
				if need.optional && !dr.hasJob(need.job) {
					continue
				}
				dr.need(job.id, need.job)
			}
			continue
		}
		// Without needs a job waits for every job of the closest earlier stage
		// that has any; earlier stages follow transitively.
		prev := -1
		for _, other := range order {
			if other.stage < job.stage && other.stage > prev {
				prev = other.stage
			}
		}
		for _, other := range order {
			if prev >= 0 && other.stage == prev {
				dr.need(job.id, other.id)
			}
		}
	}

	return dr, nil
}

// gitlabExtends merges the templates named by extends: under the job's own
// keys, one level deep for mappings.
func gitlabExtends(id string, n *yaml.Node, templates map[string]*yaml.Node, depth int) (*yaml.Node, error) {
	parents := strs(lookup(n, "extends"))
	if len(parents) == 0 {
		return n, nil
	}
	if depth >= maxMergeDepth {
		return nil, errors.NewInvalidPipelineError(gitlabName, fmt.Sprintf("extends chain of %s is too deep", id))
	}

	merged := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	set := func(key string, value *yaml.Node) {
		for i := 0; i+1 < len(merged.Content); i += 2 {
			if merged.Content[i].Value == key {
				merged.Content[i+1] = mergeMaps(merged.Content[i+1], value)
				return
			}
		}
		merged.Content = append(merged.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
	}

	for _, parent := range parents {
		tmpl, ok := templates[parent]
		if !ok {
			return nil, errors.NewInvalidPipelineError(gitlabName, fmt.Sprintf("job %s extends unknown %s", id, parent))
		}
		resolved, err := gitlabExtends(parent, tmpl, templates, depth+1)
		if err != nil {
			return nil, err
		}
		for _, p := range pairs(resolved) {
			if p.key != "extends" {
				set(p.key, resolve(p.value))
			}
		}
	}
	for _, p := range pairs(n) {
		if p.key != "extends" {
			set(p.key, resolve(p.value))
		}
	}
	return merged, nil
}

// mergeMaps lets child keys override base keys when both are mappings;
// anything else is replaced outright.
func mergeMaps(base, child *yaml.Node) *yaml.Node {
	if !isMap(base) || !isMap(child) {
		return child
	}
	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	overridden := make(map[string]bool)
	for _, p := range pairs(child) {
		overridden[p.key] = true
	}
	for _, p := range pairs(base) {
		if !overridden[p.key] {
			out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.key}, p.value)
		}
	}
	for _, p := range pairs(child) {
		out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.key}, p.value)
	}
	return out
}

// inherited returns the job's own value for key, then default:, then the
// deprecated top-level global.
func inherited(key string, job, root, defaults *yaml.Node) *yaml.Node {
	if v := lookup(job, key); v != nil {
		return v
	}
	if v := lookup(defaults, key); v != nil {
		return v
	}
	return lookup(root, key)
}

func gitlabJob(id, stage string, n, root, defaults *yaml.Node) dag.JobNode {
	job := dag.JobNode{
		ID:        id,
		Stage:     stage,
		RunsOn:    strings.Join(strs(inherited("tags", n, root, defaults)), ", "),
		Image:     containerImage(inherited("image", n, root, defaults)),
		Condition: gitlabCondition(n),
		Artifacts: strs(lookup(lookup(n, "artifacts"), "paths")),
	}

	caches := inherited("cache", n, root, defaults)
	if isSeq(caches) {
		for _, c := range items(caches) {
			job.Caches = append(job.Caches, strs(lookup(c, "paths"))...)
		}
	} else {
		job.Caches = strs(lookup(caches, "paths"))
	}

	if trigger := lookup(n, "trigger"); trigger != nil {
		target := scalar(trigger)
		if target == "" {
			target = scalar(lookup(trigger, "project"))
		}
		if target == "" {
			target = scalar(lookup(trigger, "include"))
		}
		job.Steps = []dag.StepInfo{{Name: "trigger", Uses: "trigger:" + target}}
		return job
	}

	for _, section := range []string{"before_script", "script", "after_script"} {
		node := lookup(n, section)
		if node == nil && section != "script" {
			node = inherited(section, n, root, defaults)
		}
		for _, line := range strs(node) {
			job.Steps = append(job.Steps, dag.StepInfo{Name: section, Run: line})
		}
	}
	return job
}

type gitlabNeed struct {
	job      string
	optional bool
}

func gitlabNeeds(n *yaml.Node) []gitlabNeed {
	var out []gitlabNeed
	for _, item := range items(n) {
		if isMap(item) {
			// Cross-pipeline needs name a project and do not create local edges
			if has(item, "project") || has(item, "pipeline") {
				continue
			}
			out = append(out, gitlabNeed{
				job:      scalar(lookup(item, "job")),
				optional: scalar(lookup(item, "optional")) == "true",
			})
			continue
		}
		out = append(out, gitlabNeed{job: scalar(item)})
	}
	return out
}

// gitlabCondition renders when: and rules: into one expression
func gitlabCondition(n *yaml.Node) string {
	if when := scalar(lookup(n, "when")); when != "" && when != "on_success" {
		return "when: " + when
	}

	rules := items(lookup(n, "rules"))
	if len(rules) == 0 {
		return ""
	}
	var conds []string
	never := true
	for _, r := range rules {
		when := scalar(lookup(r, "when"))
		if when != "never" {
			never = false
		}
		if cond := scalar(lookup(r, "if")); cond != "" && when != "never" {
			conds = append(conds, cond)
		}
	}
	if never {
		return "when: never"
	}
	return strings.Join(conds, " || ")
}

// gitlabTriggers reads the pipeline sources named by workflow rules; a
// pipeline without workflow rules runs on push.
func gitlabTriggers(workflow *yaml.Node) []string {
	triggers := []string{"push"}
	for _, r := range items(lookup(workflow, "rules")) {
		for _, m := range pipelineSource.FindAllStringSubmatch(scalar(lookup(r, "if")), -1) {
			switch m[1] {
			case "merge_request_event":
				triggers = append(triggers, "pull_request")
			default:
				triggers = append(triggers, m[1])
			}
		}
	}
	return triggers
}
