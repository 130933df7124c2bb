package parser

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/errors"
)

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// buildkiteEmoji strips :emoji: shortcodes from labels
var buildkiteEmoji = regexp.MustCompile(`:[a-z0-9_+-]+:`)

type buildkiteState struct {
	dr *draft
	// barrier holds the steps the next wait releases
	barrier []string
	// segment holds the steps since the last wait
	segment []string
	n       int
}

func parseBuildkite(path string, root *yaml.Node) (*draft, error) {
	steps := lookup(root, "steps")
	if !isSeq(steps) {
		return nil, errors.NewInvalidPipelineError("Buildkite", "pipeline has no steps list")
	}

	st := &buildkiteState{dr: newDraft("")}
	st.dr.triggers = []string{"push"}
	if err := st.walk(items(steps), ""); err != nil {
		return nil, err
	}
	return st.dr, nil
}

func (st *buildkiteState) walk(steps []*yaml.Node, group string) error {
	for _, s := range steps {
		if kind := scalar(s); kind != "" {
			if kind == "wait" || kind == "waiter" || kind == "block" {
				st.wait()
			}
			continue
		}
		if !isMap(s) {
			continue
		}

		switch {
		case has(s, "wait") || has(s, "waiter"):
			st.wait()
		case has(s, "block") || has(s, "input"):
			// Manual gates hold everything after them
			st.wait()
		case has(s, "group"):
			name := scalar(lookup(s, "group"))
			if err := st.walk(items(lookup(s, "steps")), name); err != nil {
				return err
			}
		default:
			if err := st.command(s, group); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *buildkiteState) wait() {
	if len(st.segment) > 0 {
		st.barrier = st.segment
		st.segment = nil
	}
}

func (st *buildkiteState) command(s *yaml.Node, group string) error {
	st.n++
	label := firstScalar(s, "label", "name")
	id := firstScalar(s, "key", "id", "identifier")
	if id == "" {
		id = slug(label)
	}
	if id == "" {
		id = fmt.Sprintf("step-%d", st.n)
	}
	if st.dr.hasJob(id) {
		id = fmt.Sprintf("%s-%d", id, st.n)
	}

	job := dag.JobNode{
		ID:        id,
		Name:      strings.TrimSpace(buildkiteEmoji.ReplaceAllString(label, "")),
		Stage:     group,
		Condition: scalar(lookup(s, "if")),
		RunsOn:    buildkiteQueue(lookup(s, "agents")),
		Artifacts: buildkiteArtifacts(lookup(s, "artifact_paths")),
	}

	if trigger := scalar(lookup(s, "trigger")); trigger != "" {
		job.Steps = append(job.Steps, dag.StepInfo{Name: "trigger", Uses: "trigger:" + trigger})
	}

	for _, plugin := range items(lookup(s, "plugins")) {
		var name string
		var cfg *yaml.Node
		if n := scalar(plugin); n != "" {
			name = n
		} else if ps := pairs(plugin); len(ps) == 1 {
			name, cfg = ps[0].key, resolve(ps[0].value)
		}
		if name == "" {
			continue
		}
		job.Steps = append(job.Steps, dag.StepInfo{Name: name, Uses: name, With: stringMap(cfg)})

		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "docker#") || strings.Contains(lower, "docker-compose#"):
			if job.Image == "" {
				job.Image = scalar(lookup(cfg, "image"))
			}
		case strings.Contains(lower, "cache#"):
			job.Caches = append(job.Caches, strs(lookup(cfg, "path"))...)
			job.Caches = append(job.Caches, strs(lookup(cfg, "paths"))...)
		}
	}

	commands := lookup(s, "commands")
	if commands == nil {
		commands = lookup(s, "command")
	}
	for _, line := range strs(commands) {
		for _, l := range lines(line) {
			job.Steps = append(job.Steps, dag.StepInfo{Run: l})
		}
	}

	if len(job.Steps) == 0 {
		return errors.NewInvalidPipelineError("Buildkite", fmt.Sprintf("step %s has no command, plugin or trigger", id))
	}

	st.dr.addJob(job)
	st.dr.need(id, st.barrier...)
	for _, dep := range items(lookup(s, "depends_on")) {
		if name := scalar(dep); name != "" {
			st.dr.need(id, name)
		} else {
			st.dr.need(id, scalar(lookup(dep, "step")))
		}
	}
	if single := scalar(lookup(s, "depends_on")); single != "" {
		st.dr.need(id, single)
	}
	st.segment = append(st.segment, id)
	return nil
}

func buildkiteQueue(agents *yaml.Node) string {
	if isMap(agents) {
		if q := scalar(lookup(agents, "queue")); q != "" {
			return q
		}
		return text(agents)
	}
	// Legacy list form: ["queue=large"]
	for _, a := range strs(agents) {
		if q, ok := strings.CutPrefix(a, "queue="); ok {
			return q
		}
	}
	return ""
}

func buildkiteArtifacts(n *yaml.Node) []string {
	var out []string
	for _, s := range strs(n) {
		for _, p := range strings.Split(s, ";") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func firstScalar(n *yaml.Node, names ...string) string {
	for _, name := range names {
		if v := scalar(lookup(n, name)); v != "" {
			return v
		}
	}
	return ""
}

func slug(label string) string {
	s := strings.ToLower(buildkiteEmoji.ReplaceAllString(label, ""))
	return strings.Trim(slugInvalid.ReplaceAllString(s, "-"), "-")
}
