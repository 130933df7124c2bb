package lint

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
)

var (
	workflowCommand = regexp.MustCompile(`::(set-output|save-state|set-env|add-path)\b`)
	shaRef          = regexp.MustCompile(`^[0-9a-f]{40}$`)
	majorRef        = regexp.MustCompile(`^v?(\d+)`)
)

// linter accumulates diagnostics for one file
type linter struct {
	provider domain.Provider
	diags    []Diagnostic
}

func (l *linter) add(d Diagnostic) {
	l.diags = append(l.diags, d)
}

// Run lints raw file contents. d is the parsed graph and may be nil when the
// file did not parse; graph-level rules are skipped then.
func Run(provider domain.Provider, raw []byte, d *dag.PipelineDag) *LintReport {
	l := &linter{provider: provider}
	source := ""
	if d != nil {
		source = d.SourceFile()
	}
	l.tabs(raw)

	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		l.add(Diagnostic{Code: CodeYAMLSyntax, Level: LevelError, Message: err.Error()})
		return newReport(source, string(provider), l.diags)
	}

	if doc := document(&root); doc != nil && doc.Kind == yaml.MappingNode {
		l.keys(doc)
		switch provider {
		case domain.ProviderGitHubActions:
			l.github(doc)
		case domain.ProviderCircleCI:
			l.circleOrbs(doc)
		case domain.ProviderBuildkite:
			l.buildkitePlugins(doc)
		}
	}

	if d != nil {
		for _, job := range d.Jobs() {
			if len(job.Steps) == 0 {
				l.add(Diagnostic{
					Code:    CodeNoSteps,
					Level:   LevelError,
					Job:     job.ID,
					Message: fmt.Sprintf("job %q has no steps", job.ID),
				})
			}
		}
	}

	return newReport(source, string(provider), l.diags)
}

// tabs flags tab characters in indentation, which YAML forbids
func (l *linter) tabs(raw []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		indent := text[:len(text)-len(strings.TrimLeft(text, " \t"))]
		if strings.Contains(indent, "\t") {
			l.add(Diagnostic{
				Code:       CodeTabIndent,
				Level:      LevelError,
				Line:       line,
				Message:    "tab character used for indentation",
				Suggestion: "indent with spaces",
			})
		}
	}
}

// keys checks root and job keys against the provider vocabulary
func (l *linter) keys(root *yaml.Node) {
	if top, ok := topLevelKeys[l.provider]; ok {
		for _, kv := range mapping(root) {
			if !top[kv.key.Value] {
				l.unknown(kv.key, "top-level key", top, "")
			}
		}
	}

	allowed := jobKeys[l.provider]
	if allowed == nil {
		return
	}
	for _, job := range l.jobs(root) {
		for _, kv := range mapping(job.value) {
			if !allowed[kv.key.Value] {
				l.unknown(kv.key, "key", allowed, job.key.Value)
			}
		}
	}

	if l.provider == domain.ProviderGitLabCI {
		// A root key one typo away from a global keyword is almost never a job
		for _, kv := range mapping(root) {
			name := kv.key.Value
			if gitlabGlobalKeys[name] || strings.HasPrefix(name, ".") {
				continue
			}
			if match, dist := closest(name, gitlabGlobalKeys); match != "" && dist <= 2 && dist > 0 && kv.value.Kind != yaml.MappingNode {
				l.add(Diagnostic{
					Code:       CodeUnknownKey,
					Level:      LevelWarning,
					Line:       kv.key.Line,
					Message:    fmt.Sprintf("unknown top-level key %q", name),
					Suggestion: fmt.Sprintf("did you mean %q?", match),
				})
			}
		}
	}
}

func (l *linter) unknown(key *yaml.Node, what string, allowed map[string]bool, job string) {
	d := Diagnostic{
		Code:    CodeUnknownKey,
		Level:   LevelWarning,
		Line:    key.Line,
		Job:     job,
		Message: fmt.Sprintf("unknown %s %q", what, key.Value),
	}
	if job != "" {
		d.Message = fmt.Sprintf("unknown %s %q in job %q", what, key.Value, job)
	}
	if match, dist := closest(key.Value, allowed); match != "" && dist <= 3 {
		d.Suggestion = fmt.Sprintf("did you mean %q?", match)
	}
	l.add(d)
}

// jobs returns the job mappings of a document
func (l *linter) jobs(root *yaml.Node) []keyValue {
	switch l.provider {
	case domain.ProviderGitHubActions, domain.ProviderCircleCI:
		var out []keyValue
		for _, kv := range mapping(lookup(root, "jobs")) {
			if kv.value.Kind == yaml.MappingNode {
				out = append(out, kv)
			}
		}
		return out
	case domain.ProviderGitLabCI:
		var out []keyValue
		for _, kv := range mapping(root) {
			if !gitlabGlobalKeys[kv.key.Value] && kv.value.Kind == yaml.MappingNode {
				out = append(out, kv)
			}
		}
		return out
	case domain.ProviderBuildkite:
		var out []keyValue
		var walk func(steps *yaml.Node)
		walk = func(steps *yaml.Node) {
			if steps == nil || steps.Kind != yaml.SequenceNode {
				return
			}
			for _, s := range steps.Content {
				s = deref(s)
				if s.Kind != yaml.MappingNode {
					continue
				}
				if nested := lookup(s, "group"); nested != nil {
					walk(lookup(s, "steps"))
					continue
				}
				label := lookup(s, "key")
				if label == nil {
					label = lookup(s, "label")
				}
				if label == nil {
					label = &yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprintf("step at line %d", s.Line)}
				}
				out = append(out, keyValue{key: label, value: s})
			}
		}
		walk(lookup(root, "steps"))
		return out
	}
	return nil
}

func (l *linter) github(root *yaml.Node) {
	for _, job := range l.jobs(root) {
		id := job.key.Value
		if uses := lookup(job.value, "uses"); uses != nil {
			l.pin(uses, id, "workflow")
			continue
		}
		if lookup(job.value, "timeout-minutes") == nil {
			l.add(Diagnostic{
				Code:       CodeNoTimeout,
				Level:      LevelInfo,
				Line:       job.key.Line,
				Job:        id,
				Message:    fmt.Sprintf("job %q has no timeout-minutes; a hung job runs for 6 hours", id),
				Suggestion: "set timeout-minutes",
			})
		}

		steps := lookup(job.value, "steps")
		if steps == nil || steps.Kind != yaml.SequenceNode {
			continue
		}
		for _, s := range steps.Content {
			s = deref(s)
			for _, kv := range mapping(s) {
				if !githubStepKeys[kv.key.Value] {
					l.unknown(kv.key, "step key", githubStepKeys, id)
				}
			}
			if uses := lookup(s, "uses"); uses != nil {
				l.pin(uses, id, "action")
				l.deprecated(uses, id)
			}
			if run := lookup(s, "run"); run != nil {
				if m := workflowCommand.FindStringSubmatch(run.Value); m != nil {
					l.add(Diagnostic{
						Code:       CodeDeprecatedCommand,
						Level:      LevelWarning,
						Line:       run.Line,
						Job:        id,
						Message:    fmt.Sprintf("::%s is deprecated and disabled on current runners", m[1]),
						Suggestion: replacementFor(m[1]),
					})
				}
			}
		}
	}
}

func replacementFor(cmd string) string {
	switch cmd {
	case "set-output":
		return `write to "$GITHUB_OUTPUT" instead`
	case "save-state":
		return `write to "$GITHUB_STATE" instead`
	case "set-env":
		return `write to "$GITHUB_ENV" instead`
	default:
		return `write to "$GITHUB_PATH" instead`
	}
}

// pin checks that a uses: reference names an immutable version
func (l *linter) pin(uses *yaml.Node, job, what string) {
	ref := uses.Value
	if strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "docker://") {
		return
	}
	name, version, found := strings.Cut(ref, "@")
	switch {
	case !found || version == "":
		l.add(Diagnostic{
			Code:       CodeUnpinned,
			Level:      LevelError,
			Line:       uses.Line,
			Job:        job,
			Message:    fmt.Sprintf("%s %q has no version", what, name),
			Suggestion: "pin to a release tag or a full commit SHA",
		})
	case branchRefs[strings.ToLower(version)]:
		l.add(Diagnostic{
			Code:       CodeBranchPinned,
			Level:      LevelWarning,
			Line:       uses.Line,
			Job:        job,
			Message:    fmt.Sprintf("%s %q follows the moving ref %q", what, name, version),
			Suggestion: "pin to a release tag or a full commit SHA",
		})
	}
}

func (l *linter) deprecated(uses *yaml.Node, job string) {
	name, version, found := strings.Cut(uses.Value, "@")
	if !found || shaRef.MatchString(version) {
		return
	}
	minimum, ok := deprecatedMajors[strings.ToLower(name)]
	if !ok {
		return
	}
	m := majorRef.FindStringSubmatch(version)
	if m == nil {
		return
	}
	major, err := strconv.Atoi(m[1])
	if err != nil || major >= minimum {
		return
	}
	l.add(Diagnostic{
		Code:       CodeDeprecatedAction,
		Level:      LevelWarning,
		Line:       uses.Line,
		Job:        job,
		Message:    fmt.Sprintf("%s@%s runs on a deprecated major version", name, version),
		Suggestion: fmt.Sprintf("upgrade to %s@v%d or later", name, minimum),
	})
}

// circleOrbs checks orb references such as circleci/node@5.1
func (l *linter) circleOrbs(root *yaml.Node) {
	for _, kv := range mapping(lookup(root, "orbs")) {
		if kv.value.Kind == yaml.ScalarNode {
			l.pin(kv.value, "", "orb")
		}
	}
}

// buildkitePlugins checks plugin references such as docker#v5.9.0
func (l *linter) buildkitePlugins(root *yaml.Node) {
	for _, job := range l.jobs(root) {
		plugins := lookup(job.value, "plugins")
		if plugins == nil || plugins.Kind != yaml.SequenceNode {
			continue
		}
		for _, p := range plugins.Content {
			p = deref(p)
			ref := p
			if p.Kind == yaml.MappingNode && len(p.Content) >= 2 {
				ref = p.Content[0]
			}
			if ref.Kind != yaml.ScalarNode {
				continue
			}
			pinned := *ref
			pinned.Value = strings.Replace(ref.Value, "#", "@", 1)
			l.pin(&pinned, job.key.Value, "plugin")
		}
	}
}

type keyValue struct {
	key   *yaml.Node
	value *yaml.Node
}

func document(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return nil
		}
		return deref(n.Content[0])
	}
	return deref(n)
}

func deref(n *yaml.Node) *yaml.Node {
	for i := 0; n != nil && n.Kind == yaml.AliasNode && i < 16; i++ {
		n = n.Alias
	}
	return n
}

// mapping returns the entries of a mapping node, skipping merge keys
func mapping(n *yaml.Node) []keyValue {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	out := make([]keyValue, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Tag == "!!merge" {
			continue
		}
		out = append(out, keyValue{key: n.Content[i], value: deref(n.Content[i+1])})
	}
	return out
}

func lookup(n *yaml.Node, key string) *yaml.Node {
	for _, kv := range mapping(n) {
		if kv.key.Value == key {
			return kv.value
		}
	}
	return nil
}

// closest returns the candidate with the smallest edit distance to s.
// Ties go to the alphabetically first candidate.
func closest(s string, candidates map[string]bool) (string, int) {
	names := make([]string, 0, len(candidates))
	for c := range candidates {
		names = append(names, c)
	}
	sort.Strings(names)

	best, bestDist := "", -1
	for _, c := range names {
		if d := editDistance(strings.ToLower(s), c); bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
