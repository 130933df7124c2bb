package sizing

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pipescope/internal/errors"
)

// Rule scores one command-text feature. Pattern is a case-insensitive regular expression
// matched against each step's run and uses text.
type Rule struct {
	Name    string  `yaml:"name" toml:"name" json:"name"`
	Pattern string  `yaml:"pattern" toml:"pattern" json:"pattern"`
	CPU     float64 `yaml:"cpu,omitempty" toml:"cpu" json:"cpu,omitempty"`
	Memory  float64 `yaml:"memory,omitempty" toml:"memory" json:"memory,omitempty"`
	IO      float64 `yaml:"io,omitempty" toml:"io" json:"io,omitempty"`
	Signal  string  `yaml:"signal" toml:"signal" json:"signal"`
}

// Thresholds are the minimum peak pressure for each class above Small
type Thresholds struct {
	Medium float64 `yaml:"medium" toml:"medium" json:"medium"`
	Large  float64 `yaml:"large" toml:"large" json:"large"`
	XLarge float64 `yaml:"xlarge" toml:"xlarge" json:"xlarge"`
}

// Rules is the tunable feature-to-score table
type Rules struct {
	Rules       []Rule     `yaml:"rules" toml:"rules" json:"rules"`
	Thresholds  Thresholds `yaml:"thresholds" toml:"thresholds" json:"thresholds"`
	LongJobSecs float64    `yaml:"long_job_secs" toml:"long_job_secs" json:"long_job_secs"`
	LongJobCPU  float64    `yaml:"long_job_cpu" toml:"long_job_cpu" json:"long_job_cpu"`
}

// DefaultRules returns the built-in table
func DefaultRules() Rules {
	return Rules{
		Rules: []Rule{
			{
				Name:    "compile",
				Pattern: `\b(go build|cargo build|gcc|g\+\+|clang|cmake|bazel build|mvn (package|install|verify)|gradlew? (build|assemble)|dotnet build|tsc\b|webpack|vite build|next build|xcodebuild)`,
				CPU:     4,
				Signal:  "compiles sources",
			},
			{
				Name:    "tests",
				Pattern: `\b(go test|pytest|jest|vitest|npm (run )?test|yarn test|pnpm test|cargo test|mvn test|gradlew? test|rspec|phpunit|dotnet test|tox)\b`,
				CPU:     3,
				Memory:  1,
				Signal:  "runs a test suite",
			},
			{
				Name:    "parallel-flags",
				Pattern: `(\s-race\b|--parallel|\s-j\s*\d+|-n auto|--max-workers|--workers)`,
				CPU:     3,
				Signal:  "uses parallel or race-enabled execution",
			},
			{
				Name:    "container-build",
				Pattern: `(docker (buildx )?build|kaniko|buildah|docker/build-push-action)`,
				CPU:     3,
				IO:      4,
				Signal:  "builds container images",
			},
			{
				Name:    "memory-heavy-toolchain",
				Pattern: `(\bmvn\b|\bgradlew?\b|\bsbt\b|-Xmx|max-old-space-size|\bwebpack\b|assembleRelease|\bspark-submit\b)`,
				Memory:  4,
				Signal:  "uses a memory-heavy toolchain (JVM, bundler)",
			},
			{
				Name:    "browser-e2e",
				Pattern: `\b(cypress|playwright|selenium|puppeteer)\b`,
				CPU:     2,
				Memory:  4,
				Signal:  "drives real browsers",
			},
			{
				Name:    "transfer",
				Pattern: `(docker (push|pull|save|load)|aws s3 (cp|sync)|gsutil|rsync|\btar\b|upload-artifact|download-artifact|git lfs)`,
				IO:      3,
				Signal:  "moves large artifacts or images",
			},
			{
				Name:    "dependency-download",
				Pattern: `(npm (ci|install)|yarn install|pnpm install|pip install|poetry install|bundle install|go mod download|composer install|cargo fetch)`,
				IO:      2,
				Signal:  "downloads dependencies",
			},
		},
		Thresholds:  Thresholds{Medium: 5, Large: 8, XLarge: 12},
		LongJobSecs: 900,
		LongJobCPU:  2,
	}
}

// Validate checks thresholds are ascending and every pattern compiles
func (r Rules) Validate() error {
	t := r.Thresholds
	if t.Medium <= 0 || t.Large <= t.Medium || t.XLarge <= t.Large {
		return fmt.Errorf("thresholds must satisfy 0 < medium < large < xlarge, got %.1f/%.1f/%.1f", t.Medium, t.Large, t.XLarge)
	}
	for i, rule := range r.Rules {
		if strings.TrimSpace(rule.Pattern) == "" {
			return fmt.Errorf("rule %d (%s) has an empty pattern", i, rule.Name)
		}
		if _, err := regexp.Compile("(?i)" + rule.Pattern); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
		}
	}
	return nil
}

// withDefaults fills sections a rules file left out
func (r Rules) withDefaults() Rules {
	def := DefaultRules()
	if len(r.Rules) == 0 {
		r.Rules = def.Rules
	}
	if r.Thresholds == (Thresholds{}) {
		r.Thresholds = def.Thresholds
	}
	if r.LongJobSecs == 0 {
		r.LongJobSecs = def.LongJobSecs
	}
	if r.LongJobCPU == 0 {
		r.LongJobCPU = def.LongJobCPU
	}
	return r
}

// ParseRules decodes a rules document. format is "yaml" or "toml".
func ParseRules(data []byte, format string) (Rules, error) {
	var r Rules
	switch strings.ToLower(format) {
	case "toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
			return Rules{}, err
		}
	case "yaml", "yml", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&r); err != nil && err != io.EOF {
			return Rules{}, err
		}
	default:
		return Rules{}, fmt.Errorf("unsupported rules format %q", format)
	}

	r = r.withDefaults()
	if err := r.Validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

// LoadRules reads a rules file; the extension selects TOML or YAML
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Rules{}, errors.NewFileNotFoundError(path)
		}
		return Rules{}, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read sizing rules", err)
	}

	format := strings.TrimPrefix(filepath.Ext(path), ".")
	r, err := ParseRules(data, format)
	if err != nil {
		return Rules{}, errors.Wrap(errors.ErrCodeConfigSizingRules, fmt.Sprintf("invalid sizing rules in %s", path), err).
			WithSuggestion("Rules need name, pattern and at least one of cpu, memory, io").
			WithSuggestion("Thresholds must be ascending: medium < large < xlarge")
	}
	return r, nil
}
