package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Formats lists the formats NewFormatter accepts
var Formats = []string{"text", "json", "yaml"}

// Formatter defines the interface for output formatters.
type Formatter interface {
	// Format writes the given data to the output writer
	Format(data any) error
}

// View is a value with a human-readable rendering. Structured formatters
// encode its Data instead of the view itself.
type View interface {
	Render(s Styles) string
	Data() any
}

// FormatterOptions contains configuration for formatters
type FormatterOptions struct {
	// Writer is where output is written (defaults to os.Stdout)
	Writer io.Writer
	// NoColor disables styling for the text formatter
	NoColor bool
	// Compact enables compact output (no indentation for JSON/YAML)
	Compact bool
}

// NewFormatter creates a formatter based on the format string
func NewFormatter(format string, opts *FormatterOptions) (Formatter, error) {
	if opts == nil {
		opts = &FormatterOptions{Writer: os.Stdout}
	}
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	switch format {
	case "json":
		return &JSONFormatter{opts: opts}, nil
	case "yaml":
		return &YAMLFormatter{opts: opts}, nil
	case "text", "":
		return &TextFormatter{opts: opts, styles: NewStyles(opts.NoColor)}, nil
	default:
		return nil, fmt.Errorf("unknown format: %s (supported: text, json, yaml)", format)
	}
}

func unwrap(data any) any {
	if v, ok := data.(View); ok {
		return v.Data()
	}
	return data
}

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	opts *FormatterOptions
}

// Format writes data as JSON
func (f *JSONFormatter) Format(data any) error {
	encoder := json.NewEncoder(f.opts.Writer)
	if !f.opts.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(unwrap(data))
}

// YAMLFormatter formats output as YAML. Values go through their JSON form
// first so keys match the JSON output and keep declaration order.
type YAMLFormatter struct {
	opts *FormatterOptions
}

// Format writes data as YAML
func (f *YAMLFormatter) Format(data any) error {
	node, err := yamlNode(unwrap(data))
	if err != nil {
		return err
	}
	encoder := yaml.NewEncoder(f.opts.Writer)
	if !f.opts.Compact {
		encoder.SetIndent(2)
	}
	defer encoder.Close()
	return encoder.Encode(node)
}

func yamlNode(v any) (*yaml.Node, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("convert to yaml: %w", err)
	}
	blockStyle(&doc)
	return &doc, nil
}

// blockStyle drops the flow and quoting styles inherited from JSON
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// TextFormatter formats output as human-readable text
type TextFormatter struct {
	opts   *FormatterOptions
	styles Styles
}

// Format writes data as formatted text. Data must be a View, a string or a
// fmt.Stringer.
func (f *TextFormatter) Format(data any) error {
	switch v := data.(type) {
	case View:
		_, err := fmt.Fprint(f.opts.Writer, v.Render(f.styles))
		return err
	case string:
		_, err := fmt.Fprintln(f.opts.Writer, v)
		return err
	case fmt.Stringer:
		_, err := fmt.Fprintln(f.opts.Writer, v.String())
		return err
	default:
		return fmt.Errorf("text formatter cannot render %T", data)
	}
}

var _ Formatter = (*JSONFormatter)(nil)
var _ Formatter = (*YAMLFormatter)(nil)
var _ Formatter = (*TextFormatter)(nil)
