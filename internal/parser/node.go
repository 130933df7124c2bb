package parser

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxMergeDepth bounds alias and merge-key resolution on hostile input
const maxMergeDepth = 16

type pair struct {
	key   string
	value *yaml.Node
}

// resolve follows aliases and unwraps documents
func resolve(n *yaml.Node) *yaml.Node {
	for i := 0; n != nil && i < maxMergeDepth; i++ {
		switch n.Kind {
		case yaml.AliasNode:
			n = n.Alias
		case yaml.DocumentNode:
			if len(n.Content) == 0 {
				return nil
			}
			n = n.Content[0]
		default:
			return n
		}
	}
	return n
}

func isMap(n *yaml.Node) bool {
	n = resolve(n)
	return n != nil && n.Kind == yaml.MappingNode
}

func isSeq(n *yaml.Node) bool {
	n = resolve(n)
	return n != nil && n.Kind == yaml.SequenceNode
}

// pairs returns the entries of a mapping in document order. Merge keys (<<)
// are expanded in place; keys written explicitly win over merged ones.
func pairs(n *yaml.Node) []pair {
	return pairsDepth(n, 0)
}

func pairsDepth(n *yaml.Node, depth int) []pair {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode || depth > maxMergeDepth {
		return nil
	}

	var merged, explicit []pair
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Value == "<<" && k.Tag != "!!str" {
			src := resolve(v)
			if src != nil && src.Kind == yaml.SequenceNode {
				for _, item := range src.Content {
					merged = append(merged, pairsDepth(item, depth+1)...)
				}
			} else {
				merged = append(merged, pairsDepth(v, depth+1)...)
			}
			continue
		}
		explicit = append(explicit, pair{key: k.Value, value: v})
	}
	if len(merged) == 0 {
		return explicit
	}

	seen := make(map[string]bool, len(explicit))
	for _, p := range explicit {
		seen[p.key] = true
	}
	out := make([]pair, 0, len(merged)+len(explicit))
	for _, p := range merged {
		if !seen[p.key] {
			seen[p.key] = true
			out = append(out, p)
		}
	}
	return append(out, explicit...)
}

// lookup returns the value for key in a mapping, or nil
func lookup(n *yaml.Node, key string) *yaml.Node {
	for _, p := range pairs(n) {
		if p.key == key {
			return resolve(p.value)
		}
	}
	return nil
}

func has(n *yaml.Node, key string) bool {
	for _, p := range pairs(n) {
		if p.key == key {
			return true
		}
	}
	return false
}

func keys(n *yaml.Node) []string {
	ps := pairs(n)
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.key)
	}
	return out
}

// scalar returns the text of a scalar node, or ""
func scalar(n *yaml.Node) string {
	n = resolve(n)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return ""
	}
	return n.Value
}

// items returns the elements of a sequence
func items(n *yaml.Node) []*yaml.Node {
	n = resolve(n)
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]*yaml.Node, 0, len(n.Content))
	for _, item := range n.Content {
		out = append(out, resolve(item))
	}
	return out
}

// strs reads a scalar or a sequence of scalars. Nested sequences are
// flattened, which is how GitLab treats !reference and anchored script lists.
func strs(n *yaml.Node) []string {
	n = resolve(n)
	if n == nil {
		return nil
	}
	switch n.Kind {
	case yaml.ScalarNode:
		if v := scalar(n); v != "" {
			return []string{v}
		}
	case yaml.SequenceNode:
		var out []string
		for _, item := range items(n) {
			out = append(out, strs(item)...)
		}
		return out
	}
	return nil
}

// stringMap reads the scalar entries of a mapping; nested values are rendered
// back to inline YAML.
func stringMap(n *yaml.Node) map[string]string {
	ps := pairs(n)
	if len(ps) == 0 {
		return nil
	}
	out := make(map[string]string, len(ps))
	for _, p := range ps {
		v := resolve(p.value)
		if v == nil {
			continue
		}
		if v.Kind == yaml.ScalarNode {
			out[p.key] = scalar(v)
			continue
		}
		raw, err := yaml.Marshal(v)
		if err == nil {
			out[p.key] = strings.TrimSpace(string(raw))
		}
	}
	return out
}

// text renders any node as a single string: scalars verbatim, sequences
// joined with ", ", mappings as sorted key=value pairs.
func text(n *yaml.Node) string {
	n = resolve(n)
	if n == nil {
		return ""
	}
	switch n.Kind {
	case yaml.ScalarNode:
		return scalar(n)
	case yaml.SequenceNode:
		return strings.Join(strs(n), ", ")
	case yaml.MappingNode:
		m := stringMap(n)
		ks := make([]string, 0, len(m))
		for k := range m {
			ks = append(ks, k)
		}
		sort.Strings(ks)
		parts := make([]string, 0, len(ks))
		for _, k := range ks {
			parts = append(parts, k+"="+m[k])
		}
		return strings.Join(parts, ", ")
	}
	return ""
}
