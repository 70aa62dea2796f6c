package wire

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// relaxJSON rewrites a flow-style object that uses single-quoted strings,
// e.g. {'id':'x','args':['42']}, into strict JSON. Keys must be quoted and
// scalars must be quoted strings, numbers, true, false or null, so only
// JSON-shaped input passes.
func relaxJSON(body []byte) (json.RawMessage, bool) {
	if !bytes.ContainsRune(body, '\'') {
		return nil, false
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(body, &doc); err != nil || len(doc.Content) != 1 {
		return nil, false
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode || root.Style&yaml.FlowStyle == 0 {
		return nil, false
	}
	v, ok := flowValue(root)
	if !ok {
		return nil, false
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return out, true
}

func quoted(n *yaml.Node) bool {
	return n.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle) != 0
}

func flowValue(n *yaml.Node) (any, bool) {
	switch n.Kind {
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode || !quoted(k) {
				return nil, false
			}
			v, ok := flowValue(n.Content[i+1])
			if !ok {
				return nil, false
			}
			m[k.Value] = v
		}
		return m, true
	case yaml.SequenceNode:
		s := make([]any, len(n.Content))
		for i, c := range n.Content {
			v, ok := flowValue(c)
			if !ok {
				return nil, false
			}
			s[i] = v
		}
		return s, true
	case yaml.ScalarNode:
		if quoted(n) {
			return n.Value, true
		}
		switch {
		case n.Value == "null":
			return nil, true
		case n.Value == "true" || n.Value == "false":
			return n.Value == "true", true
		case n.ShortTag() == "!!int" || n.ShortTag() == "!!float":
			// Marshal rejects anything that is not a JSON number.
			return json.Number(n.Value), true
		}
	}
	return nil, false
}
