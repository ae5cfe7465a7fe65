package node

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FromValue builds a tree from the generic values produced by the JSON, YAML and TOML
// decoders. Maps with non-string keys have their keys formatted with fmt.
func FromValue(v any) (*Node, error) {
	switch val := v.(type) {
	case nil:
		return null, nil
	case *Node:
		return orNull(val), nil
	case bool:
		return NewBool(val), nil
	case string:
		return NewString(val), nil
	case json.Number:
		return NewNumber(val), nil
	case int:
		return NewNumber(json.Number(strconv.FormatInt(int64(val), 10))), nil
	case int8:
		return NewNumber(json.Number(strconv.FormatInt(int64(val), 10))), nil
	case int16:
		return NewNumber(json.Number(strconv.FormatInt(int64(val), 10))), nil
	case int32:
		return NewNumber(json.Number(strconv.FormatInt(int64(val), 10))), nil
	case int64:
		return NewNumber(json.Number(strconv.FormatInt(val, 10))), nil
	case uint:
		return NewNumber(json.Number(strconv.FormatUint(uint64(val), 10))), nil
	case uint8:
		return NewNumber(json.Number(strconv.FormatUint(uint64(val), 10))), nil
	case uint16:
		return NewNumber(json.Number(strconv.FormatUint(uint64(val), 10))), nil
	case uint32:
		return NewNumber(json.Number(strconv.FormatUint(uint64(val), 10))), nil
	case uint64:
		return NewNumber(json.Number(strconv.FormatUint(val, 10))), nil
	case float32:
		return NewNumber(json.Number(formatFloat(float64(val), 32))), nil
	case float64:
		return NewNumber(json.Number(formatFloat(val, 64))), nil
	case time.Time:
		return NewString(val.Format(time.RFC3339Nano)), nil
	case []any:
		items := make([]*Node, len(val))
		for i, item := range val {
			n, err := FromValue(item)
			if err != nil {
				return nil, errors.Wrapf(err, "item %d", i)
			}
			items[i] = n
		}
		return &Node{kind: Sequence, items: items}, nil
	case map[string]any:
		pairs := make(map[string]*Node, len(val))
		for k, item := range val {
			n, err := FromValue(item)
			if err != nil {
				return nil, errors.Wrapf(err, "key %q", k)
			}
			pairs[k] = n
		}
		return &Node{kind: Mapping, pairs: pairs}, nil
	case map[any]any:
		pairs := make(map[string]*Node, len(val))
		for k, item := range val {
			key := fmt.Sprint(k)
			n, err := FromValue(item)
			if err != nil {
				return nil, errors.Wrapf(err, "key %q", key)
			}
			pairs[key] = n
		}
		return &Node{kind: Mapping, pairs: pairs}, nil
	case fmt.Stringer:
		// go-toml local dates and times
		return NewString(val.String()), nil
	default:
		return nil, errors.Errorf("unsupported value of type %T", v)
	}
}

// formatFloat renders a float in plain decimal notation for ordinary magnitudes and in
// exponent notation for very large or very small ones.
func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	}
	abs := math.Abs(f)
	if abs == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(f, 'f', -1, bitSize)
	}
	return strconv.FormatFloat(f, 'g', -1, bitSize)
}

// MarshalJSON encodes the tree as JSON with mapping keys sorted.
// Numbers that JSON cannot represent (infinities, NaN) are encoded as strings.
func (n *Node) MarshalJSON() ([]byte, error) {
	switch n.Kind() {
	case Null:
		return []byte("null"), nil
	case Boolean:
		return json.Marshal(n.truth)
	case Number:
		if !json.Valid([]byte(n.text)) {
			return EncodeJSON(n.text, "")
		}
		return []byte(n.text), nil
	case String:
		return EncodeJSON(n.text, "")
	case Sequence:
		return EncodeJSON(n.items, "")
	default:
		return EncodeJSON(n.pairs, "")
	}
}

// EncodeJSON encodes v without escaping &, < and >, indenting nested values by indent
// when it is not empty. Unlike json.Encoder, the result has no trailing newline.
func EncodeJSON(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// MarshalYAML encodes the tree as a yaml.Node so numbers keep their exact text and
// mapping keys come out sorted.
func (n *Node) MarshalYAML() (any, error) {
	return n.yamlNode(), nil
}

func (n *Node) yamlNode() *yaml.Node {
	switch n.Kind() {
	case Null:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case Boolean:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: n.Render()}
	case Number:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: numberTag(n.text), Value: yamlNumber(n.text)}
	case String:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.text}
	case Sequence:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range n.items {
			out.Content = append(out.Content, item.yamlNode())
		}
		return out
	default:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		keys := make([]string, 0, len(n.pairs))
		for k := range n.pairs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out.Content = append(out.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				n.pairs[k].yamlNode())
		}
		return out
	}
}

func numberTag(text string) string {
	if strings.ContainsAny(text, ".eEIN") {
		return "!!float"
	}
	return "!!int"
}

func yamlNumber(text string) string {
	switch text {
	case "+Inf":
		return ".inf"
	case "-Inf":
		return "-.inf"
	case "NaN":
		return ".nan"
	}
	return text
}
