package loader

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/animalet/configobj/pkg/node"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format is a named parser turning raw document bytes into a configuration tree.
type Format struct {
	Name  string
	Parse func(data []byte) (*node.Node, error)
}

var (
	// JSON parses RFC 8259 documents. Numbers keep their literal text.
	JSON = Format{Name: "json", Parse: parseJSON}
	// YAML parses YAML documents; only the first document of a stream is read.
	YAML = Format{Name: "yaml", Parse: parseYAML}
	// TOML parses TOML documents. Not registered by default.
	TOML = Format{Name: "toml", Parse: parseTOML}
	// JSONC parses JSON with comments and trailing commas. Not registered by default.
	JSONC = Format{Name: "jsonc", Parse: parseJSONC}
)

func parseJSON(data []byte) (*node.Node, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var v any
	if err := decoder.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		return nil, err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected content after top-level value")
	}
	return node.FromValue(v)
}

func parseYAML(data []byte) (*node.Node, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return node.FromValue(v)
}

func parseTOML(data []byte) (*node.Node, error) {
	var v map[string]any
	if err := toml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return node.FromValue(v)
}

func parseJSONC(data []byte) (*node.Node, error) {
	return parseJSON(jsonc.ToJSON(data))
}
