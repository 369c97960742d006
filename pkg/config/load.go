package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config files hold nested tables; the in-memory map is flat with "/"
// separating the levels, so [memory_cache] unused_size_limit becomes
// "memory_cache/unused_size_limit".

// LoadTOML parses a TOML document into a Config.
func LoadTOML(data []byte) (Config, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, errorf("invalid TOML: %v", err)
	}
	return fromNested(raw)
}

// LoadJSON parses a JSON document into a Config.
func LoadJSON(data []byte) (Config, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, errorf("invalid JSON: %v", err)
	}
	return fromNested(raw)
}

// LoadYAML parses a YAML document into a Config.
func LoadYAML(data []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, errorf("invalid YAML: %v", err)
	}
	return fromNested(raw)
}

// LoadFile reads a config file, choosing the parser by extension.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errorf("cannot read %s: %v", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return LoadTOML(data)
	case ".json":
		return LoadJSON(data)
	case ".yaml", ".yml":
		return LoadYAML(data)
	default:
		return Config{}, errorf("unrecognized config file extension on %s", path)
	}
}

func fromNested(raw map[string]any) (Config, error) {
	flat := make(map[string]any)
	if err := flatten("", raw, flat); err != nil {
		return Config{}, err
	}
	return New(flat)
}

func flatten(prefix string, raw map[string]any, out map[string]any) error {
	for k, v := range raw {
		key := k
		if prefix != "" {
			key = prefix + "/" + k
		}
		switch t := v.(type) {
		case map[string]any:
			if err := flatten(key, t, out); err != nil {
				return err
			}
		case map[any]any:
			// yaml.v3 only produces this for non-string keys
			return errorf("key %q: non-string subkeys", key)
		default:
			out[key] = v
		}
	}
	return nil
}

// ToJSON renders the flat configuration map as a nested JSON document,
// the inverse of LoadJSON.
func (c Config) ToJSON() ([]byte, error) {
	nested := make(map[string]any)
	for k, v := range c.m {
		parts := strings.Split(k, "/")
		cur := nested
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				if _, exists := cur[p]; exists {
					return nil, errorf("key %q conflicts with a value at %q", k, p)
				}
				next = make(map[string]any)
				cur[p] = next
			}
			cur = next
		}
		leaf := parts[len(parts)-1]
		if _, exists := cur[leaf]; exists {
			return nil, fmt.Errorf("duplicate key %q", k)
		}
		cur[leaf] = v
	}
	return json.Marshal(nested)
}
