package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// YAMLResolver loads flag values from a YAML config file. Nested mappings
// flatten with dashes, so `amqp: {url: ...}` resolves --amqp-url.
func YAMLResolver(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil {
		if errors.Is(err, io.EOF) {
			values = map[string]any{}
		} else {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	flat := map[string]any{}
	flattenYAML("", values, flat)

	var f kong.ResolverFunc = func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		v, ok := flat[flag.Name]
		if !ok {
			return nil, nil
		}
		return v, nil
	}
	return f, nil
}

func flattenYAML(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		name := k
		if prefix != "" {
			name = prefix + "-" + k
		}
		if m, ok := v.(map[string]any); ok {
			flattenYAML(name, m, out)
			continue
		}
		out[name] = v
	}
}
