// Package config holds the flag groups of the relay and the optional config
// file overlay. Precedence is command line, then environment, then file, then
// the flag default.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// File holds the path of the optional config file
type File struct {
	Path string
}

// Flags returns the --config flag
func (c *File) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "YAML or TOML file with flag values (keys are flag names)",
			Destination: &c.Path,
			Sources:     cli.EnvVars("RELAY_CONFIG"),
		},
	}
}

// Before is a cli.BeforeFunc applying the file when one was given
func (c *File) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if c.Path == "" {
		return ctx, nil
	}
	return ctx, ApplyFile(cmd, c.Path)
}

// LoadFile reads a YAML (.yaml, .yml) or TOML (.toml) file into flag name to
// value strings. Lists become comma separated values.
func LoadFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}

	doc := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, goerr.Wrap(err, "failed to parse YAML config", goerr.V("path", path))
		}
	case ".toml":
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return nil, goerr.Wrap(err, "failed to parse TOML config", goerr.V("path", path))
		}
	default:
		return nil, goerr.New("unsupported config file type", goerr.V("path", path))
	}

	values := make(map[string]string, len(doc))
	for key, v := range doc {
		s, err := flatten(v)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid config value", goerr.V("key", key))
		}
		values[key] = s
	}
	return values, nil
}

func flatten(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			s, err := flatten(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	case map[string]any:
		return "", goerr.New("nested tables are not supported")
	default:
		return fmt.Sprint(x), nil
	}
}

// ApplyFile sets every flag named in the file that was not already set on the
// command line or through the environment. Unknown keys are an error.
func ApplyFile(cmd *cli.Command, path string) error {
	values, err := LoadFile(path)
	if err != nil {
		return err
	}

	known := map[string]bool{}
	for _, f := range cmd.Flags {
		for _, name := range f.Names() {
			known[name] = true
		}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !known[key] {
			return goerr.New("unknown key in config file", goerr.V("key", key), goerr.V("path", path))
		}
		if key == "config" || cmd.IsSet(key) {
			continue
		}
		if err := cmd.Set(key, values[key]); err != nil {
			return goerr.Wrap(err, "failed to apply config value", goerr.V("key", key))
		}
	}
	return nil
}
