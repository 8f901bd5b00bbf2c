// Package templates loads scene templates and command presets. Built-in
// templates ship embedded; files in the workspace templates directory
// override same-named built-ins and add new ones. A template expands to a
// command list that the gateway submits as a batch.
package templates

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

const presetsFile = "presets.yaml"

// ErrNotFound reports a template name with no embedded or workspace match.
var ErrNotFound = errors.New("template not found")

// Condition mirrors the batch entry condition in YAML form.
type Condition struct {
	DependsOn []int  `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Mode      string `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// Step is one command of a template. Params may carry ${name} placeholders
// that Expand substitutes.
type Step struct {
	Command   string                 `yaml:"command" json:"command"`
	Params    map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
	Condition *Condition             `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// Template is a named, parameterized command list.
type Template struct {
	Name        string                 `yaml:"name" json:"name"`
	Description string                 `yaml:"description,omitempty" json:"description"`
	Category    string                 `yaml:"category,omitempty" json:"category,omitempty"`
	Tags        []string               `yaml:"tags,omitempty" json:"tags,omitempty"`
	Params      map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
	Commands    []Step                 `yaml:"commands" json:"commands"`
}

// Preset is a canned parameter bundle for a single command.
type Preset struct {
	Command     string                 `yaml:"command" json:"command"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Params      map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
}

// Store reads templates and presets from the embedded defaults and an
// optional workspace directory. Reads hit the filesystem every time so new
// files appear without a restart.
type Store struct {
	dir string
}

// NewStore returns a store overlaying dir onto the embedded defaults. An
// empty dir serves the defaults alone.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// List returns every available template sorted by name. A workspace file
// sharing a built-in's name replaces it.
func (s *Store) List() ([]Template, error) {
	byName := map[string]Template{}

	entries, err := defaultsFS.ReadDir("defaults")
	if err != nil {
		return nil, fmt.Errorf("read embedded templates: %w", err)
	}
	for _, entry := range entries {
		if entry.Name() == presetsFile {
			continue
		}
		data, err := defaultsFS.ReadFile(path.Join("defaults", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read embedded template %s: %w", entry.Name(), err)
		}
		tpl, err := parseTemplate(entry.Name(), data)
		if err != nil {
			return nil, err
		}
		byName[tpl.Name] = *tpl
	}

	if s.dir != "" {
		if err := s.overlayDir(byName); err != nil {
			return nil, err
		}
	}

	out := make([]Template, 0, len(byName))
	for _, tpl := range byName {
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) overlayDir(byName map[string]Template) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read templates dir %s: %w", s.dir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == presetsFile || !isYAML(name) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return fmt.Errorf("read template %s: %w", name, err)
		}
		tpl, err := parseTemplate(name, data)
		if err != nil {
			return err
		}
		byName[tpl.Name] = *tpl
	}
	return nil
}

// Get returns one template by name.
func (s *Store) Get(name string) (*Template, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == name {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Presets returns the preset catalog: embedded bundles merged with a
// workspace presets.yaml, workspace entries winning on name collision.
func (s *Store) Presets() (map[string]Preset, error) {
	out := map[string]Preset{}

	data, err := defaultsFS.ReadFile(path.Join("defaults", presetsFile))
	if err != nil {
		return nil, fmt.Errorf("read embedded presets: %w", err)
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse embedded presets: %w", err)
	}

	if s.dir != "" {
		data, err := os.ReadFile(filepath.Join(s.dir, presetsFile))
		if err == nil {
			overrides := map[string]Preset{}
			if err := yaml.Unmarshal(data, &overrides); err != nil {
				return nil, fmt.Errorf("parse %s: %w", presetsFile, err)
			}
			for name, preset := range overrides {
				out[name] = preset
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", presetsFile, err)
		}
	}
	return out, nil
}

func parseTemplate(filename string, data []byte) (*Template, error) {
	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", filename, err)
	}
	if tpl.Name == "" {
		tpl.Name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	if len(tpl.Commands) == 0 {
		return nil, fmt.Errorf("template %s declares no commands", tpl.Name)
	}
	for i, step := range tpl.Commands {
		if step.Command == "" {
			return nil, fmt.Errorf("template %s: command %d has no name", tpl.Name, i)
		}
	}
	return &tpl, nil
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Expand materializes the template's command list. Caller params overlay
// the template's declared defaults; every ${name} placeholder is then
// substituted. A placeholder whose value is the whole string keeps the
// value's type; embedded placeholders interpolate as text.
func (t *Template) Expand(params map[string]interface{}) ([]Step, error) {
	values := map[string]interface{}{}
	for k, v := range t.Params {
		values[k] = v
	}
	for k, v := range params {
		values[k] = v
	}

	out := make([]Step, len(t.Commands))
	for i, step := range t.Commands {
		expanded, err := substituteMap(step.Params, values)
		if err != nil {
			return nil, fmt.Errorf("template %s, command %d (%s): %w", t.Name, i, step.Command, err)
		}
		out[i] = Step{Command: step.Command, Params: expanded}
		if step.Condition != nil {
			cond := *step.Condition
			out[i].Condition = &cond
		}
	}
	return out, nil
}

func substituteMap(in map[string]interface{}, values map[string]interface{}) (map[string]interface{}, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		sub, err := substitute(v, values)
		if err != nil {
			return nil, err
		}
		out[k] = sub
	}
	return out, nil
}

func substitute(v interface{}, values map[string]interface{}) (interface{}, error) {
	switch x := v.(type) {
	case string:
		if m := placeholderPattern.FindStringSubmatch(x); m != nil && m[0] == x {
			val, ok := values[m[1]]
			if !ok {
				return nil, fmt.Errorf("no value for ${%s}", m[1])
			}
			return val, nil
		}
		var missing string
		expanded := placeholderPattern.ReplaceAllStringFunc(x, func(ph string) string {
			name := placeholderPattern.FindStringSubmatch(ph)[1]
			val, ok := values[name]
			if !ok {
				missing = name
				return ph
			}
			return fmt.Sprintf("%v", val)
		})
		if missing != "" {
			return nil, fmt.Errorf("no value for ${%s}", missing)
		}
		return expanded, nil

	case map[string]interface{}:
		return substituteMap(x, values)

	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			sub, err := substitute(e, values)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil

	default:
		return v, nil
	}
}
