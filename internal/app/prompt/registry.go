// Package prompt holds the prompt templates for every agent kind and a pure
// render function over them. Templates are YAML files embedded at build time;
// each declares the exact set of variables it accepts, and rendering with a
// missing or undeclared variable is an error rather than a runtime string
// artifact.
package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

var placeholderRe = regexp.MustCompile(`\{\{([a-z_]+)\}\}`)

// Template is one named prompt with its declared input variables.
type Template struct {
	Name           string   `yaml:"-"`
	Description    string   `yaml:"description"`
	InputVariables []string `yaml:"input_variables"`
	System         string   `yaml:"system"`
	User           string   `yaml:"user"`
}

// Prompt is a fully rendered system + user pair ready for the transport.
type Prompt struct {
	System string
	User   string
}

// Registry holds all loaded templates, keyed by name.
type Registry struct {
	templates map[string]Template
}

// LoadEmbedded parses every embedded template and verifies that each
// placeholder it uses is declared and vice versa. Returns an error on the
// first malformed template, so a bad template fails at startup.
func LoadEmbedded() (*Registry, error) {
	reg := &Registry{templates: make(map[string]Template)}

	entries, err := fs.Glob(templateFS, "templates/*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)

	for _, file := range entries {
		raw, err := templateFS.ReadFile(file)
		if err != nil {
			return nil, err
		}

		var tpl Template
		if err := yaml.Unmarshal(raw, &tpl); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", file, err)
		}
		tpl.Name = strings.TrimSuffix(path.Base(file), ".yaml")

		if err := checkDeclarations(tpl); err != nil {
			return nil, fmt.Errorf("template %s: %w", tpl.Name, err)
		}
		reg.templates[tpl.Name] = tpl
	}

	if len(reg.templates) == 0 {
		return nil, fmt.Errorf("no prompt templates embedded")
	}
	return reg, nil
}

// Names lists the registered template names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.templates))
	for name := range r.templates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Render substitutes vars into the named template. Every declared variable
// must be provided and every provided variable must be declared.
func (r *Registry) Render(name string, vars map[string]string) (Prompt, error) {
	tpl, ok := r.templates[name]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt template %q", name)
	}

	declared := make(map[string]bool, len(tpl.InputVariables))
	for _, v := range tpl.InputVariables {
		declared[v] = true
		if _, ok := vars[v]; !ok {
			return Prompt{}, fmt.Errorf("template %q: missing input variable %q", name, v)
		}
	}
	for v := range vars {
		if !declared[v] {
			return Prompt{}, fmt.Errorf("template %q: undeclared input variable %q", name, v)
		}
	}

	substitute := func(text string) string {
		return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
			key := placeholderRe.FindStringSubmatch(m)[1]
			return vars[key]
		})
	}

	return Prompt{
		System: substitute(tpl.System),
		User:   substitute(tpl.User),
	}, nil
}

// checkDeclarations rejects templates whose placeholders and declared
// variables disagree.
func checkDeclarations(tpl Template) error {
	used := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(tpl.System+"\n"+tpl.User, -1) {
		used[m[1]] = true
	}

	declared := make(map[string]bool, len(tpl.InputVariables))
	for _, v := range tpl.InputVariables {
		declared[v] = true
	}

	for v := range used {
		if !declared[v] {
			return fmt.Errorf("placeholder {{%s}} not declared in input_variables", v)
		}
	}
	for v := range declared {
		if !used[v] {
			return fmt.Errorf("declared variable %q never used", v)
		}
	}
	return nil
}
