package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"planexport/internal/option"

	yaml "go.yaml.in/yaml/v3"
)

var (
	ErrInvalidProject = errors.New("invalid project")
	ErrUnknownFormat  = errors.New("unknown project format")
)

// fileProject is the on-disk shape shared by the JSON and YAML encodings.
type fileProject struct {
	Name       string         `json:"name" yaml:"name"`
	Tasks      []fileTask     `json:"tasks" yaml:"tasks"`
	Resources  []fileResource `json:"resources,omitempty" yaml:"resources,omitempty"`
	Properties []fileProperty `json:"properties,omitempty" yaml:"properties,omitempty"`
}

type fileTask struct {
	ID         int               `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Start      string            `json:"start,omitempty" yaml:"start,omitempty"`
	End        string            `json:"end,omitempty" yaml:"end,omitempty"`
	Completion int               `json:"completion,omitempty" yaml:"completion,omitempty"`
	Milestone  bool              `json:"milestone,omitempty" yaml:"milestone,omitempty"`
	Resources  []string          `json:"resources,omitempty" yaml:"resources,omitempty"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

type fileResource struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Role  string `json:"role,omitempty" yaml:"role,omitempty"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

type fileProperty struct {
	ID      string  `json:"id" yaml:"id"`
	Name    string  `json:"name" yaml:"name"`
	Type    string  `json:"type" yaml:"type"`
	Default *string `json:"default,omitempty" yaml:"default,omitempty"`
}

// Load reads a project from path. The format follows the extension:
// .json, .yaml or .yml.
func Load(path string) (*Project, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Decode(formatOf(path), b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
}

// Decode parses data in the given format ("json" or "yaml"). Unknown fields
// are rejected.
func Decode(format string, data []byte) (*Project, error) {
	var fp fileProject
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&fp); err != nil {
			return nil, err
		}
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			if err == nil {
				return nil, fmt.Errorf("%w: trailing data", ErrInvalidProject)
			}
			return nil, err
		}
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&fp); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return fp.toProject()
}

func (fp fileProject) toProject() (*Project, error) {
	p := &Project{Name: fp.Name}
	var errs []error
	for _, ft := range fp.Tasks {
		t := Task{
			ID:         ft.ID,
			Name:       ft.Name,
			Completion: ft.Completion,
			Milestone:  ft.Milestone,
			Resources:  ft.Resources,
			Properties: ft.Properties,
		}
		var err error
		if t.Start, err = parseOptionalDate(ft.Start); err != nil {
			errs = append(errs, fmt.Errorf("task %d start: %w", ft.ID, err))
		}
		if t.End, err = parseOptionalDate(ft.End); err != nil {
			errs = append(errs, fmt.Errorf("task %d end: %w", ft.ID, err))
		}
		if ft.Milestone && t.End.IsZero() {
			t.End = t.Start
		}
		p.Tasks = append(p.Tasks, t)
	}
	for _, fr := range fp.Resources {
		p.Resources = append(p.Resources, Resource(fr))
	}
	for _, fd := range fp.Properties {
		p.Properties = append(p.Properties, PropertyDef(fd))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProject, errors.Join(errs...))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func parseOptionalDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return option.ParseDate(s)
}

// Encode renders p in the given format. Dates are written as YYYY-MM-DD.
func Encode(p *Project, format string) ([]byte, error) {
	fp := fileProject{Name: p.Name}
	for _, t := range p.Tasks {
		ft := fileTask{
			ID:         t.ID,
			Name:       t.Name,
			Completion: t.Completion,
			Milestone:  t.Milestone,
			Resources:  t.Resources,
			Properties: t.Properties,
		}
		if !t.Start.IsZero() {
			ft.Start = option.FormatDate(t.Start)
		}
		if !t.End.IsZero() {
			ft.End = option.FormatDate(t.End)
		}
		fp.Tasks = append(fp.Tasks, ft)
	}
	for _, r := range p.Resources {
		fp.Resources = append(fp.Resources, fileResource(r))
	}
	for _, d := range p.Properties {
		fp.Properties = append(fp.Properties, fileProperty(d))
	}
	switch format {
	case "json":
		return json.MarshalIndent(fp, "", "  ")
	case "yaml":
		return yaml.Marshal(fp)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
