package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"planexport/internal/option"
	"planexport/internal/prefs"
	"planexport/internal/project"
	"planexport/internal/task/engine"

	yaml "go.yaml.in/yaml/v3"
)

// DocumentExporter writes the visible plan as one JSON or YAML document.
// With expanded resources every task carries its assignees inline instead
// of resource ids.
type DocumentExporter struct {
	Base

	pmu     sync.Mutex
	format  string
	project *project.Project
}

type document struct {
	Project string    `json:"project" yaml:"project"`
	Range   *docRange `json:"range,omitempty" yaml:"range,omitempty"`
	Tasks   []docTask `json:"tasks" yaml:"tasks"`
	// HiddenTasks counts tasks removed by task filters.
	HiddenTasks int           `json:"hidden_tasks,omitempty" yaml:"hidden_tasks,omitempty"`
	Resources   []docResource `json:"resources,omitempty" yaml:"resources,omitempty"`
}

type docRange struct {
	Start string `json:"start,omitempty" yaml:"start,omitempty"`
	End   string `json:"end,omitempty" yaml:"end,omitempty"`
}

type docTask struct {
	ID         int               `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Start      string            `json:"start,omitempty" yaml:"start,omitempty"`
	End        string            `json:"end,omitempty" yaml:"end,omitempty"`
	Completion int               `json:"completion" yaml:"completion"`
	Milestone  bool              `json:"milestone,omitempty" yaml:"milestone,omitempty"`
	Resources  []string          `json:"resources,omitempty" yaml:"resources,omitempty"`
	Assignees  []docResource     `json:"assignees,omitempty" yaml:"assignees,omitempty"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

type docResource struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Role  string `json:"role,omitempty" yaml:"role,omitempty"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

func NewDocument(deps Deps) Exporter {
	e := &DocumentExporter{format: "json"}
	e.init("document", "Plan document (JSON, YAML)", deps, e)
	return e
}

func (e *DocumentExporter) FileExtensions() []string { return []string{"json", "yaml", "yml"} }

func (e *DocumentExporter) WithFormat(format string) (Exporter, bool) {
	if !hasFormat(e.FileExtensions(), format) {
		return nil, false
	}
	e.pmu.Lock()
	e.format = format
	e.pmu.Unlock()
	return e, true
}

func (e *DocumentExporter) SetContext(p *project.Project, root *prefs.Node) {
	e.Base.SetContext(p, root)
	e.pmu.Lock()
	e.project = p
	e.pmu.Unlock()
}

func (e *DocumentExporter) Options() []*option.Group {
	return []*option.Group{e.CreateExportRangeOptionGroup(), e.CreateFilterOptionGroup()}
}

func (e *DocumentExporter) CreateJobs(output string, files *Files) []engine.Job {
	e.pmu.Lock()
	p, format := e.project, e.format
	e.pmu.Unlock()

	settings := e.CreateExportSettings()
	var doc document
	return []engine.Job{
		{
			Name: "Building document",
			Run: func(context.Context) error {
				if p == nil {
					return engine.NoRetry(ErrNoContext)
				}
				tasks, hidden := e.VisibleTasks(p, settings)
				doc = buildDocument(p, tasks, settings)
				doc.HiddenTasks = hidden
				return nil
			},
		},
		{
			Name: "Writing document",
			Run: func(ctx context.Context) error {
				if p == nil {
					return engine.NoRetry(ErrNoContext)
				}
				if err := writeFileAtomic(ctx, output, func(w io.Writer) error {
					return encodeDocument(w, format, doc)
				}); err != nil {
					return err
				}
				files.Add(output)
				return nil
			},
		},
	}
}

func buildDocument(p *project.Project, tasks []project.Task, s Settings) document {
	doc := document{Project: p.Name, Tasks: make([]docTask, 0, len(tasks))}
	if !s.Start.IsZero() || !s.End.IsZero() {
		doc.Range = &docRange{Start: formatOptionalDate(s.Start), End: formatOptionalDate(s.End)}
	}
	used := map[string]bool{}
	for _, t := range tasks {
		dt := docTask{
			ID:         t.ID,
			Name:       t.Name,
			Start:      formatOptionalDate(t.Start),
			End:        formatOptionalDate(t.End),
			Completion: t.Completion,
			Milestone:  t.Milestone,
		}
		for _, rid := range t.Resources {
			used[rid] = true
			if !s.ExpandResources {
				dt.Resources = append(dt.Resources, rid)
				continue
			}
			if r, ok := p.Resource(rid); ok {
				dt.Assignees = append(dt.Assignees, docResource(r))
			}
		}
		for _, id := range p.PropertyIDs() {
			v, ok := p.Property(t, id)
			if !ok {
				continue
			}
			if dt.Properties == nil {
				dt.Properties = map[string]string{}
			}
			dt.Properties[id] = project.FormatValue(v)
		}
		doc.Tasks = append(doc.Tasks, dt)
	}
	if !s.ExpandResources {
		for _, r := range p.Resources {
			if used[r.ID] {
				doc.Resources = append(doc.Resources, docResource(r))
			}
		}
	}
	return doc
}

func encodeDocument(w io.Writer, format string, doc document) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return engine.NoRetry(fmt.Errorf("%w: %q", ErrUnknownFormat, format))
	}
}
