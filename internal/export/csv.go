package export

import (
	"context"
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"planexport/internal/option"
	"planexport/internal/prefs"
	"planexport/internal/project"
	"planexport/internal/task/engine"
	logx "planexport/pkg/logx"
)

// OptionSeparator selects the CSV field separator.
const OptionSeparator = "csv.separator"

var separatorNames = map[rune]string{',': "comma", ';': "semicolon", '\t': "tab"}

// CSVExporter writes one row per visible task. With expanded resources it
// also writes <name>.resources<ext> with one row per resource.
type CSVExporter struct {
	Base

	pmu       sync.Mutex
	format    string
	project   *project.Project
	separator *option.EnumerationOption[rune]
}

func NewCSV(deps Deps) Exporter {
	e := &CSVExporter{format: "csv"}
	e.separator = option.NewEnumerationOption(OptionSeparator, []rune{',', ';', '\t'}, func(r rune) string {
		return separatorNames[r]
	})
	_ = e.separator.SetSelectedValue(',')
	e.init("csv", "CSV (comma-separated values)", deps, e)
	return e
}

func (e *CSVExporter) FileExtensions() []string { return []string{"csv", "tsv"} }

func (e *CSVExporter) WithFormat(format string) (Exporter, bool) {
	if !hasFormat(e.FileExtensions(), format) {
		return nil, false
	}
	e.pmu.Lock()
	e.format = format
	e.pmu.Unlock()
	if format == "tsv" {
		_ = e.separator.SetSelectedValue('\t')
	}
	return e, true
}

// Separator exposes the separator option, e.g. for a localizer.
func (e *CSVExporter) Separator() *option.EnumerationOption[rune] { return e.separator }

func (e *CSVExporter) SetContext(p *project.Project, root *prefs.Node) {
	e.Base.SetContext(p, root)
	e.pmu.Lock()
	e.project = p
	format := e.format
	e.pmu.Unlock()

	if format != "csv" {
		return
	}
	node := root.Node(PrefsNodePath)
	if err := e.separator.LoadPersistentValue(node.Get(OptionSeparator, e.separator.PersistentValue())); err != nil {
		e.log.Warn("separator preference unreadable", logx.Err(err))
	}
	e.separator.AddChangeListener(func(option.Change[string]) {
		if err := node.Put(OptionSeparator, e.separator.PersistentValue()); err != nil {
			e.log.Warn("separator preference not saved", logx.Err(err))
		}
	})
}

func (e *CSVExporter) Options() []*option.Group {
	return []*option.Group{
		e.CreateExportRangeOptionGroup(),
		e.CreateFilterOptionGroup(),
		option.NewGroup("csv", e.separator),
	}
}

func (e *CSVExporter) CreateJobs(output string, files *Files) []engine.Job {
	e.pmu.Lock()
	p := e.project
	e.pmu.Unlock()

	settings := e.CreateExportSettings()
	sep, ok := e.separator.SelectedValue()
	if !ok {
		sep = ','
	}

	var tasks []project.Task
	jobs := []engine.Job{
		{
			Name: "Selecting tasks",
			Run: func(context.Context) error {
				if p == nil {
					return engine.NoRetry(ErrNoContext)
				}
				var hidden int
				tasks, hidden = e.VisibleTasks(p, settings)
				e.log.Debug("tasks selected", logx.Int("visible", len(tasks)), logx.Int("hidden", hidden), logx.Int("total", len(p.Tasks)))
				return nil
			},
		},
		{
			Name: "Writing tasks",
			Run: func(ctx context.Context) error {
				if p == nil {
					return engine.NoRetry(ErrNoContext)
				}
				if err := writeFileAtomic(ctx, output, func(w io.Writer) error {
					return writeTaskRows(w, sep, p, tasks)
				}); err != nil {
					return err
				}
				files.Add(output)
				return nil
			},
		},
	}
	if settings.ExpandResources {
		resPath := resourcesPath(output)
		jobs = append(jobs, engine.Job{
			Name: "Writing resources",
			Run: func(ctx context.Context) error {
				if p == nil {
					return engine.NoRetry(ErrNoContext)
				}
				if err := writeFileAtomic(ctx, resPath, func(w io.Writer) error {
					return writeResourceRows(w, sep, p, tasks)
				}); err != nil {
					return err
				}
				files.Add(resPath)
				return nil
			},
		})
	}
	return jobs
}

func resourcesPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + ".resources" + ext
}

func writeTaskRows(w io.Writer, sep rune, p *project.Project, tasks []project.Task) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	header := []string{"ID", "Name", "Begin date", "End date", "Completion", "Milestone", "Resources"}
	for _, d := range p.Properties {
		header = append(header, d.Name)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range tasks {
		names := make([]string, 0, len(t.Resources))
		for _, id := range t.Resources {
			if r, ok := p.Resource(id); ok {
				names = append(names, r.Name)
			}
		}
		row := []string{
			strconv.Itoa(t.ID),
			t.Name,
			formatOptionalDate(t.Start),
			formatOptionalDate(t.End),
			strconv.Itoa(t.Completion),
			strconv.FormatBool(t.Milestone),
			strings.Join(names, "; "),
		}
		for _, id := range p.PropertyIDs() {
			v, _ := p.Property(t, id)
			row = append(row, project.FormatValue(v))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeResourceRows lists every resource with the visible tasks assigned to it.
func writeResourceRows(w io.Writer, sep rune, p *project.Project, tasks []project.Task) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	if err := cw.Write([]string{"ID", "Name", "Role", "Email", "Tasks"}); err != nil {
		return err
	}
	for _, r := range p.Resources {
		var ids []string
		for _, t := range tasks {
			for _, rid := range t.Resources {
				if rid == r.ID {
					ids = append(ids, strconv.Itoa(t.ID))
					break
				}
			}
		}
		if err := cw.Write([]string{r.ID, r.Name, r.Role, r.Email, strings.Join(ids, " ")}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
