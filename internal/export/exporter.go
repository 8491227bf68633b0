// Package export turns a project into files through a sequence of named
// jobs run by the engine driver.
//
// Every exporter shares the export range settings of Base: two date options
// persisted in the "/instance/net.sourceforge.ganttproject/export"
// preference node, overridable by a root "exportRange" value, plus the
// built-in task filters. Run appends a Finalizing job that hands the produced
// files to the caller.
package export

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"planexport/internal/option"
	"planexport/internal/prefs"
	"planexport/internal/project"
	"planexport/internal/task/engine"
)

// Exporter is one output format.
type Exporter interface {
	Name() string
	FileTypeDescription() string
	FileExtensions() []string
	// WithFormat selects one of FileExtensions. It reports false when the
	// exporter cannot produce format.
	WithFormat(format string) (Exporter, bool)

	SetContext(p *project.Project, root *prefs.Node)
	Options() []*option.Group
	CreateExportSettings() Settings
	SetMonitor(m engine.Monitor)
	Run(ctx context.Context, output string, onFinalize func(files []string)) (engine.Report, error)
}

// Factory creates a fresh exporter. Exporters hold per-export state, so the
// registry never shares instances.
type Factory func(deps Deps) Exporter

// Registry resolves formats to exporters.
type Registry struct {
	mu        sync.RWMutex
	deps      Deps
	factories map[string]Factory
	order     []string
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, factories: map[string]Factory{}}
}

// NewDefaultRegistry registers the built-in csv and document exporters.
func NewDefaultRegistry(deps Deps) *Registry {
	r := NewRegistry(deps)
	r.Register("csv", NewCSV)
	r.Register("document", NewDocument)
	return r
}

// Register adds or replaces a factory under name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; !ok {
		r.order = append(r.order, name)
	}
	r.factories[name] = f
}

// New returns a fresh exporter able to write format (a file extension such
// as "csv" or "yaml"; a leading dot is ignored).
func (r *Registry) New(format string) (Exporter, error) {
	format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if e, ok := r.factories[name](r.deps).WithFormat(format); ok {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Formats lists every supported extension, sorted.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, name := range r.order {
		out = append(out, r.factories[name](r.deps).FileExtensions()...)
	}
	sort.Strings(out)
	return out
}

func hasFormat(exts []string, format string) bool {
	for _, e := range exts {
		if e == format {
			return true
		}
	}
	return false
}
