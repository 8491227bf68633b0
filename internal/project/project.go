// Package project holds the plan model consumed by exporters: tasks,
// resources and custom task properties.
package project

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"planexport/internal/option"
)

// Project is a loaded plan. It implements export.Chart.
type Project struct {
	Name       string
	Tasks      []Task
	Resources  []Resource
	Properties []PropertyDef
}

// Task is one plan entry. Start and End are calendar days (End inclusive).
type Task struct {
	ID         int
	Name       string
	Start      time.Time
	End        time.Time
	Completion int
	Milestone  bool
	Resources  []string
	Properties map[string]string
}

// Resource is a person or asset assigned to tasks.
type Resource struct {
	ID    string
	Name  string
	Role  string
	Email string
}

// PropertyDef declares a custom task property. Type is one of the codes
// understood by option.DecodeTypeAndDefault.
type PropertyDef struct {
	ID      string
	Name    string
	Type    string
	Default *string
}

// Definition decodes the property's type and default value.
func (p PropertyDef) Definition() option.PropertyDefinition {
	return option.DecodeTypeAndDefault(p.Type, p.Default)
}

// StartDate returns the earliest task start, or the zero time for an empty plan.
func (p *Project) StartDate() time.Time {
	var out time.Time
	for _, t := range p.Tasks {
		if t.Start.IsZero() {
			continue
		}
		if out.IsZero() || t.Start.Before(out) {
			out = t.Start
		}
	}
	return out
}

// EndDate returns the latest task end, or the zero time for an empty plan.
func (p *Project) EndDate() time.Time {
	var out time.Time
	for _, t := range p.Tasks {
		if t.End.After(out) {
			out = t.End
		}
	}
	return out
}

// Resource looks up a resource by id.
func (p *Project) Resource(id string) (Resource, bool) {
	for _, r := range p.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return Resource{}, false
}

// Property returns a task's custom property converted to its declared type.
// Missing values fall back to the declared default; ok is false when neither
// is available.
func (p *Project) Property(t Task, id string) (any, bool) {
	var def *PropertyDef
	for i := range p.Properties {
		if p.Properties[i].ID == id {
			def = &p.Properties[i]
			break
		}
	}
	if def == nil {
		return nil, false
	}
	raw, ok := t.Properties[id]
	if !ok {
		d := def.Definition()
		return d.Default, d.Default != nil
	}
	d := option.DecodeTypeAndDefault(def.Type, &raw)
	return d.Default, d.Default != nil
}

// Validate reports structural problems: duplicate task ids, end before start,
// completion out of range and unknown resource references.
func (p *Project) Validate() error {
	var problems []string
	seen := map[int]bool{}
	for _, t := range p.Tasks {
		if seen[t.ID] {
			problems = append(problems, fmt.Sprintf("task %d: duplicate id", t.ID))
		}
		seen[t.ID] = true
		if !t.Start.IsZero() && !t.End.IsZero() && t.End.Before(t.Start) {
			problems = append(problems, fmt.Sprintf("task %d: end before start", t.ID))
		}
		if t.Completion < 0 || t.Completion > 100 {
			problems = append(problems, fmt.Sprintf("task %d: completion %d out of range", t.ID, t.Completion))
		}
		for _, rid := range t.Resources {
			if _, ok := p.Resource(rid); !ok {
				problems = append(problems, fmt.Sprintf("task %d: unknown resource %q", t.ID, rid))
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidProject, strings.Join(problems, "; "))
}

// PropertyIDs returns the declared custom property ids in declaration order.
func (p *Project) PropertyIDs() []string {
	out := make([]string, 0, len(p.Properties))
	for _, d := range p.Properties {
		out = append(out, d.ID)
	}
	return out
}

// TaskIDs returns all task ids ascending.
func (p *Project) TaskIDs() []int {
	ids := make([]int, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		ids = append(ids, t.ID)
	}
	sort.Ints(ids)
	return ids
}

// FormatValue renders a typed property value the way exporters write it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return option.FormatDate(x)
	default:
		return fmt.Sprint(x)
	}
}

// Done reports whether the task is 100% complete.
func (t Task) Done() bool { return t.Completion >= 100 }

// EndsOn reports whether the task's last day is day.
func (t Task) EndsOn(day time.Time) bool {
	return !t.End.IsZero() && sameDay(t.End, day)
}

// EndsBefore reports whether the task's last day is before day.
func (t Task) EndsBefore(day time.Time) bool {
	return !t.End.IsZero() && truncDay(t.End).Before(truncDay(day))
}

// RunsOn reports whether day lies within [Start, End].
func (t Task) RunsOn(day time.Time) bool {
	if t.Start.IsZero() || t.End.IsZero() {
		return false
	}
	d := truncDay(day)
	return !d.Before(truncDay(t.Start)) && !d.After(truncDay(t.End))
}

func truncDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool { return truncDay(a).Equal(truncDay(b)) }
