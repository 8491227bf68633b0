package export

import (
	"time"

	"planexport/internal/option"
	"planexport/internal/project"
)

// Task filter option ids, persisted in the export preference node.
const (
	FilterCompleted       = "filter.completedTasks"
	FilterDueToday        = "filter.dueTodayTasks"
	FilterOverdue         = "filter.overdueTasks"
	FilterInProgressToday = "filter.inProgressTodayTasks"
)

// TaskFilter keeps the tasks Accept returns true for while Option is checked.
type TaskFilter struct {
	Option *option.BooleanOption
	Accept func(t project.Task, today time.Time) bool
}

func (f TaskFilter) ID() string { return f.Option.ID() }

func builtInFilters() []TaskFilter {
	return []TaskFilter{
		{
			Option: option.NewBooleanOption(FilterCompleted, false),
			Accept: func(t project.Task, _ time.Time) bool { return !t.Done() },
		},
		{
			Option: option.NewBooleanOption(FilterDueToday, false),
			Accept: func(t project.Task, today time.Time) bool { return !t.Done() && t.EndsOn(today) },
		},
		{
			Option: option.NewBooleanOption(FilterOverdue, false),
			Accept: func(t project.Task, today time.Time) bool { return !t.Done() && t.EndsBefore(today) },
		},
		{
			Option: option.NewBooleanOption(FilterInProgressToday, false),
			Accept: func(t project.Task, today time.Time) bool { return !t.Done() && t.RunsOn(today) },
		},
	}
}

// VisibleTasks returns the tasks of p that overlap the settings range and
// pass every enabled filter, in plan order. An unset bound is open. hidden
// counts the in-range tasks an enabled filter removed.
func (b *Base) VisibleTasks(p *project.Project, s Settings) (visible []project.Task, hidden int) {
	today := b.now()
	filters := b.Filters()
	out := make([]project.Task, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		if !inRange(t, s) {
			continue
		}
		keep := true
		for _, f := range filters {
			if f.Option.IsChecked() && !f.Accept(t, today) {
				keep = false
				break
			}
		}
		if !keep {
			hidden++
			continue
		}
		out = append(out, t)
	}
	return out, hidden
}

func inRange(t project.Task, s Settings) bool {
	if !s.Start.IsZero() && !t.End.IsZero() && t.End.Before(s.Start) {
		return false
	}
	if !s.End.IsZero() && !t.Start.IsZero() && t.Start.After(s.End) {
		return false
	}
	return true
}
