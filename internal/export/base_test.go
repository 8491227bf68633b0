package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"planexport/internal/eventbus"
	"planexport/internal/option"
	"planexport/internal/prefs"
	"planexport/internal/storage"
	"planexport/internal/task/engine"
	logx "planexport/pkg/logx"

	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixedChart struct{ start, end time.Time }

func (c fixedChart) StartDate() time.Time { return c.start }
func (c fixedChart) EndDate() time.Time   { return c.end }

type builderFunc func(output string, files *Files) []engine.Job

func (f builderFunc) CreateJobs(output string, files *Files) []engine.Job { return f(output, files) }

func newTestBase(t *testing.T, log logx.Logger, b JobBuilder) (*Base, *prefs.Node) {
	t.Helper()
	root := prefs.Root(storage.NewMemory(), logx.Nop())
	base := &Base{}
	base.init("test", "Test export", Deps{Log: log}, b)
	base.SetMonitor(engine.NopMonitor{})
	return base, root
}

var january = fixedChart{start: day(2024, 1, 1), end: day(2024, 1, 31)}

func TestRangeOptionsSeededFromChart(t *testing.T) {
	t.Parallel()
	b, root := newTestBase(t, logx.Nop(), nil)
	b.SetContext(january, root)

	require.Equal(t, day(2024, 1, 1), b.RangeStart().Date())
	require.Equal(t, day(2024, 1, 31), b.RangeEnd().Date())
	require.Equal(t, OptionRangeStart, b.RangeStart().ID())
	require.Equal(t, OptionRangeEnd, b.RangeEnd().ID())
}

func TestRangeOptionsSeededFromPreferences(t *testing.T) {
	t.Parallel()
	b, root := newTestBase(t, logx.Nop(), nil)
	node := root.Node(PrefsNodePath)
	require.NoError(t, node.Put(KeyRangeStart, "2024-01-08"))
	require.NoError(t, node.Put(KeyRangeEnd, "2024-01-19"))

	b.SetContext(january, root)
	require.Equal(t, day(2024, 1, 8), b.RangeStart().Date())
	require.Equal(t, day(2024, 1, 19), b.RangeEnd().Date())
}

func TestUnreadableStoredRangeKeepsChartDefault(t *testing.T) {
	t.Parallel()
	b, root := newTestBase(t, logx.Nop(), nil)
	require.NoError(t, root.Node(PrefsNodePath).Put(KeyRangeStart, "someday"))

	b.SetContext(january, root)
	require.Equal(t, day(2024, 1, 1), b.RangeStart().Date())
}

func TestRangeValidatorRejectsStartAfterEnd(t *testing.T) {
	t.Parallel()
	b, root := newTestBase(t, logx.Nop(), nil)
	b.SetContext(january, root)
	node := root.Node(PrefsNodePath)

	require.NoError(t, b.RangeEnd().SetValue(day(2024, 1, 5)))
	err := b.RangeStart().SetValue(day(2024, 1, 10))

	var ve *option.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, RangeMessage, ve.Message)
	require.Equal(t, day(2024, 1, 1), b.RangeStart().Date())
	require.False(t, node.Has(KeyRangeStart))

	// The end validator mirrors it.
	err = b.RangeEnd().SetValue(day(2023, 12, 31))
	require.ErrorAs(t, err, &ve)
	require.Equal(t, RangeMessage, ve.Message)
}

func TestRangeValidatorAcceptsOrderedCommits(t *testing.T) {
	t.Parallel()
	b, root := newTestBase(t, logx.Nop(), nil)
	b.SetContext(january, root)
	node := root.Node(PrefsNodePath)

	require.NoError(t, b.RangeStart().SetValue(day(2024, 1, 5)))
	require.NoError(t, b.RangeEnd().SetValue(day(2024, 1, 10)))

	require.Equal(t, "2024-01-05", node.Get(KeyRangeStart, ""))
	require.Equal(t, "2024-01-10", node.Get(KeyRangeEnd, ""))
}

func TestCreateExportSettingsFromOptions(t *testing.T) {
	t.Parallel()
	b, root := newTestBase(t, logx.Nop(), nil)
	require.NoError(t, root.PutBoolean(KeyCommandLine, true))
	b.SetContext(january, root)

	s := b.CreateExportSettings()
	require.Equal(t, day(2024, 1, 1), s.Start)
	require.Equal(t, day(2024, 1, 31), s.End)
	require.True(t, s.CommandLine)
	require.False(t, s.ExpandResources)
	require.True(t, s.Consistent())
}

func TestCreateExportSettingsInvertedRangeIsLoggedNotFixed(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	b, root := newTestBase(t, logx.NewJSON(&buf, "debug"), nil)
	require.NoError(t, root.Put(KeyExportRange, "2024-02-01 2024-01-15"))
	require.NoError(t, root.PutBoolean(KeyExpandResources, true))
	b.SetContext(january, root)

	s := b.CreateExportSettings()
	require.Equal(t, day(2024, 2, 1), s.Start)
	require.Equal(t, day(2024, 1, 15), s.End)
	require.True(t, s.ExpandResources)
	require.False(t, s.Consistent())

	require.Contains(t, buf.String(), "export range invalid")
	require.Contains(t, buf.String(), RangeMessage)
	require.Contains(t, buf.String(), `"level":"error"`)
}

func TestCreateExportSettingsUnparsableBound(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	b, root := newTestBase(t, logx.NewJSON(&buf, "debug"), nil)
	require.NoError(t, root.Put(KeyExportRange, "2024-02-01 soon"))
	b.SetContext(january, root)

	s := b.CreateExportSettings()
	require.Equal(t, day(2024, 2, 1), s.Start)
	require.True(t, s.End.IsZero())
	require.Contains(t, buf.String(), "export range bound unparsable")
}

func TestRunFinalizeReceivesFilesAfterFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("B failed")
	builder := builderFunc(func(output string, files *Files) []engine.Job {
		return []engine.Job{
			{Name: "A", Run: func(context.Context) error { files.Add(output + ".a"); return nil }},
			{Name: "B", Run: func(context.Context) error { files.Add(output + ".b"); return boom }},
		}
	})
	b, root := newTestBase(t, logx.Nop(), builder)
	b.SetContext(january, root)

	var finalized []string
	called := false
	rep, err := b.Run(context.Background(), "/tmp/out", func(files []string) {
		called = true
		finalized = files
	})

	require.True(t, called)
	require.Equal(t, []string{"/tmp/out.a", "/tmp/out.b"}, finalized)
	require.ErrorIs(t, err, boom)
	require.Len(t, rep.Results, 3)
	require.Equal(t, FinalizingJob, rep.Results[2].Name)
	require.True(t, rep.Results[2].OK())
}

func TestRunRecordsAndPublishes(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(32)
	defer unsub()
	exports := eventbus.Filter(ch, 8, "export.")

	builder := builderFunc(func(output string, files *Files) []engine.Job {
		return []engine.Job{{Name: "A", Run: func(context.Context) error { files.Add(output); return nil }}}
	})
	root := prefs.Root(st, logx.Nop())
	b := &Base{}
	b.init("test", "Test export", Deps{Log: logx.Nop(), Store: st, Bus: bus}, builder)
	b.SetMonitor(engine.NopMonitor{})
	b.SetContext(january, root)

	rep, err := b.Run(context.Background(), "/tmp/plan.csv", nil)
	require.NoError(t, err)

	runs, err := st.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, rep.RunID, runs[0].RunID)
	require.Equal(t, []string{"/tmp/plan.csv"}, runs[0].Files)
	require.Equal(t, 2, runs[0].OK)

	var got []string
	for len(got) < 2 {
		select {
		case ev := <-exports:
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("missing export events: %v", got)
		}
	}
	require.Equal(t, []string{eventbus.ExportStarted, eventbus.ExportFinished}, got)
}

func TestRunWithoutContext(t *testing.T) {
	t.Parallel()
	b, _ := newTestBase(t, logx.Nop(), builderFunc(func(string, *Files) []engine.Job { return nil }))
	_, err := b.Run(context.Background(), "/tmp/x", nil)
	require.ErrorIs(t, err, ErrNoContext)
}

func TestRangeGroupRoundTrip(t *testing.T) {
	t.Parallel()
	b, root := newTestBase(t, logx.Nop(), nil)
	b.SetContext(january, root)

	g := b.CreateExportRangeOptionGroup()
	require.Equal(t, RangeGroupID, g.ID)
	require.NotNil(t, g.Option(OptionRangeStart))
	require.NotNil(t, g.Option(OptionRangeEnd))
}
