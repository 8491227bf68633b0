package prefs

import (
	"testing"

	"planexport/internal/option"
	"planexport/internal/storage"
	logx "planexport/pkg/logx"

	"github.com/stretchr/testify/require"
)

var _ option.Store = (*Node)(nil)

func TestNodePaths(t *testing.T) {
	t.Parallel()
	root := Root(storage.NewMemory(), logx.Nop())

	cases := []struct {
		from *Node
		path string
		want string
	}{
		{root, "/instance/net.sourceforge.ganttproject/export", "/instance/net.sourceforge.ganttproject/export"},
		{root, "instance//x/", "/instance/x"},
		{root.Node("/a"), "b", "/a/b"},
		{root.Node("/a"), "/c", "/c"},
		{root, "", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.from.Node(tc.path).Path(), tc.path)
	}
}

func TestNodeValues(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	root := Root(st, logx.Nop())
	export := root.Node("/instance/net.sourceforge.ganttproject/export")

	require.Equal(t, "def", export.Get("export-range-start", "def"))
	require.False(t, export.Has("export-range-start"))

	require.NoError(t, export.Put("export-range-start", "2024-01-01"))
	require.NoError(t, export.PutBoolean("filter.completedTasks", true))
	require.NoError(t, export.Node("sub").Put("hidden", "x"))

	require.Equal(t, "2024-01-01", export.Get("export-range-start", ""))
	require.True(t, export.GetBoolean("filter.completedTasks", false))
	require.True(t, export.Has("export-range-start"))

	keys, err := export.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"export-range-start", "filter.completedTasks"}, keys)

	// Same key on a different node is independent.
	require.Equal(t, "", root.Get("export-range-start", ""))

	require.NoError(t, export.Remove("export-range-start"))
	require.False(t, export.Has("export-range-start"))
}

func TestGetBooleanMalformed(t *testing.T) {
	t.Parallel()
	root := Root(storage.NewMemory(), logx.Nop())
	require.NoError(t, root.Put("commandLine", "maybe"))
	require.True(t, root.GetBoolean("commandLine", true))
	require.False(t, root.GetBoolean("missing", false))
}

func TestClosedStoreFallsBack(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	root := Root(st, logx.Nop())
	require.NoError(t, root.Put("k", "v"))
	require.NoError(t, st.Close())
	require.Equal(t, "def", root.Get("k", "def"))
	require.ErrorIs(t, root.Put("k", "w"), storage.ErrClosed)
}
