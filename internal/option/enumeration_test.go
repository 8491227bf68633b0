package option

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type zoom struct {
	Unit  string
	Scale int
}

func zoomKey(z zoom) string { return z.Unit }

func TestReloadKeepsInputOrder(t *testing.T) {
	t.Parallel()
	o := NewEnumerationOption("zoom", []zoom{{"week", 1}, {"day", 2}, {"month", 3}}, zoomKey)
	require.Equal(t, []string{"week", "day", "month"}, o.AvailableValues())
}

func TestReloadCollisionKeepsFirstPositionLastValue(t *testing.T) {
	t.Parallel()
	o := NewEnumerationOption("zoom", []zoom{{"week", 1}, {"day", 2}, {"week", 9}}, zoomKey)
	require.Equal(t, []string{"week", "day"}, o.AvailableValues())
	require.Equal(t, []zoom{{"week", 9}, {"day", 2}}, o.TypedValues())
}

func TestReloadNotifiesOldAndNewKeys(t *testing.T) {
	t.Parallel()
	o := NewEnumerationOption("fmt", []string{"csv", "json"}, nil)
	var got []Change[[]string]
	o.AddValueSetListener(func(c Change[[]string]) { got = append(got, c) })

	o.Reload([]string{"json", "html"})

	require.Len(t, got, 1)
	require.Equal(t, []string{"csv", "json"}, got[0].Old)
	require.Equal(t, []string{"json", "html"}, got[0].New)
}

func TestSetSelectedValueRoundTrip(t *testing.T) {
	t.Parallel()
	o := NewEnumerationOption("zoom", []zoom{{"week", 1}, {"day", 2}}, zoomKey)

	require.NoError(t, o.SetSelectedValue(zoom{"day", 2}))
	got, ok := o.SelectedValue()
	require.True(t, ok)
	require.Equal(t, zoom{"day", 2}, got)
	require.Equal(t, "day", o.PersistentValue())
}

func TestSetSelectedValueOutsideSetIsNoop(t *testing.T) {
	t.Parallel()
	o := NewEnumerationOption("zoom", []zoom{{"week", 1}, {"day", 2}}, zoomKey)
	require.NoError(t, o.SetSelectedValue(zoom{"week", 1}))

	changes := 0
	o.AddChangeListener(func(Change[string]) { changes++ })
	require.NoError(t, o.SetSelectedValue(zoom{"quarter", 4}))

	got, ok := o.SelectedValue()
	require.True(t, ok)
	require.Equal(t, zoom{"week", 1}, got)
	require.Zero(t, changes)
}

func TestClearSelection(t *testing.T) {
	t.Parallel()
	o := NewEnumerationOption("fmt", []string{"csv", "json"}, nil)
	require.NoError(t, o.SetSelectedValue("json"))
	o.ClearSelection()
	_, ok := o.SelectedValue()
	require.False(t, ok)
	require.Equal(t, "", o.PersistentValue())
}

func TestSelectedValueEmptySet(t *testing.T) {
	t.Parallel()
	o := NewEnumerationOption[string]("fmt", nil, nil)
	require.NoError(t, o.LoadPersistentValue("csv"))
	_, ok := o.SelectedValue()
	require.False(t, ok)
	require.Equal(t, "csv", o.PersistentValue())
}

func TestSelectionChangeEventCarriesKeys(t *testing.T) {
	t.Parallel()
	o := NewEnumerationOption("fmt", []string{"csv", "json"}, nil)
	var got []Change[string]
	o.AddChangeListener(func(c Change[string]) { got = append(got, c) })

	require.NoError(t, o.SetSelectedValue("csv"))
	require.NoError(t, o.SetSelectedValue("csv"))
	require.NoError(t, o.SetSelectedValue("json"))

	require.Len(t, got, 2)
	require.False(t, got[0].OldSet)
	require.Equal(t, "csv", got[0].New)
	require.Equal(t, "csv", got[1].Old)
	require.Equal(t, "json", got[1].New)
}

func TestLocalizerIsDisplayOnly(t *testing.T) {
	t.Parallel()
	o := NewEnumerationOption("fmt", []string{"csv"}, nil)
	o.SetValueLocalizer(strings.ToUpper)
	require.NoError(t, o.SetSelectedValue("csv"))
	require.Equal(t, "CSV", o.DisplayValue("csv"))
	require.Equal(t, "csv", o.PersistentValue())
}

func TestRemoveListener(t *testing.T) {
	t.Parallel()
	o := NewEnumerationOption("fmt", []string{"csv", "json"}, nil)
	n := 0
	remove := o.AddChangeListener(func(Change[string]) { n++ })
	require.NoError(t, o.SetSelectedValue("csv"))
	remove()
	remove()
	require.NoError(t, o.SetSelectedValue("json"))
	require.Equal(t, 1, n)
}
