package option

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mapStore map[string]string

func (m mapStore) Get(key, def string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

func (m mapStore) Put(key, value string) error {
	m[key] = value
	return nil
}

func TestGroupSaveLoad(t *testing.T) {
	t.Parallel()
	start := NewDateOption("export.range.start", day(2024, 1, 1))
	flag := NewBooleanOption("filter.completedTasks", false)
	g := NewGroup("export.range", start, flag)

	st := mapStore{}
	require.NoError(t, g.Save(st))
	require.Equal(t, "2024-01-01", st["export.range.start"])
	require.Equal(t, "false", st["filter.completedTasks"])

	st["export.range.start"] = "2024-06-30"
	st["filter.completedTasks"] = "true"
	require.NoError(t, g.Load(st))
	require.True(t, day(2024, 6, 30).Equal(start.Date()))
	require.True(t, flag.IsChecked())
	require.Same(t, flag, g.Option("filter.completedTasks"))
	require.Nil(t, g.Option("missing"))
}

func TestGroupLoadReportsBadValues(t *testing.T) {
	t.Parallel()
	start := NewDateOption("a", time.Time{})
	g := NewGroup("g", start)
	err := g.Load(mapStore{"a": "not-a-date"})
	require.ErrorIs(t, err, ErrInvalidDate)
}

func TestDecodeTypeAndDefault(t *testing.T) {
	t.Parallel()
	str := func(s string) *string { return &s }

	require.Equal(t, PropertyDefinition{Class: PropertyText, Default: "x"}, DecodeTypeAndDefault("text", str("x")))
	require.Equal(t, PropertyDefinition{Class: PropertyBoolean, Default: true}, DecodeTypeAndDefault("boolean", str("True")))
	require.Equal(t, PropertyDefinition{Class: PropertyInteger, Default: 42}, DecodeTypeAndDefault("integer", str("42")))
	require.Equal(t, PropertyDefinition{Class: PropertyInteger}, DecodeTypeAndDefault("int", str("4x")))
	require.Equal(t, PropertyDefinition{Class: PropertyInteger, Default: -2147483648}, DecodeTypeAndDefault("int", str("-2147483648")))
	require.Equal(t, PropertyDefinition{Class: PropertyInteger}, DecodeTypeAndDefault("integer", str("3000000000")))
	require.Equal(t, PropertyDefinition{Class: PropertyDouble, Default: 1.5}, DecodeTypeAndDefault("double", str("1.5")))
	require.Equal(t, PropertyDefinition{Class: PropertyDate}, DecodeTypeAndDefault("date", str(" ")))
	require.Equal(t, PropertyDefinition{Class: PropertyText, Default: ""}, DecodeTypeAndDefault("color", str("red")))
	require.Equal(t, PropertyDefinition{Class: PropertyBoolean}, DecodeTypeAndDefault("boolean", nil))

	d := DecodeTypeAndDefault("date", str("2024-05-01"))
	require.Equal(t, PropertyDate, d.Class)
	require.True(t, day(2024, 5, 1).Equal(d.Default.(time.Time)))
}

func TestEncodeType(t *testing.T) {
	t.Parallel()
	require.Equal(t, "text", EncodeType("a"))
	require.Equal(t, "boolean", EncodeType(true))
	require.Equal(t, "int", EncodeType(3))
	require.Equal(t, "double", EncodeType(2.5))
	require.Equal(t, "date", EncodeType(time.Now()))
	require.Equal(t, "", EncodeType([]int{}))
	require.Equal(t, "int", PropertyInteger.String())
}
