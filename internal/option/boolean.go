package option

import (
	"strconv"
	"strings"
)

// BooleanOption is a flag persisted as "true"/"false".
type BooleanOption struct {
	Base[bool]
}

func NewBooleanOption(id string, def bool) *BooleanOption {
	o := &BooleanOption{}
	o.init(id, func(a, b bool) bool { return a == b })
	o.value, o.set = def, true
	return o
}

// IsChecked returns the current value; an unset option reads as false.
func (o *BooleanOption) IsChecked() bool {
	v, _ := o.Value()
	return v
}

// Toggle flips the value and returns the new state.
func (o *BooleanOption) Toggle() (bool, error) {
	next := !o.IsChecked()
	if err := o.SetValue(next); err != nil {
		return !next, err
	}
	return next, nil
}

func (o *BooleanOption) PersistentValue() string {
	return strconv.FormatBool(o.IsChecked())
}

// LoadPersistentValue accepts "true" (any case) as true and anything else as false.
func (o *BooleanOption) LoadPersistentValue(s string) error {
	return o.commit(strings.EqualFold(strings.TrimSpace(s), "true"), true, false)
}
