package option

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDate is wrapped by ParseDate failures.
var ErrInvalidDate = errors.New("invalid date")

// IsoDateLayout is the layout used for persisted dates.
const IsoDateLayout = "2006-01-02"

// W3C profile of ISO-8601, most specific first.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	IsoDateLayout,
	"2006-01",
	"2006",
}

// ParseDate parses the W3C ISO-8601 profile: YYYY, YYYY-MM, YYYY-MM-DD and
// YYYY-MM-DDThh:mm[:ss[.s]]TZD. Values without a time part are UTC midnight.
func ParseDate(s string) (time.Time, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", ErrInvalidDate)
	}
	for _, layout := range isoLayouts {
		if len(layout) < len(IsoDateLayout) && len(raw) != len(layout) {
			continue
		}
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(IsoDateLayout)
}

// DateOption holds a calendar date. It persists as YYYY-MM-DD.
type DateOption struct {
	Base[time.Time]
}

// NewDateOption returns an option holding def (unset when def is zero).
func NewDateOption(id string, def time.Time) *DateOption {
	o := &DateOption{}
	o.init(id, func(a, b time.Time) bool { return a.Equal(b) })
	if !def.IsZero() {
		o.value, o.set = def, true
	}
	return o
}

// Date returns the current value, or the zero time when unset.
func (o *DateOption) Date() time.Time {
	v, _ := o.Value()
	return v
}

func (o *DateOption) PersistentValue() string {
	v, ok := o.Value()
	if !ok {
		return ""
	}
	return FormatDate(v)
}

// LoadPersistentValue parses s and stores it without consulting the
// validator. An empty string clears the option.
func (o *DateOption) LoadPersistentValue(s string) error {
	if strings.TrimSpace(s) == "" {
		o.Clear()
		return nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("option %s: %w", o.id, err)
	}
	return o.commit(t, true, false)
}
