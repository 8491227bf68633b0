package option

import (
	"fmt"
	"sync"
)

// EnumerationOption restricts its value to a fixed, ordered set of keys, each
// mapped to a typed domain value. The selection is stored as the key string,
// which is also the persisted form.
//
// Keys are derived with a pure stringify function. Distinct values must not
// stringify to the same key: on collision the later value replaces the
// earlier one while the key keeps its first position, so AvailableValues may
// report fewer keys than values were passed to Reload.
type EnumerationOption[T any] struct {
	Base[string]

	stringify func(T) string

	// guarded by Base.mu
	keys      []string
	byKey     map[string]T
	localizer func(string) string

	vmu       sync.Mutex
	valueSubs []listenerEntry[[]string]
	valueSeq  uint64
}

// NewEnumerationOption builds an option over values. A nil stringify uses fmt.Sprint.
func NewEnumerationOption[T any](id string, values []T, stringify func(T) string) *EnumerationOption[T] {
	if stringify == nil {
		stringify = func(v T) string { return fmt.Sprint(v) }
	}
	o := &EnumerationOption[T]{stringify: stringify, byKey: map[string]T{}}
	o.init(id, func(a, b string) bool { return a == b })
	o.Reload(values)
	return o
}

// Reload replaces the allowed set and notifies value-set listeners with the
// previous and new key lists. The current selection is kept as-is.
func (o *EnumerationOption[T]) Reload(values []T) {
	keys := make([]string, 0, len(values))
	byKey := make(map[string]T, len(values))
	for _, v := range values {
		k := o.stringify(v)
		if _, dup := byKey[k]; !dup {
			keys = append(keys, k)
		}
		byKey[k] = v
	}

	o.mu.Lock()
	old := o.keys
	o.keys = keys
	o.byKey = byKey
	o.mu.Unlock()

	ch := Change[[]string]{
		ID:     o.id,
		Old:    append([]string(nil), old...),
		New:    append([]string(nil), keys...),
		OldSet: true,
		NewSet: true,
	}
	o.vmu.Lock()
	subs := make([]Listener[[]string], 0, len(o.valueSubs))
	for _, e := range o.valueSubs {
		subs = append(subs, e.fn)
	}
	o.vmu.Unlock()
	for _, l := range subs {
		l(ch)
	}
}

// AddValueSetListener registers l for Reload events and returns a func that removes it.
func (o *EnumerationOption[T]) AddValueSetListener(l Listener[[]string]) (remove func()) {
	if l == nil {
		return func() {}
	}
	o.vmu.Lock()
	o.valueSeq++
	id := o.valueSeq
	o.valueSubs = append(o.valueSubs, listenerEntry[[]string]{id: id, fn: l})
	o.vmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.vmu.Lock()
			defer o.vmu.Unlock()
			for i, e := range o.valueSubs {
				if e.id == id {
					o.valueSubs = append(o.valueSubs[:i:i], o.valueSubs[i+1:]...)
					return
				}
			}
		})
	}
}

// AvailableValues returns a snapshot of the keys in order.
func (o *EnumerationOption[T]) AvailableValues() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.keys...)
}

// TypedValues returns the domain values in key order.
func (o *EnumerationOption[T]) TypedValues() []T {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]T, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, o.byKey[k])
	}
	return out
}

// SelectedValue resolves the selected key. It reports false when nothing is
// selected, the allowed set is empty, or the key is not (or no longer) allowed.
func (o *EnumerationOption[T]) SelectedValue() (T, bool) {
	var zero T
	key, ok := o.Value()
	if !ok {
		return zero, false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.byKey) == 0 {
		return zero, false
	}
	v, ok := o.byKey[key]
	return v, ok
}

// SetSelectedValue selects v's key when it belongs to the allowed set.
// Values outside the set are ignored without error; only a validator
// rejection is reported.
func (o *EnumerationOption[T]) SetSelectedValue(v T) error {
	key := o.stringify(v)
	o.mu.Lock()
	_, member := o.byKey[key]
	o.mu.Unlock()
	if !member {
		return nil
	}
	return o.SetValue(key)
}

// ClearSelection removes the selection.
func (o *EnumerationOption[T]) ClearSelection() { o.Clear() }

func (o *EnumerationOption[T]) PersistentValue() string {
	v, _ := o.Value()
	return v
}

// LoadPersistentValue stores s verbatim as the selected key; an empty string
// clears the selection.
func (o *EnumerationOption[T]) LoadPersistentValue(s string) error {
	if s == "" {
		o.Clear()
		return nil
	}
	return o.commit(s, true, false)
}

// SetValueLocalizer installs a display mapping for keys.
func (o *EnumerationOption[T]) SetValueLocalizer(fn func(string) string) {
	o.mu.Lock()
	o.localizer = fn
	o.mu.Unlock()
}

// DisplayValue maps key through the localizer, or returns it unchanged.
func (o *EnumerationOption[T]) DisplayValue(key string) string {
	o.mu.Lock()
	fn := o.localizer
	o.mu.Unlock()
	if fn == nil {
		return key
	}
	return fn(key)
}
