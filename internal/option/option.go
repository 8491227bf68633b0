// Package option implements named, typed, persistable and observable user
// settings.
//
// Every option holds at most one current value. Mutations run an optional
// validator first and, when the value actually changes, notify the registered
// change listeners synchronously with the old and new value. Listeners run
// after the option's lock has been released, but the package is meant to be
// driven from a single goroutine: a listener that mutates the option it is
// listening to sees undefined ordering.
package option

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidValue is wrapped by every *ValidationError.
var ErrInvalidValue = errors.New("invalid option value")

// ValidationError is returned when a validator rejects a new value.
// The option keeps its previous value.
type ValidationError struct {
	OptionID string
	Message  string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("option %s: %v", e.OptionID, ErrInvalidValue)
	}
	return fmt.Sprintf("option %s: %s", e.OptionID, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidValue }

// Validator decides whether v may become the option's value. When ok is false
// message explains why.
type Validator[T any] func(v T) (ok bool, message string)

// Change describes a committed mutation. OldSet/NewSet are false when the
// option had (or now has) no value.
type Change[T any] struct {
	ID     string
	Old    T
	New    T
	OldSet bool
	NewSet bool
}

// Listener observes committed changes.
type Listener[T any] func(Change[T])

// Persistent is implemented by options that round-trip through a string
// preference value.
type Persistent interface {
	ID() string
	PersistentValue() string
	LoadPersistentValue(s string) error
}

type listenerEntry[T any] struct {
	id uint64
	fn Listener[T]
}

// Base carries the state shared by all option kinds. It must be initialised
// with init before use; concrete option constructors do that.
type Base[T any] struct {
	mu sync.Mutex

	id        string
	value     T
	set       bool
	equal     func(a, b T) bool
	validator Validator[T]

	listeners []listenerEntry[T]
	seq       uint64
}

func (o *Base[T]) init(id string, equal func(a, b T) bool) {
	o.id = id
	o.equal = equal
}

func (o *Base[T]) ID() string { return o.id }

// Value returns the current value and whether one is set.
func (o *Base[T]) Value() (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value, o.set
}

// IsSet reports whether the option currently holds a value.
func (o *Base[T]) IsSet() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.set
}

// SetValidator installs (or, with nil, removes) the validator consulted by SetValue.
func (o *Base[T]) SetValidator(v Validator[T]) {
	o.mu.Lock()
	o.validator = v
	o.mu.Unlock()
}

// SetValue validates and commits v. A rejected value leaves the option
// untouched and returns a *ValidationError.
func (o *Base[T]) SetValue(v T) error {
	return o.commit(v, true, true)
}

// Clear removes the current value. Validators are not consulted.
func (o *Base[T]) Clear() {
	var zero T
	_ = o.commit(zero, false, false)
}

// AddChangeListener registers l and returns a func that removes it.
func (o *Base[T]) AddChangeListener(l Listener[T]) (remove func()) {
	if l == nil {
		return func() {}
	}
	o.mu.Lock()
	o.seq++
	id := o.seq
	o.listeners = append(o.listeners, listenerEntry[T]{id: id, fn: l})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, e := range o.listeners {
				if e.id == id {
					o.listeners = append(o.listeners[:i:i], o.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (o *Base[T]) commit(v T, present, validate bool) error {
	if validate && present {
		o.mu.Lock()
		check := o.validator
		o.mu.Unlock()
		// Validators may read other options (cross-field checks); run unlocked.
		if check != nil {
			if ok, msg := check(v); !ok {
				return &ValidationError{OptionID: o.id, Message: msg}
			}
		}
	}

	o.mu.Lock()
	if o.set == present && (!present || o.same(o.value, v)) {
		o.mu.Unlock()
		return nil
	}
	ch := Change[T]{ID: o.id, Old: o.value, OldSet: o.set, New: v, NewSet: present}
	o.value = v
	o.set = present
	ls := make([]Listener[T], 0, len(o.listeners))
	for _, e := range o.listeners {
		ls = append(ls, e.fn)
	}
	o.mu.Unlock()

	for _, l := range ls {
		l(ch)
	}
	return nil
}

func (o *Base[T]) same(a, b T) bool {
	if o.equal == nil {
		return false
	}
	return o.equal(a, b)
}
