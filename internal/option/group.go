package option

import (
	"errors"
	"fmt"
)

// Store is the narrow key-value view a Group persists into.
type Store interface {
	Get(key, def string) string
	Put(key, value string) error
}

// Group is a named list of persistent options, stored under their ids.
type Group struct {
	ID      string
	Options []Persistent
}

func NewGroup(id string, opts ...Persistent) *Group {
	return &Group{ID: id, Options: opts}
}

// Option returns the member with the given id, or nil.
func (g *Group) Option(id string) Persistent {
	for _, o := range g.Options {
		if o.ID() == id {
			return o
		}
	}
	return nil
}

// Load reads every member from s. Members missing from s keep their value.
// All load errors are returned joined; successfully loaded members stay loaded.
func (g *Group) Load(s Store) error {
	var errs []error
	for _, o := range g.Options {
		cur := o.PersistentValue()
		v := s.Get(o.ID(), cur)
		if v == cur {
			continue
		}
		if err := o.LoadPersistentValue(v); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("group %s: %w", g.ID, errors.Join(errs...))
	}
	return nil
}

// Save writes every member's persistent value to s.
func (g *Group) Save(s Store) error {
	for _, o := range g.Options {
		if err := s.Put(o.ID(), o.PersistentValue()); err != nil {
			return fmt.Errorf("group %s: save %s: %w", g.ID, o.ID(), err)
		}
	}
	return nil
}
