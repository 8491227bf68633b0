// Package storage is the persistence layer behind user preferences.
//
// It stores:
//   - Preference key/value pairs (hierarchical keys, see package prefs)
//   - Export run records (one per pipeline run, newest last)
package storage
