// Package logx wraps zerolog for planexport.
//
// A Service owns the outputs (console, JSON file, forwarding to the
// notification pipeline) and can swap them at runtime; Loggers derived from
// it pick up the change without being rebuilt.
package logx
