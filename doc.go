// Package console implements a command console: a registry of command
// definitions, a flag-style argument parser with per-argument and
// whole-command validation, and per-invocation execution sessions whose
// store survives renderer remounts.
package console
