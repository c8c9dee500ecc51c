// Package config loads resource declarations from CUE sources. Files and
// directories are unified into a single CUE value, checked against the
// built-in workspace schema, and extracted into engine declarations in
// source order. Workspace variable scripts written in Starlark run during
// loading and contribute computed variables.
package config
