// Package config loads, defaults, and validates Tollgate's YAML
// configuration.
//
// Loading follows a three step sequence: parse the YAML file, apply
// default values for anything left unset, then validate the result.
// LoadConfig performs all three. Validation errors are collected into a
// single ValidationError listing every offending field rather than
// stopping at the first.
//
// A Watcher wraps fsnotify to reload the file on change. Reloads
// produce fresh immutable Config snapshots; a reload that fails to
// parse or validate keeps the previous snapshot in place and reports
// the error to the subscriber.
package config
