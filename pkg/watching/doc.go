// Package watching provides a cross-platform filesystem watcher that
// normalizes the semantic differences between native change notification
// facilities into a single consistent event stream. Callers supply one or
// more paths (files and/or directories), optional filtering and debouncing
// configuration, and receive per-path update and remove events as the
// underlying filesystem changes.
//
// On platforms whose native facility is non-recursive, recursive watches are
// emulated by dynamically enlisting and retiring per-directory watches as the
// tree mutates. Bursts of notifications are coalesced so that at most one
// event per path is delivered per debounce window, and watchers composed of
// multiple overlapping roots deduplicate events that would otherwise fire
// more than once.
package watching
