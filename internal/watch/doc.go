// Package watch provides the live-rebuild core of bookwatch. A Registry
// decides which paths are observed, a Service turns fsnotify events into
// debounced raw events, Normalize classifies them, and a Loop invokes a
// Handler once per change, one call at a time.
package watch
