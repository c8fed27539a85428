// Package launch owns the typed value layer over launch data handles.
//
// Ownership boundary:
// - value model and coercion of Go literals
// - handle ownership (owned, absorbed, released) for every value
// - decode of native handle trees into plain Go values
// - the request/reply round trip through Native.Send
//
// A handle tree has exactly one logical owner. Values and the Marshaler that
// created them are not safe for concurrent use.
package launch
