// Package session carries launch messages over a stream socket.
//
// Ownership boundary:
// - client round trips (memory.Transport) with connect/read/write deadlines
// - server accept loop dispatching decoded requests to a Handler
// - transport security policy (TLS/mTLS on tcp)
// - accept retry backoff
//
// Each server connection gets a private memory native; request trees are
// imported, decoded to plain values for the Handler, and the reply is
// coerced, exported and released before the next frame is read.
package session
